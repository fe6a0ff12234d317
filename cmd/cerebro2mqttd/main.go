// Command cerebro2mqttd bridges an RS-485 home-automation field bus to
// an MQTT broker: it polls bus devices, projects their state onto
// retained MQTT topics, and translates command topics into bus frames.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/MatusOllah/slogcolor"

	"github.com/algodomo/cerebro2mqtt/internal/adminapi"
	"github.com/algodomo/cerebro2mqtt/internal/bridge"
	"github.com/algodomo/cerebro2mqtt/internal/config"
)

func main() {
	flag.Parse()

	opts := slogcolor.DefaultOptions
	opts.Level = levelFromEnv()
	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, opts)))

	configPath := os.Getenv("ALGODOMO_CONFIG")
	if configPath == "" {
		configPath = "./config/config.json"
	}

	store, err := config.Open(configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", configPath, "err", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded", "path", configPath)

	svc := bridge.New(store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		slog.Error("failed to start bridge", "err", err)
		os.Exit(1)
	}
	defer svc.Stop()

	cfg := store.Config()
	admin := adminapi.New(store, svc, cfg.Service.RestartCommand)
	httpServer := &http.Server{
		Addr:    cfg.Web.Host + ":" + strconv.Itoa(cfg.Web.Port),
		Handler: admin,
	}
	go func() {
		slog.Info("admin server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("admin server stopped", "err", err)
		}
	}()

	slog.Info("bridge running")
	<-ctx.Done()
	slog.Info("shutting down")
	httpServer.Close()
	svc.Stop()
}

func levelFromEnv() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
