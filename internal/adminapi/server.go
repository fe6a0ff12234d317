// Package adminapi is the bridge's HTTP admin surface: configuration
// CRUD, a manual poll trigger, restart, and Prometheus metrics, routed
// with gorilla/mux per SPEC_FULL.md §4.10.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/algodomo/cerebro2mqtt/internal/config"
)

// Bridge is the subset of bridge.Service the admin surface drives.
type Bridge interface {
	TriggerPollAll()
	Reload(ctx context.Context) error
}

// Server wires the HTTP routes to a config.Store and a Bridge.
type Server struct {
	store          *config.Store
	bridge         Bridge
	restartCommand string
	router         *mux.Router
}

// New builds the router. Server is an http.Handler; serve it with an
// http.Server.
func New(store *config.Store, bridge Bridge, restartCommand string) *Server {
	s := &Server{store: store, bridge: bridge, restartCommand: restartCommand}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/api/config", s.getConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/api/config", s.postConfig).Methods(http.MethodPost)
	s.router.HandleFunc("/api/config/download", s.downloadConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/api/poll", s.postPoll).Methods(http.MethodPost)
	s.router.HandleFunc("/api/restart", s.postRestart).Methods(http.MethodPost)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Config())
}

func (s *Server) postConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if _, err := s.store.UpdateFromJSON(raw); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := s.bridge.Reload(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, s.store.Config())
}

func (s *Server) downloadConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Disposition", "attachment; filename=config.json")
	http.ServeFile(w, r, s.store.Path())
}

func (s *Server) postPoll(w http.ResponseWriter, r *http.Request) {
	s.bridge.TriggerPollAll()
	writeJSON(w, http.StatusOK, map[string]any{"triggered": true})
}

type restartRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) postRestart(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req restartRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	switch req.Mode {
	case "service":
		if s.restartCommand == "" {
			writeError(w, http.StatusBadRequest, errors.New("no restart_command configured"))
			return
		}
		cmd := exec.Command("sh", "-c", s.restartCommand)
		if err := cmd.Start(); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"mode": "service"})

	default:
		writeJSON(w, http.StatusOK, map[string]any{"mode": "app"})
		go func() {
			time.Sleep(200 * time.Millisecond)
			slog.Info("restarting process on admin request")
			os.Exit(0)
		}()
	}
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
