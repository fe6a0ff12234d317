// Package mqttio wraps the eclipse/paho MQTT client: connection with
// auto-reconnect, subscription to the bridge's command namespace, and
// JSON-encoded publish.
package mqttio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf16"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/algodomo/cerebro2mqtt/internal/config"
	"github.com/algodomo/cerebro2mqtt/internal/metrics"
)

// Error is the broker error kind (spec's BROKER_ERROR).
type Error struct {
	msg string
	err error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Message is one inbound command-topic publish.
type Message struct {
	Topic   string
	Payload []byte
}

// Client owns the paho client and the callbacks the bridge registers.
type Client struct {
	cli       mqtt.Client
	baseTopic string
	onMessage func(Message)
	onConnect func()
}

// New builds (but does not connect) a client from cfg. onMessage fires
// for every publish under {base_topic}/#; onConnect fires once per
// successful connect (including reconnects), mirroring the original's
// "connected" hook used to republish discovery and retained state.
func New(cfg config.MQTTConfig, onMessage func(Message), onConnect func()) *Client {
	c := &Client{baseTopic: cfg.BaseTopic, onMessage: onMessage, onConnect: onConnect}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(time.Duration(cfg.KeepaliveSec) * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		metrics.MQTTConnected.Set(0)
		slog.Warn("mqtt connection lost", "err", err)
	})

	c.cli = mqtt.NewClient(opts)
	return c
}

// Connect starts the async connect without waiting for it to complete;
// paho's own retry and reconnect loops establish the connection and heal
// subsequent drops. An error is returned only if the attempt has already
// failed when Connect returns.
func (c *Client) Connect() error {
	token := c.cli.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return &Error{msg: "mqtt connect failed", err: err}
		}
	default:
	}
	return nil
}

// Disconnect gracefully tears the client down.
func (c *Client) Disconnect() {
	c.cli.Disconnect(250)
	metrics.MQTTConnected.Set(0)
}

func (c *Client) handleConnect(cli mqtt.Client) {
	topic := c.baseTopic + "/#"
	token := cli.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		if c.onMessage != nil {
			c.onMessage(Message{Topic: msg.Topic(), Payload: msg.Payload()})
		}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		slog.Error("mqtt subscribe failed", "topic", topic, "err", err)
		return
	}
	slog.Info("mqtt connected", "topic", topic)
	if c.onConnect != nil {
		c.onConnect()
	}
}

// Publish JSON-encodes payload (unless it is already a []byte or string),
// writing every non-ASCII character as a \uXXXX escape, and sends it with
// the given retain flag and QoS 1.
func (c *Client) Publish(topic string, payload any, retain bool) error {
	var raw []byte
	switch v := payload.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return &Error{msg: "encode publish payload", err: err}
		}
		var escaped bytes.Buffer
		for _, r := range string(encoded) {
			switch {
			case r < 0x80:
				escaped.WriteRune(r)
			case r > 0xFFFF:
				r1, r2 := utf16.EncodeRune(r)
				fmt.Fprintf(&escaped, `\u%04x\u%04x`, r1, r2)
			default:
				fmt.Fprintf(&escaped, `\u%04x`, r)
			}
		}
		raw = escaped.Bytes()
	}

	token := c.cli.Publish(topic, 1, retain, raw)
	token.Wait()
	if err := token.Error(); err != nil {
		return &Error{msg: fmt.Sprintf("publish %s failed", topic), err: err}
	}
	return nil
}

// IsConnected reports the paho client's current connection state.
func (c *Client) IsConnected() bool {
	return c.cli.IsConnectionOpen()
}
