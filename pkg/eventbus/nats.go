package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// NATSBridge republishes every Event from a Bus, JSON-encoded, onto the
// NATS subject <prefix>.<topic> (prefix defaults to "devolve"), so an
// external process can observe a boss's lifecycle without linking against
// this module.
type NATSBridge struct {
	conn   *nats.Conn
	prefix string
	embedded *server.Server
}

// NATSBridgeConfig configures the bridge. If URL is empty, Connect embeds
// and starts an in-process NATS server instead of dialing an external one.
type NATSBridgeConfig struct {
	URL    string
	Prefix string
}

// Connect dials (or, if cfg.URL is empty, embeds) a NATS server and
// returns a bridge ready to forward events published to bus.
func Connect(bus *Bus, cfg NATSBridgeConfig) (*NATSBridge, error) {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "devolve"
	}

	b := &NATSBridge{prefix: prefix}

	url := cfg.URL
	if url == "" {
		opts := &server.Options{Port: -1}
		srv, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("eventbus: embedding nats server: %w", err)
		}
		go srv.Start()
		if !srv.ReadyForConnections(5 * time.Second) {
			srv.Shutdown()
			return nil, fmt.Errorf("eventbus: embedded nats server never became ready")
		}
		b.embedded = srv
		url = srv.ClientURL()
	}

	nc, err := nats.Connect(url)
	if err != nil {
		if b.embedded != nil {
			b.embedded.Shutdown()
		}
		return nil, fmt.Errorf("eventbus: connecting to nats: %w", err)
	}
	b.conn = nc

	forwarded := bus.SubscribeAll()
	go b.forward(forwarded)

	return b, nil
}

func (b *NATSBridge) forward(events <-chan Event) {
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		subject := fmt.Sprintf("%s.%s", b.prefix, ev.Topic)
		_ = b.conn.Publish(subject, payload)
	}
}

// Close closes the NATS connection and, if this bridge embedded its own
// server, shuts it down too.
func (b *NATSBridge) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.embedded != nil {
		b.embedded.Shutdown()
	}
}
