// Package events provides the in-process pub/sub bus: an embedded NATS
// server carrying capture lifecycle and caption events to API consumers.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Bus wraps an embedded NATS server and its in-process client connection.
type Bus struct {
	server *server.Server
	conn   *nats.Conn
	logger *slog.Logger

	// Subscription tracking
	subs   map[string][]*nats.Subscription
	subsMu sync.Mutex
}

// Options configures the bus.
type Options struct {
	// Host for the NATS server (default: 127.0.0.1)
	Host string
	// Port for the NATS server. Use -1 for a random free port.
	Port int
}

// DefaultOptions returns the default bus configuration.
func DefaultOptions() Options {
	return Options{Host: "127.0.0.1", Port: 4222}
}

// NewBus starts an embedded NATS server and connects to it.
func NewBus(opts Options, logger *slog.Logger) (*Bus, error) {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 4222
	}

	srvOpts := &server.Options{
		Host:   opts.Host,
		Port:   opts.Port,
		NoSigs: true,
		NoLog:  true, // We'll use our own logger
	}

	ns, err := server.NewServer(srvOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	// Embedded NATS is typically ready in well under 100ms.
	if !ns.ReadyForConnections(2 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready after 2 seconds (port %d)", opts.Port)
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	bus := &Bus{
		server: ns,
		conn:   nc,
		logger: logger.With("component", "eventbus"),
		subs:   make(map[string][]*nats.Subscription),
	}

	bus.logger.Info("Event bus started", "url", ns.ClientURL())
	return bus, nil
}

// Conn returns the NATS connection for direct use.
func (b *Bus) Conn() *nats.Conn {
	return b.conn
}

// ClientURL returns the NATS client URL.
func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

// Publish marshals data as JSON and publishes it to subject.
func (b *Bus) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return b.conn.Publish(subject, payload)
}

// Subscribe subscribes to a subject.
func (b *Bus) Subscribe(subject string, handler func(*nats.Msg)) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, err
	}

	b.subsMu.Lock()
	b.subs[subject] = append(b.subs[subject], sub)
	b.subsMu.Unlock()

	return sub, nil
}

// Unsubscribe removes all subscriptions for a subject.
func (b *Bus) Unsubscribe(subject string) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	if subs, ok := b.subs[subject]; ok {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
		delete(b.subs, subject)
	}
}

// HealthCheck reports whether the in-process connection is alive.
func (b *Bus) HealthCheck() error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS connection not active")
	}
	return nil
}

// Stop drains the connection and shuts the server down.
func (b *Bus) Stop() {
	_ = b.conn.Drain()
	b.server.Shutdown()
	b.logger.Info("Event bus stopped")
}
