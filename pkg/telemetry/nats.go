package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// RelayConfig configures the optional NATS progress relay.
type RelayConfig struct {
	URL     string        `yaml:"url"`
	Subject string        `yaml:"subject"`
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
}

// Relay republishes hub events to a NATS subject so external dashboards can
// consume run progress without holding an HTTP connection to the engine.
type Relay struct {
	conn        *nats.Conn
	subject     string
	unsubscribe func()
	done        chan struct{}
}

// NewRelay connects to NATS and starts forwarding events from the hub.
func NewRelay(cfg RelayConfig, hub *Hub) (*Relay, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = "kgbench.events"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	ch, unsub := hub.Subscribe()
	r := &Relay{
		conn:        conn,
		subject:     cfg.Subject,
		unsubscribe: unsub,
		done:        make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		for event := range ch {
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			// Best effort; a slow or absent broker must not stall the engine.
			_ = conn.Publish(r.subject+"."+string(event.Type), data)
		}
	}()

	return r, nil
}

// Close stops forwarding and drains the NATS connection.
func (r *Relay) Close() {
	if r == nil {
		return
	}
	r.unsubscribe()
	<-r.done
	_ = r.conn.Drain()
	r.conn.Close()
}
