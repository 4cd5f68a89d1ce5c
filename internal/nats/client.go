// Package nats exports render events over NATS JetStream.
package nats

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/saviobatista/vatsim-replay/internal/logging"
	"github.com/saviobatista/vatsim-replay/internal/render"
	"github.com/saviobatista/vatsim-replay/internal/types"
)

const (
	SubjectRenderPrefix = "replay.render"
	StreamRender        = "REPLAY_RENDER"
)

// RenderSubject returns the subject events for callsign are published on.
// Characters NATS reserves in subject tokens are replaced by '_'.
func RenderSubject(callsign string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, callsign)
	if token == "" {
		token = "_"
	}
	return SubjectRenderPrefix + "." + token
}

// Client represents a NATS client
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	lg   *logging.Logger
}

// New creates a new NATS client
func New(url string, lg *logging.Logger) (*Client, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamRender,
		Subjects: []string{SubjectRenderPrefix + ".>"},
		Storage:  nats.MemoryStorage,
		MaxAge:   time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
		lg:   lg,
	}, nil
}

// PublishRenderEvent publishes a render event without waiting for the ack
func (c *Client) PublishRenderEvent(ev types.RenderEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := c.js.PublishAsync(RenderSubject(ev.Callsign), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// SubscribeRenderEvents delivers every render event to handler
func (c *Client) SubscribeRenderEvents(handler func(types.RenderEvent)) (*nats.Subscription, error) {
	sub, err := c.js.Subscribe(SubjectRenderPrefix+".>", func(msg *nats.Msg) {
		var ev types.RenderEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.lg.Warn("error unmarshaling render event", "subject", msg.Subject, "error", err)
			return
		}
		handler(ev)
	}, nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	return sub, nil
}

// Close waits briefly for pending publishes, then closes the NATS connection
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if c.js != nil {
		select {
		case <-c.js.PublishAsyncComplete():
		case <-time.After(5 * time.Second):
			c.lg.Warn("timed out waiting for pending render events")
		}
	}
	c.conn.Close()
}

// Publisher sends render events somewhere
type Publisher interface {
	PublishRenderEvent(ev types.RenderEvent) error
}

// Surface is a render.Surface that publishes every mutation
type Surface struct {
	*render.EventSurface

	failed atomic.Uint64
}

// NewSurface creates a Surface publishing through p. Publish failures are
// logged once and counted.
func NewSurface(p Publisher, lg *logging.Logger) *Surface {
	s := &Surface{}
	s.EventSurface = render.NewEventSurface(func(ev types.RenderEvent) {
		if err := p.PublishRenderEvent(ev); err != nil {
			if s.failed.Add(1) == 1 {
				lg.Warn("failed to publish render event", "callsign", ev.Callsign, "error", err)
			}
		}
	})
	return s
}

// Failed returns how many events could not be published
func (s *Surface) Failed() uint64 {
	return s.failed.Load()
}
