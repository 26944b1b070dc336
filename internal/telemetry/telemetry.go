// Package telemetry records eval events to a JSONL file and, optionally, an
// HTTP collector. Sink failures are logged and never surface to callers.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const EventEvalCompleted = "Agent Eval Completed"

type Event struct {
	Name           string    `json:"event"`
	Time           time.Time `json:"time"`
	SessionID      string    `json:"session_id"`
	SystemID       string    `json:"system_id,omitempty"`
	InstallationID string    `json:"installation_id,omitempty"`
	Properties     any       `json:"properties"`
}

type Sink interface {
	Emit(ev Event) error
	Flush(ctx context.Context) error
}

// Client stamps events with the session identity and fans them out to sinks.
type Client struct {
	SessionID      string
	SystemID       string
	InstallationID string

	mu    sync.Mutex
	sinks []Sink
	now   func() time.Time
}

func New(sinks ...Sink) *Client {
	return &Client{
		SessionID: uuid.NewString(),
		sinks:     sinks,
		now:       time.Now,
	}
}

// Nop returns a client that drops every event.
func Nop() *Client {
	return New()
}

func (c *Client) AddSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// Event emits an event to every sink. The returned error is informational;
// every sink is attempted regardless.
func (c *Client) Event(name string, props any) error {
	ev := Event{
		Name:           name,
		Time:           c.now().UTC(),
		SessionID:      c.SessionID,
		SystemID:       c.SystemID,
		InstallationID: c.InstallationID,
		Properties:     props,
	}
	var errs []error
	for _, s := range c.snapshot() {
		if err := s.Emit(ev); err != nil {
			slog.Warn("telemetry emit failed", "event", name, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range c.snapshot() {
		if err := s.Flush(ctx); err != nil {
			slog.Warn("telemetry flush failed", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) snapshot() []Sink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sink(nil), c.sinks...)
}
