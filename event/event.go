// Package event publishes dictionary change notifications over NATS.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultSubjectPrefix is the subject prefix used when none is configured.
const DefaultSubjectPrefix = "semdict.dictionary"

// Type names the kind of change.
type Type string

// Event types.
const (
	TypeModelPut     Type = "model.put"
	TypeModelRemoved Type = "model.removed"
	TypeInitialized  Type = "dictionary.initialized"
	TypeDestroyed    Type = "dictionary.destroyed"
)

// Change is one classified element of a model update.
type Change struct {
	Element string `json:"element"`
	Kind    string `json:"kind"`
	Diff    string `json:"diff"`
}

// Event is the message published for a dictionary change.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Tenant    string    `json:"tenant"`
	Model     string    `json:"model,omitempty"`
	Changes   []Change  `json:"changes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks required fields.
func (e *Event) Validate() error {
	if e.ID == "" {
		return errors.New("event ID is required")
	}
	if e.Type == "" {
		return errors.New("event type is required")
	}
	return nil
}

// Publisher sends raw messages. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Emitter stamps and publishes events. A nil Emitter, or one without a
// publisher, drops events silently.
type Emitter struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// NewEmitter creates an emitter publishing under prefix.
func NewEmitter(pub Publisher, prefix string, logger *slog.Logger) *Emitter {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{pub: pub, prefix: prefix, logger: logger}
}

// Subject returns the subject an event of type t is published on.
func (e *Emitter) Subject(t Type) string {
	return e.prefix + "." + string(t)
}

// Emit publishes ev. Publish failures are logged and returned; callers treat
// them as non-fatal.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	if e == nil || e.pub == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("validate event: %w", err)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := e.pub.Publish(e.Subject(ev.Type), data); err != nil {
		e.logger.Warn("Failed to publish dictionary event",
			"type", ev.Type, "tenant", ev.Tenant, "model", ev.Model, "error", err)
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
