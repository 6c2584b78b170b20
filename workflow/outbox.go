/*
outbox.go - Best-effort side-effect dispatch

PURPOSE:
  Decouples the authoritative state transition from its side effects
  (notifications, email, document regeneration). Operations queue events
  while they work; Dispatch runs after the transition has committed. A
  failing side effect is logged and swallowed - it must never cause the
  approval decision itself to fail or roll back.

COLLABORATORS:
  Notifier, Mailer and DocumentRegenerator are external collaborators. Any
  of them may be nil, in which case their events are dropped silently.

SEE ALSO:
  - state.go, escalation.go: queue events around their transitions
*/
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// COLLABORATOR CONTRACTS
// =============================================================================

// Notifier delivers in-app notifications. Fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, userID UserID, kind, title, message, link string) error
}

// Mailer sends templated email. Best-effort.
type Mailer interface {
	Send(ctx context.Context, email, template string, data map[string]string) error
}

// DocumentRegenerator re-renders the generated document for a request
// after an approval event changed its field/signature model.
type DocumentRegenerator interface {
	Regenerate(ctx context.Context, requestID RequestID) error
}

// =============================================================================
// EVENTS
// =============================================================================

type EventType string

const (
	EventNotify        EventType = "notify"
	EventEmail         EventType = "email"
	EventRegenerateDoc EventType = "document.regenerate"
)

type Event struct {
	ID        string
	Type      EventType
	UserID    UserID
	Email     string
	RequestID RequestID
	Kind      string
	Title     string
	Message   string
	Link      string
	Template  string
	Data      map[string]string
	CreatedAt time.Time
}

// =============================================================================
// OUTBOX
// =============================================================================

// Outbox queues events during an operation and dispatches them after the
// primary transition committed.
type Outbox struct {
	Notifier    Notifier
	Mailer      Mailer
	Regenerator DocumentRegenerator
	Log         zerolog.Logger

	mu      sync.Mutex
	pending []Event
}

func NewOutbox(n Notifier, m Mailer, r DocumentRegenerator, log zerolog.Logger) *Outbox {
	return &Outbox{Notifier: n, Mailer: m, Regenerator: r, Log: log}
}

// Queue records an event for the next Dispatch.
func (o *Outbox) Queue(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	o.mu.Lock()
	o.pending = append(o.pending, e)
	o.mu.Unlock()
}

// Dispatch drains the queue. Every handler failure is logged at error and
// swallowed; Dispatch itself never fails.
func (o *Outbox) Dispatch(ctx context.Context) {
	o.mu.Lock()
	events := o.pending
	o.pending = nil
	o.mu.Unlock()

	for _, e := range events {
		if err := o.dispatchOne(ctx, e); err != nil {
			o.Log.Error().
				Err(err).
				Str("event_id", e.ID).
				Str("event_type", string(e.Type)).
				Str("request_id", string(e.RequestID)).
				Msg("side effect failed")
		}
	}
}

func (o *Outbox) dispatchOne(ctx context.Context, e Event) error {
	switch e.Type {
	case EventNotify:
		if o.Notifier == nil {
			return nil
		}
		return o.Notifier.Notify(ctx, e.UserID, e.Kind, e.Title, e.Message, e.Link)
	case EventEmail:
		if o.Mailer == nil {
			return nil
		}
		return o.Mailer.Send(ctx, e.Email, e.Template, e.Data)
	case EventRegenerateDoc:
		if o.Regenerator == nil {
			return nil
		}
		return o.Regenerator.Regenerate(ctx, e.RequestID)
	}
	return nil
}
