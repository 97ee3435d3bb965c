// Package events carries domain notifications emitted after a ledger change
// commits. Delivery is best effort: a failed publish is logged by the caller
// and never undoes the committed change.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names.
const (
	TransactionCreated = "transaction.created"
	TransactionUpdated = "transaction.updated"
	TransactionDeleted = "transaction.deleted"
	InvoicePaid        = "invoice.paid"
	InvoiceUnpaid      = "invoice.unpaid"
)

// Event is one domain notification. ID is unique per event, so consumers can
// deduplicate redeliveries even when several events share a subject.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	UserID    uuid.UUID         `json:"user_id"`
	SubjectID uuid.UUID         `json:"subject_id"`
	At        time.Time         `json:"at"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// New builds an event with a fresh id, stamped with the current time.
func New(name string, userID, subjectID uuid.UUID, attrs map[string]string) Event {
	return Event{ID: uuid.New(), Name: name, UserID: userID, SubjectID: subjectID, At: time.Now().UTC(), Attrs: attrs}
}

// JSON encodes the event body.
func (e Event) JSON() ([]byte, error) { return json.Marshal(e) }

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory; used by tests and the dev server.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of what was published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names lists the names of the recorded events in order.
func (r *Recorder) Names() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Name
	}
	return out
}
