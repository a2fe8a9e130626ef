// Package events carries domain notifications to live clients and brokers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	AppointmentCreated  = "appointment.created"
	AppointmentUpdated  = "appointment.updated"
	AppointmentDeleted  = "appointment.deleted"
	PrescriptionIssued  = "prescription.issued"
	PrescriptionStatus  = "prescription.status_changed"
	AnalysisUploaded    = "analysis.uploaded"
	AnalysisProcessed   = "analysis.processed"
	AnalysisReviewed    = "analysis.reviewed"
	PatientHighRisk     = "patient.high_risk"
)

// Event is one domain notification, always scoped to a doctor.
type Event struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	DoctorID     uuid.UUID       `json:"doctor_id"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// New builds an event; data is JSON encoded and dropped if it cannot be.
func New(eventType string, doctorID uuid.UUID, resourceType string, resourceID uuid.UUID, data interface{}) Event {
	e := Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		DoctorID:     doctorID,
		ResourceType: resourceType,
		ResourceID:   resourceID.String(),
		Timestamp:    time.Now().UTC(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			e.Data = raw
		}
	}
	return e
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Fanout delivers each event to every publisher and joins their errors.
type Fanout struct {
	pubs []Publisher
}

func NewFanout(pubs ...Publisher) *Fanout {
	return &Fanout{pubs: pubs}
}

func (f *Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f.pubs {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit publishes event and logs a failure instead of returning it. Domain
// writes have already committed when events are emitted.
func Emit(ctx context.Context, p Publisher, logger zerolog.Logger, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).
			Str("event_type", event.Type).
			Str("doctor_id", event.DoctorID.String()).
			Str("resource_id", event.ResourceID).
			Msg("event publish failed")
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
