// Package audit emits the operational event trail for generation runs and
// purges. Events are advisory: a sink failure is logged, never propagated
// into the operation that produced the event.
package audit

import (
	"context"
	"time"

	"chartforge/pkg/domain"
)

// Action names an auditable operation.
type Action string

const (
	ActionRunStarted       Action = "run_started"
	ActionArtifactAccepted Action = "artifact_accepted"
	ActionArtifactFallback Action = "artifact_fallback"
	ActionRunCompleted     Action = "run_completed"
	ActionRunFailed        Action = "run_failed"
	ActionPatientPurged    Action = "patient_purged"
	ActionScopePurged      Action = "scope_purged"
)

// Event is one audit record. Keep it transport-agnostic so sinks can fan
// out without caring where it goes.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	RunID      domain.RunID      `json:"run_id,omitempty"`
	PatientKey domain.PatientKey `json:"patient_key,omitempty"`
	Action     Action            `json:"action"`
	Detail     string            `json:"detail,omitempty"`
	Actor      string            `json:"actor,omitempty"`
}

// Publisher delivers audit events to a sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop discards all events. Useful when auditing is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
