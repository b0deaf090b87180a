// Package generate defines the generation and repair collaborator contracts
// the workflow depends on, plus the transport-level retry wrapper around
// them. The LLM-backed implementation lives in generate/llm.
package generate

import (
	"context"
	"errors"
	"fmt"

	"chartforge/internal/artifact"
	"chartforge/internal/validation"
	"chartforge/pkg/domain"
)

// ErrGeneration marks a collaborator failure (network, quota, malformed
// response). The workflow records it per artifact and keeps going.
var ErrGeneration = errors.New("generation collaborator failure")

// Request is the immutable context for one collaborator call. Constructed
// fresh per call, never mutated after construction.
type Request struct {
	PatientKey domain.PatientKey
	// Title is the requested document title; empty for persona/summary.
	Title string
	// Exclusions are display names new personas must avoid.
	Exclusions []string
	// ExistingTitles are the normalized titles already on file.
	ExistingTitles []artifact.NormalizedTitle
	// OverrideName, when set, bypasses the uniqueness heuristic entirely.
	// Explicit user intent always wins over the diversity rules.
	OverrideName string
	// Identity pins demographics for patients that already have a persona.
	Identity *artifact.Persona
	// Feedback is free-form operator guidance for this run.
	Feedback string
}

// Generator produces one raw artifact of the requested kind.
type Generator interface {
	Generate(ctx context.Context, kind artifact.Kind, req Request) (*artifact.Raw, error)
}

// Repairer re-generates an artifact with the violated rules as context.
// It shares the generator's failure mode.
type Repairer interface {
	Repair(ctx context.Context, raw *artifact.Raw, violated []validation.RuleID) (*artifact.Raw, error)
}

// wrapErr tags collaborator failures so callers can test with errors.Is.
func wrapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrGeneration, op, err)
}
