// Package domain defines the typed identifiers shared across features.
//
// Keeping these as distinct string types prevents accidentally passing a run
// ID where a patient key is expected; conversions are always explicit.
package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PatientKey is the opaque, stable key scoping all artifacts and registry
// lookups for a single patient. It is numeric-string shaped in the source
// data but the workflow treats it as opaque.
type PatientKey string

// ParsePatientKey validates and returns a PatientKey.
func ParsePatientKey(s string) (PatientKey, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", fmt.Errorf("patient key must not be empty")
	}
	return PatientKey(trimmed), nil
}

// String returns the string representation of the patient key.
func (k PatientKey) String() string {
	return string(k)
}

// IsNil returns true if the patient key is empty.
func (k PatientKey) IsNil() bool {
	return k == ""
}

// RunID identifies one orchestrator run, single-patient or batch.
type RunID string

// NewRunID returns a fresh run identifier.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}

// String returns the string representation of the run ID.
func (r RunID) String() string {
	return string(r)
}

// IsNil returns true if the run ID is empty.
func (r RunID) IsNil() bool {
	return r == ""
}
