package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartforge/internal/artifact"
)

// ============================================================
// Justification for unit tests:
// The loop guarantees that generated content is never discarded: every path
// ends in an accepted artifact or a fallback-tagged one. These tests walk
// each terminal transition, including repairer failure and a zero budget.
// ============================================================

// scriptedRepairer returns queued results in order.
type scriptedRepairer struct {
	results []func(*artifact.Raw, []RuleID) (*artifact.Raw, error)
	calls   int
	seen    [][]RuleID
}

func (r *scriptedRepairer) Repair(_ context.Context, raw *artifact.Raw, violated []RuleID) (*artifact.Raw, error) {
	r.seen = append(r.seen, violated)
	if r.calls >= len(r.results) {
		return nil, errors.New("unexpected repair call")
	}
	result := r.results[r.calls]
	r.calls++
	return result(raw, violated)
}

func fixRepair(fixed *artifact.Raw) func(*artifact.Raw, []RuleID) (*artifact.Raw, error) {
	return func(*artifact.Raw, []RuleID) (*artifact.Raw, error) { return fixed, nil }
}

func failRepair(err error) func(*artifact.Raw, []RuleID) (*artifact.Raw, error) {
	return func(*artifact.Raw, []RuleID) (*artifact.Raw, error) { return nil, err }
}

func echoRepair() func(*artifact.Raw, []RuleID) (*artifact.Raw, error) {
	return func(raw *artifact.Raw, _ []RuleID) (*artifact.Raw, error) { return raw, nil }
}

func brokenDoc() artifact.Raw {
	doc := validDocument()
	doc.Provider = ""
	return artifact.Raw{Kind: artifact.KindDocument, Document: doc}
}

func cleanDoc() artifact.Raw {
	return artifact.Raw{Kind: artifact.KindDocument, Document: validDocument()}
}

func newLoop(t *testing.T, opts ...LoopOption) *Loop {
	t.Helper()
	loop, err := NewLoop(NewValidator(Config{}), opts...)
	require.NoError(t, err)
	return loop
}

func TestNewLoopRequiresValidator(t *testing.T) {
	_, err := NewLoop(nil)
	require.Error(t, err)
}

func TestResolveAcceptsCleanArtifactWithoutRepair(t *testing.T) {
	repairer := &scriptedRepairer{}
	gen := &artifact.Generated{Raw: cleanDoc(), GeneratedAt: genTime}

	final, verdict := newLoop(t).Resolve(context.Background(), gen, Expectation{Kind: artifact.KindDocument}, repairer)

	assert.True(t, verdict.Accepted)
	assert.False(t, final.Fallback)
	assert.Equal(t, 1, final.Attempt)
	assert.Zero(t, repairer.calls)
}

func TestResolveRepairsThenAccepts(t *testing.T) {
	repairer := &scriptedRepairer{results: []func(*artifact.Raw, []RuleID) (*artifact.Raw, error){
		fixRepair(&artifact.Raw{Kind: artifact.KindDocument, Document: validDocument()}),
	}}
	gen := &artifact.Generated{Raw: brokenDoc(), GeneratedAt: genTime}

	final, verdict := newLoop(t).Resolve(context.Background(), gen, Expectation{Kind: artifact.KindDocument}, repairer)

	assert.True(t, verdict.Accepted)
	assert.False(t, final.Fallback)
	assert.Equal(t, 2, final.Attempt)
	require.Len(t, repairer.seen, 1)
	assert.Contains(t, repairer.seen[0], RuleRequiredFields)
}

func TestResolveExhaustedBudgetFallsBackWithContentIntact(t *testing.T) {
	repairer := &scriptedRepairer{results: []func(*artifact.Raw, []RuleID) (*artifact.Raw, error){
		echoRepair(), // repair returns the same broken artifact
	}}
	gen := &artifact.Generated{Raw: brokenDoc(), GeneratedAt: genTime}

	final, verdict := newLoop(t).Resolve(context.Background(), gen, Expectation{Kind: artifact.KindDocument}, repairer)

	assert.False(t, verdict.Accepted)
	assert.True(t, final.Fallback)
	require.NotNil(t, final.Document)
	assert.Equal(t, "MRI Lumbar Spine", final.Document.Title)
	assert.Equal(t, 1, repairer.calls)
}

func TestResolveRepairerErrorFallsBack(t *testing.T) {
	repairer := &scriptedRepairer{results: []func(*artifact.Raw, []RuleID) (*artifact.Raw, error){
		failRepair(errors.New("model unavailable")),
	}}
	gen := &artifact.Generated{Raw: brokenDoc(), GeneratedAt: genTime}

	final, verdict := newLoop(t).Resolve(context.Background(), gen, Expectation{Kind: artifact.KindDocument}, repairer)

	assert.False(t, verdict.Accepted)
	assert.True(t, final.Fallback)
	require.NotNil(t, final.Document)
}

func TestResolveZeroBudgetNeverCallsRepairer(t *testing.T) {
	repairer := &scriptedRepairer{}
	gen := &artifact.Generated{Raw: brokenDoc(), GeneratedAt: genTime}

	final, verdict := newLoop(t, WithMaxAttempts(0)).Resolve(context.Background(), gen, Expectation{Kind: artifact.KindDocument}, repairer)

	assert.False(t, verdict.Accepted)
	assert.True(t, final.Fallback)
	assert.Zero(t, repairer.calls)
}

func TestResolveNilRepairerFallsBack(t *testing.T) {
	gen := &artifact.Generated{Raw: brokenDoc(), GeneratedAt: genTime}

	final, verdict := newLoop(t).Resolve(context.Background(), gen, Expectation{Kind: artifact.KindDocument}, nil)

	assert.False(t, verdict.Accepted)
	assert.True(t, final.Fallback)
}

func TestResolveMultipleRepairPasses(t *testing.T) {
	stillBroken := brokenDoc()
	repairer := &scriptedRepairer{results: []func(*artifact.Raw, []RuleID) (*artifact.Raw, error){
		fixRepair(&stillBroken),
		fixRepair(&artifact.Raw{Kind: artifact.KindDocument, Document: validDocument()}),
	}}
	gen := &artifact.Generated{Raw: brokenDoc(), GeneratedAt: genTime}

	final, verdict := newLoop(t, WithMaxAttempts(2)).Resolve(context.Background(), gen, Expectation{Kind: artifact.KindDocument}, repairer)

	assert.True(t, verdict.Accepted)
	assert.False(t, final.Fallback)
	assert.Equal(t, 3, final.Attempt)
	assert.Equal(t, 2, repairer.calls)
}
