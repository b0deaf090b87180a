package workflow

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	dErrors "chartforge/pkg/domain-errors"
	"chartforge/pkg/domain"
)

// BatchOptions steers a batch run on top of the per-patient Options.
type BatchOptions struct {
	Options
	// WorkerLimit bounds concurrent patients. Zero or negative means 4.
	WorkerLimit int
	// PendingOnly skips patients that already have at least one clinical
	// document on file.
	PendingOnly bool
}

const defaultWorkerLimit = 4

// PatientResult is one patient's slot in a batch outcome.
type PatientResult struct {
	PatientKey domain.PatientKey
	Outcome    *Outcome
	Skipped    bool
	Err        error
}

// BatchOutcome collects per-patient results in input order.
type BatchOutcome struct {
	Results []PatientResult
}

// Failed reports how many patients ended in an error.
func (b *BatchOutcome) Failed() int {
	n := 0
	for _, r := range b.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// RunBatch fans Run out across patients with a bounded worker pool. One
// patient's failure never cancels the others; the batch itself only errors
// on invalid input.
func (s *Service) RunBatch(ctx context.Context, keys []domain.PatientKey, opts BatchOptions) (*BatchOutcome, error) {
	if len(keys) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least one patient key is required")
	}

	limit := opts.WorkerLimit
	if limit <= 0 {
		limit = defaultWorkerLimit
	}

	outcome := &BatchOutcome{Results: make([]PatientResult, len(keys))}
	var mu sync.Mutex

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	for i, key := range keys {
		group.Go(func() error {
			result := s.runOne(ctx, key, opts)
			mu.Lock()
			outcome.Results[i] = result
			mu.Unlock()
			if s.metrics != nil {
				s.metrics.IncBatchPatient()
			}
			// Per-patient errors are reported, not propagated; returning
			// one here would cancel the sibling patients.
			return nil
		})
	}

	// Workers never return errors, but Wait also surfaces ctx cancellation.
	if err := group.Wait(); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (s *Service) runOne(ctx context.Context, key domain.PatientKey, opts BatchOptions) PatientResult {
	if opts.PendingOnly {
		complete, err := s.CompletionStatus(ctx, key)
		if err != nil {
			return PatientResult{PatientKey: key, Err: err}
		}
		if complete {
			s.logger.Info("patient already complete, skipping", "patient_key", key)
			return PatientResult{PatientKey: key, Skipped: true}
		}
	}

	runOutcome, err := s.Run(ctx, key, opts.Options)
	return PatientResult{PatientKey: key, Outcome: runOutcome, Err: err}
}
