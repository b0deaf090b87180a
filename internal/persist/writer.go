// Package persist commits finalized artifacts to durable storage and records
// their provenance. Nothing upstream of this package touches the file layout.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chartforge/internal/artifact"
	"chartforge/internal/docstore"
	"chartforge/internal/inventory"
	"chartforge/internal/render"
	dErrors "chartforge/pkg/domain-errors"
	"chartforge/pkg/domain"
)

// Commit describes one artifact to persist. Identity supplies the report
// header; for personas it is the freshly generated persona itself.
type Commit struct {
	PatientKey domain.PatientKey
	Final      *artifact.Final
	Identity   *artifact.Persona
	Violated   []string
}

// Writer renders artifacts and writes them through the document store,
// recording an index row for each durable write.
type Writer struct {
	store    docstore.Store
	index    docstore.Index
	renderer render.Renderer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// WithIDSource sets the accession and index ID source, for tests.
func WithIDSource(newID func() string) Option {
	return func(w *Writer) {
		if newID != nil {
			w.newID = newID
		}
	}
}

// New constructs a Writer. The index is optional; without one only the file
// write happens.
func New(store docstore.Store, index docstore.Index, renderer render.Renderer, opts ...Option) (*Writer, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	w := &Writer{
		store:    store,
		index:    index,
		renderer: renderer,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Write renders and durably stores one artifact. The file write happens
// before the index row so a crash can leave an unindexed file but never an
// index row pointing at nothing.
func (w *Writer) Write(ctx context.Context, c Commit) (*docstore.PersistedRef, error) {
	if c.PatientKey.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "patient key is required")
	}
	if c.Final == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "finalized artifact is required")
	}

	now := w.now()
	meta := render.Meta{
		PatientKey:  c.PatientKey,
		MRN:         render.MRN(c.PatientKey, now),
		ReportDate:  now.Format("2006-01-02"),
		AccessionID: w.newID(),
	}
	if c.Identity != nil {
		meta.PatientName = c.Identity.DisplayName()
		meta.DOB = c.Identity.DOB
		meta.Gender = c.Identity.Gender
	}

	content, err := w.renderer.Render(c.Final, meta)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rendering artifact")
	}

	filename, err := w.filename(c)
	if err != nil {
		return nil, err
	}

	if err := w.store.Write(ctx, c.PatientKey, filename, content); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "writing artifact file")
	}

	ref := &docstore.PersistedRef{
		PatientKey: c.PatientKey,
		Kind:       c.Final.Kind,
		Filename:   filename,
		Seq:        c.Final.Seq,
		Fallback:   c.Final.Fallback,
	}

	if w.index != nil {
		entry := docstore.IndexEntry{
			ID:         w.newID(),
			PatientKey: c.PatientKey,
			Kind:       c.Final.Kind,
			Title:      artifact.NormalizeTitle(c.Final.Title()),
			Filename:   filename,
			Fallback:   c.Final.Fallback,
			Violated:   c.Violated,
			CreatedAt:  now,
		}
		if err := w.index.Record(ctx, entry); err != nil {
			// The file is already durable; losing the provenance row is
			// recoverable, losing the file is not.
			w.logger.Error("artifact written but index record failed",
				"patient_key", c.PatientKey, "filename", filename, "error", err)
		}
	}

	w.logger.Info("artifact persisted",
		"patient_key", c.PatientKey, "kind", c.Final.Kind,
		"filename", filename, "fallback", c.Final.Fallback)
	return ref, nil
}

func (w *Writer) filename(c Commit) (string, error) {
	switch c.Final.Kind {
	case artifact.KindPersona:
		return inventory.PersonaFilename(c.PatientKey, c.Final.Fallback), nil
	case artifact.KindSummary:
		return inventory.SummaryFilename(c.PatientKey, c.Final.Fallback), nil
	case artifact.KindDocument:
		if c.Final.Seq < 1 {
			return "", dErrors.New(dErrors.CodeBadRequest, "document sequence must be assigned before persisting")
		}
		title := artifact.NormalizeTitle(c.Final.Title())
		if title == "" {
			return "", dErrors.New(dErrors.CodeBadRequest, "document title is required")
		}
		return inventory.DocumentFilename(c.PatientKey, c.Final.Seq, title, c.Final.Fallback), nil
	}
	return "", dErrors.Newf(dErrors.CodeBadRequest, "unknown artifact kind %q", c.Final.Kind)
}
