// Package inventory reconstructs the on-disk artifact state for a patient
// before a generation run decides what still needs to be produced.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"chartforge/internal/artifact"
	"chartforge/internal/docstore"
	dErrors "chartforge/pkg/domain-errors"
	"chartforge/pkg/domain"
)

// Filename conventions for persisted artifacts.
const (
	documentPrefix = "DOC-"
	personaPrefix  = "Persona_Patient_"
	summaryPrefix  = "Clinical_Summary_Patient_"
	fallbackSuffix = "-NAF"
	fileExt        = ".txt"
)

// DocumentFilename composes the canonical filename for a clinical document.
func DocumentFilename(key domain.PatientKey, seq int, title artifact.NormalizedTitle, fallback bool) string {
	name := fmt.Sprintf("%s%s-%03d-%s", documentPrefix, key, seq, title)
	if fallback {
		name += fallbackSuffix
	}
	return name + fileExt
}

// PersonaFilename composes the canonical filename for a patient persona.
func PersonaFilename(key domain.PatientKey, fallback bool) string {
	name := personaPrefix + key.String()
	if fallback {
		name += fallbackSuffix
	}
	return name + fileExt
}

// SummaryFilename composes the canonical filename for a clinical summary.
func SummaryFilename(key domain.PatientKey, fallback bool) string {
	name := summaryPrefix + key.String()
	if fallback {
		name += fallbackSuffix
	}
	return name + fileExt
}

// Scanner derives a patient inventory from the document store. The store
// listing is the source of truth; fallback status rides on the filename.
type Scanner struct {
	store  docstore.Store
	logger *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// New constructs a Scanner.
func New(store docstore.Store, opts ...Option) (*Scanner, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	s := &Scanner{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Scan lists a patient's files and classifies each into the inventory.
// Files that do not match any known naming convention are logged and
// skipped; only a storage failure is an error.
func (s *Scanner) Scan(ctx context.Context, key domain.PatientKey) (*artifact.Inventory, error) {
	if key.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "patient key is required")
	}

	files, err := s.store.List(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "listing patient documents")
	}

	inv := artifact.NewInventory()
	for _, file := range files {
		if !s.classify(key, file.Name, inv) {
			s.logger.Warn("skipping unrecognized file in patient directory",
				"patient_key", key, "filename", file.Name)
		}
	}
	return inv, nil
}

func (s *Scanner) classify(key domain.PatientKey, filename string, inv *artifact.Inventory) bool {
	name, ok := strings.CutSuffix(filename, fileExt)
	if !ok {
		return false
	}

	name, fallback := strings.CutSuffix(name, fallbackSuffix)

	switch {
	case name == personaPrefix+key.String():
		inv.HasPersona = true
		return true
	case name == summaryPrefix+key.String():
		inv.HasSummary = true
		return true
	case strings.HasPrefix(name, documentPrefix):
		return s.classifyDocument(key, filename, name, fallback, inv)
	}
	return false
}

// classifyDocument parses DOC-<pid>-<seq>-<title>. The patient key itself
// may contain dashes, so the key is matched as a literal prefix rather than
// split on separators.
func (s *Scanner) classifyDocument(key domain.PatientKey, filename, name string, fallback bool, inv *artifact.Inventory) bool {
	rest, ok := strings.CutPrefix(name, documentPrefix+key.String()+"-")
	if !ok {
		return false
	}

	seqStr, title, ok := strings.Cut(rest, "-")
	if !ok || title == "" {
		return false
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil || seq < 1 {
		return false
	}

	inv.AddDocument(artifact.DocumentRecord{
		Title:    artifact.NormalizeTitle(title),
		Seq:      seq,
		Filename: filename,
		Fallback: fallback,
	})
	return true
}
