// Package fs implements the document store on the local filesystem using the
// layout the generator has always produced:
//
//	<root>/patient-reports/<patient-key>/<file>
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"chartforge/internal/docstore"
	"chartforge/pkg/domain"
)

const reportsDir = "patient-reports"

// Store writes artifacts under a root output directory.
type Store struct {
	root string
}

// New constructs a filesystem store rooted at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, reportsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) patientDir(key domain.PatientKey) string {
	return filepath.Join(s.root, reportsDir, key.String())
}

func (s *Store) List(_ context.Context, key domain.PatientKey) ([]docstore.File, error) {
	entries, err := os.ReadDir(s.patientDir(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list patient folder: %w", err)
	}

	files := make([]docstore.File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		files = append(files, docstore.File{Name: entry.Name(), Size: info.Size()})
	}
	return files, nil
}

// Write stages the content into a temp file and renames it into place so a
// crash mid-write never leaves a half-written artifact behind in a listing.
func (s *Store) Write(_ context.Context, key domain.PatientKey, name string, content []byte) error {
	dir := s.patientDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create patient folder: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("stage artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit artifact: %w", err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key domain.PatientKey, name string) error {
	err := os.Remove(filepath.Join(s.patientDir(key), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) DeleteAll(_ context.Context, key domain.PatientKey) error {
	err := os.RemoveAll(s.patientDir(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) ListPatients(_ context.Context) ([]domain.PatientKey, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, reportsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list report root: %w", err)
	}

	keys := make([]domain.PatientKey, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			keys = append(keys, domain.PatientKey(entry.Name()))
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}
