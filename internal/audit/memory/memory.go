// Package memory provides an in-process audit sink for tests.
package memory

import (
	"context"
	"sync"

	"chartforge/internal/audit"
)

// Publisher collects events in memory.
type Publisher struct {
	mu     sync.Mutex
	events []audit.Event
}

// New returns an empty in-memory publisher.
func New() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(_ context.Context, event audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *Publisher) Close() error { return nil }

// Events returns a snapshot of everything published so far.
func (p *Publisher) Events() []audit.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audit.Event(nil), p.events...)
}
