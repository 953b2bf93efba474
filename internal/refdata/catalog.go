// Package refdata answers membership questions about practice master data: does
// this location, appointment type or practitioner belong where the session says
// it does.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced id does not exist in its scope.
var ErrNotFound = errors.New("refdata: not found")

// Kind names a reference entity and the scope it is looked up in.
type Kind string

const (
	// KindRuleSet is scoped by practice.
	KindRuleSet Kind = "rule_set"
	// KindLocation is scoped by practice.
	KindLocation Kind = "location"
	// KindAppointmentType is scoped by rule set.
	KindAppointmentType Kind = "appointment_type"
	// KindPractitioner is scoped by location.
	KindPractitioner Kind = "practitioner"
)

// Catalog reports whether id exists within scope for kind.
type Catalog interface {
	Contains(ctx context.Context, kind Kind, scope, id uuid.UUID) (bool, error)
}

// Require returns ErrNotFound when the catalog does not contain id.
func Require(ctx context.Context, c Catalog, kind Kind, scope, id uuid.UUID) error {
	ok, err := c.Contains(ctx, kind, scope, id)
	if err != nil {
		return fmt.Errorf("refdata: lookup %s: %w", kind, err)
	}
	if !ok {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

type entry struct {
	kind  Kind
	scope uuid.UUID
	id    uuid.UUID
}

// Static is an in-memory catalog for local runs and tests.
type Static struct {
	mu      sync.RWMutex
	entries map[entry]struct{}
}

func NewStatic() *Static {
	return &Static{entries: map[entry]struct{}{}}
}

// Add registers id under scope and returns the catalog for chaining.
func (s *Static) Add(kind Kind, scope, id uuid.UUID) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry{kind, scope, id}] = struct{}{}
	return s
}

func (s *Static) Contains(ctx context.Context, kind Kind, scope, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[entry{kind, scope, id}]
	return ok, nil
}
