package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/invoicedesk/invoiceform/internal/application/picker"
)

// PickerSessionRepository keeps open picker sessions in memory. Sessions are
// live objects with their own locks, so they are shared, not cloned; the map
// lock only guards membership.
type PickerSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*picker.Session
}

func NewPickerSessionRepository() *PickerSessionRepository {
	return &PickerSessionRepository{
		sessions: make(map[string]*picker.Session),
	}
}

func (r *PickerSessionRepository) Insert(ctx context.Context, s *picker.Session) error {
	_ = ctx
	if s == nil || s.ID() == "" {
		return fmt.Errorf("picker session repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID()]; exists {
		return picker.ErrSessionExists
	}
	r.sessions[s.ID()] = s
	return nil
}

func (r *PickerSessionRepository) Get(ctx context.Context, id string) (*picker.Session, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, picker.ErrSessionNotFound
	}
	return s, nil
}

func (r *PickerSessionRepository) Remove(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return picker.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}
