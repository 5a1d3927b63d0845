package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/invoicedesk/invoiceform/internal/application/grid"
)

// GridSessionRepository keeps open grid sessions in memory.
type GridSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*grid.Session
}

func NewGridSessionRepository() *GridSessionRepository {
	return &GridSessionRepository{
		sessions: make(map[string]*grid.Session),
	}
}

func (r *GridSessionRepository) Insert(ctx context.Context, s *grid.Session) error {
	_ = ctx
	if s == nil || s.ID() == "" {
		return fmt.Errorf("grid session repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID()]; exists {
		return grid.ErrSessionExists
	}
	r.sessions[s.ID()] = s
	return nil
}

func (r *GridSessionRepository) Get(ctx context.Context, id string) (*grid.Session, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, grid.ErrSessionNotFound
	}
	return s, nil
}

func (r *GridSessionRepository) Remove(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return grid.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}
