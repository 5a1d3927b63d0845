package grid

import (
	"context"
	"errors"
)

var (
	ErrSessionNotFound = errors.New("grid: session not found")
	ErrSessionExists   = errors.New("grid: session already exists")
	ErrNoSuchRow       = errors.New("grid: no such row")
)

// Repository stores open grid sessions.
type Repository interface {
	Insert(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Remove(ctx context.Context, id string) error
}

type IDGenerator interface {
	NewID() string
}
