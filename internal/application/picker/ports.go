package picker

import (
	"context"
	"errors"
)

var (
	ErrSessionNotFound = errors.New("picker: session not found")
	ErrSessionExists   = errors.New("picker: session already exists")
	ErrNoSuchResult    = errors.New("picker: no such result")
	ErrNothingSelected = errors.New("picker: nothing selected")
)

// Repository stores open picker sessions.
type Repository interface {
	Insert(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Remove(ctx context.Context, id string) error
}

type IDGenerator interface {
	NewID() string
}
