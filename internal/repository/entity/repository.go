package entity

import (
	"context"
	"errors"

	"github.com/oshokin/safezone/internal/domain/tracking"
)

// Repository defines persistence operations for tracked entities.
type Repository interface {
	Load(ctx context.Context, id string) (*tracking.Entity, error)
	Save(ctx context.Context, e *tracking.Entity) error
	List(ctx context.Context) ([]*tracking.Entity, error)
}

// ErrNotFound is returned when no entity with the requested id is stored.
var ErrNotFound = errors.New("entity not found")
