package repository

import "context"

// Repository defines the basic operations shared by entity repositories.
type Repository[T any, ID comparable] interface {
	// Save creates or updates an entity
	Save(ctx context.Context, entity T) (T, error)

	// FindAll retrieves all entities
	FindAll(ctx context.Context) ([]T, error)
}
