package repository

import (
	"context"
	"fmt"

	"github.com/lyubomir-popov/maas/internal/datastore"
	"github.com/lyubomir-popov/maas/internal/domain"
)

// UserRepository resolves API credentials to requesters.
type UserRepository interface {
	FindByAPIKey(ctx context.Context, apiKey string) (domain.User, error)
	Create(ctx context.Context, u domain.User) (domain.User, error)
}

type userRepositoryImpl struct {
	ds *datastore.Datastore
}

// NewUserRepository creates a new user repository
func NewUserRepository(ds *datastore.Datastore) UserRepository {
	return &userRepositoryImpl{ds: ds}
}

func (r *userRepositoryImpl) FindByAPIKey(ctx context.Context, apiKey string) (domain.User, error) {
	user, err := r.ds.GetUserByAPIKey(apiKey)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return domain.User{}, fmt.Errorf("api key: %w", ErrNotFound)
	}
	return *user, nil
}

func (r *userRepositoryImpl) Create(ctx context.Context, u domain.User) (domain.User, error) {
	created, err := r.ds.CreateUser(u)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}
