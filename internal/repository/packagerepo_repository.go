package repository

import (
	"context"
	"fmt"

	"github.com/lyubomir-popov/maas/internal/datastore"
	"github.com/lyubomir-popov/maas/internal/domain"
)

// PackageRepoRepository defines operations for apt archive definitions.
type PackageRepoRepository interface {
	Repository[domain.PackageRepository, int64]
	// DefaultArchive resolves the default repository serving the given
	// main architecture. Exactly one default resolves per architecture
	// class; ErrNotFound when none is configured.
	DefaultArchive(ctx context.Context, arch string) (domain.PackageRepository, error)
	// AdditionalRepositories lists the non-default repositories whose
	// arches include the given main architecture, in creation order.
	AdditionalRepositories(ctx context.Context, arch string) ([]domain.PackageRepository, error)
	DeleteAll(ctx context.Context) error
}

type packageRepoRepositoryImpl struct {
	ds *datastore.Datastore
}

// NewPackageRepoRepository creates a new package repository store.
func NewPackageRepoRepository(ds *datastore.Datastore) PackageRepoRepository {
	return &packageRepoRepositoryImpl{ds: ds}
}

// Save creates a repository definition
func (r *packageRepoRepositoryImpl) Save(ctx context.Context, repo domain.PackageRepository) (domain.PackageRepository, error) {
	created, err := r.ds.CreatePackageRepository(repo)
	if err != nil {
		return domain.PackageRepository{}, fmt.Errorf("failed to create package repository: %w", err)
	}
	return created, nil
}

// FindAll retrieves all repository definitions
func (r *packageRepoRepositoryImpl) FindAll(ctx context.Context) ([]domain.PackageRepository, error) {
	repos, err := r.ds.ListPackageRepositories()
	if err != nil {
		return nil, fmt.Errorf("failed to list package repositories: %w", err)
	}
	return repos, nil
}

func (r *packageRepoRepositoryImpl) DefaultArchive(ctx context.Context, arch string) (domain.PackageRepository, error) {
	repos, err := r.FindAll(ctx)
	if err != nil {
		return domain.PackageRepository{}, err
	}
	for _, repo := range repos {
		if repo.Default && repo.ServesArch(arch) {
			return repo, nil
		}
	}
	return domain.PackageRepository{}, fmt.Errorf("default archive for %s: %w", arch, ErrNotFound)
}

func (r *packageRepoRepositoryImpl) AdditionalRepositories(ctx context.Context, arch string) ([]domain.PackageRepository, error) {
	repos, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	var additional []domain.PackageRepository
	for _, repo := range repos {
		if !repo.Default && repo.ServesArch(arch) {
			additional = append(additional, repo)
		}
	}
	return additional, nil
}

func (r *packageRepoRepositoryImpl) DeleteAll(ctx context.Context) error {
	if err := r.ds.DeletePackageRepositories(); err != nil {
		return fmt.Errorf("failed to delete package repositories: %w", err)
	}
	return nil
}
