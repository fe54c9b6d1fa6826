package repository

import (
	"context"

	"github.com/lyubomir-popov/maas/internal/datastore"
	"github.com/lyubomir-popov/maas/internal/domain"
)

// PreseedStore bundles the lookups the preseed engine performs into one
// value, delegating to the per-entity repositories.
type PreseedStore struct {
	repos    PackageRepoRepository
	machines MachineRepository
	keys     NodeKeyRepository
	config   ConfigRepository
}

// NewPreseedStore creates a preseed store backed by the datastore.
func NewPreseedStore(ds *datastore.Datastore) *PreseedStore {
	return &PreseedStore{
		repos:    NewPackageRepoRepository(ds),
		machines: NewMachineRepository(ds),
		keys:     NewNodeKeyRepository(ds),
		config:   NewConfigRepository(ds),
	}
}

func (s *PreseedStore) DefaultArchive(ctx context.Context, arch string) (domain.PackageRepository, error) {
	return s.repos.DefaultArchive(ctx, arch)
}

func (s *PreseedStore) AdditionalRepositories(ctx context.Context, arch string) ([]domain.PackageRepository, error) {
	return s.repos.AdditionalRepositories(ctx, arch)
}

func (s *PreseedStore) HasSwapFilesystem(ctx context.Context, machineID int64) (bool, error) {
	return s.machines.HasSwapFilesystem(ctx, machineID)
}

func (s *PreseedStore) TokenForMachine(ctx context.Context, machineID int64) (domain.NodeKey, error) {
	return s.keys.TokenForMachine(ctx, machineID)
}

func (s *PreseedStore) ConfigSnapshot(ctx context.Context) (domain.ConfigSnapshot, error) {
	return s.config.Snapshot(ctx)
}
