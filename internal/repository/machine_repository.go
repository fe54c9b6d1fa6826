package repository

import (
	"context"
	"fmt"

	"github.com/lyubomir-popov/maas/internal/datastore"
	"github.com/lyubomir-popov/maas/internal/domain"
)

// MachineRepository defines domain-specific operations for machines.
type MachineRepository interface {
	Repository[domain.Machine, int64]
	FindBySystemID(ctx context.Context, systemID string) (domain.Machine, error)
	DeleteByID(ctx context.Context, id int64) error
	HasSwapFilesystem(ctx context.Context, machineID int64) (bool, error)
	AddBlockDevice(ctx context.Context, d domain.BlockDevice) (domain.BlockDevice, error)
	AddPartition(ctx context.Context, p domain.Partition) (domain.Partition, error)
	AddFilesystem(ctx context.Context, f domain.Filesystem) (domain.Filesystem, error)
}

// machineRepositoryImpl implements MachineRepository
type machineRepositoryImpl struct {
	ds *datastore.Datastore
}

// NewMachineRepository creates a new machine repository
func NewMachineRepository(ds *datastore.Datastore) MachineRepository {
	return &machineRepositoryImpl{ds: ds}
}

// Save creates or updates a machine
func (r *machineRepositoryImpl) Save(ctx context.Context, machine domain.Machine) (domain.Machine, error) {
	if machine.ID == 0 {
		created, err := r.ds.CreateMachine(machine)
		if err != nil {
			return domain.Machine{}, fmt.Errorf("failed to create machine: %w", err)
		}
		return created, nil
	}
	updated, err := r.ds.UpdateMachine(machine)
	if err != nil {
		return domain.Machine{}, fmt.Errorf("failed to update machine: %w", err)
	}
	return updated, nil
}

// FindBySystemID retrieves a machine by its public identifier
func (r *machineRepositoryImpl) FindBySystemID(ctx context.Context, systemID string) (domain.Machine, error) {
	machine, err := r.ds.GetMachineBySystemID(systemID)
	if err != nil {
		return domain.Machine{}, fmt.Errorf("failed to find machine: %w", err)
	}
	if machine == nil {
		return domain.Machine{}, fmt.Errorf("machine %s: %w", systemID, ErrNotFound)
	}
	return *machine, nil
}

// FindAll retrieves all machines
func (r *machineRepositoryImpl) FindAll(ctx context.Context) ([]domain.Machine, error) {
	machines, err := r.ds.ListMachines()
	if err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return machines, nil
}

// DeleteByID removes a machine by its ID
func (r *machineRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	if err := r.ds.DeleteMachine(id); err != nil {
		return fmt.Errorf("failed to delete machine: %w", err)
	}
	return nil
}

// HasSwapFilesystem reports whether a swap filesystem exists on any of the
// machine's block devices or partitions.
func (r *machineRepositoryImpl) HasSwapFilesystem(ctx context.Context, machineID int64) (bool, error) {
	has, err := r.ds.MachineHasSwapFilesystem(machineID)
	if err != nil {
		return false, fmt.Errorf("failed to check swap filesystems: %w", err)
	}
	return has, nil
}

// AddBlockDevice attaches a block device to a machine
func (r *machineRepositoryImpl) AddBlockDevice(ctx context.Context, d domain.BlockDevice) (domain.BlockDevice, error) {
	created, err := r.ds.CreateBlockDevice(d)
	if err != nil {
		return domain.BlockDevice{}, fmt.Errorf("failed to create block device: %w", err)
	}
	return created, nil
}

// AddPartition adds a partition to a block device
func (r *machineRepositoryImpl) AddPartition(ctx context.Context, p domain.Partition) (domain.Partition, error) {
	created, err := r.ds.CreatePartition(p)
	if err != nil {
		return domain.Partition{}, fmt.Errorf("failed to create partition: %w", err)
	}
	return created, nil
}

// AddFilesystem records a filesystem on a device or partition
func (r *machineRepositoryImpl) AddFilesystem(ctx context.Context, f domain.Filesystem) (domain.Filesystem, error) {
	created, err := r.ds.CreateFilesystem(f)
	if err != nil {
		return domain.Filesystem{}, fmt.Errorf("failed to create filesystem: %w", err)
	}
	return created, nil
}
