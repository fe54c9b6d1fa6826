package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/testutil"
)

func testMachine() domain.Machine {
	return domain.Machine{
		SystemID:      "node4abc",
		Hostname:      "mach",
		Architecture:  "amd64/generic",
		OSystem:       "ubuntu",
		DistroSeries:  "xenial",
		Status:        domain.StatusDeploying,
		PowerType:     "ipmi",
		RackID:        "rack-1",
		BootClusterIP: "192.168.5.2",
		Netboot:       true,
	}
}

func TestMachineRepositorySaveAndFind(t *testing.T) {
	ds, cleanup := testutil.SetupTestDatastore(t, "machine_save_find")
	defer cleanup()
	repo := NewMachineRepository(ds)
	ctx := context.Background()

	created, err := repo.Save(ctx, testMachine())
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	found, err := repo.FindBySystemID(ctx, "node4abc")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "mach", found.Hostname)
	assert.True(t, found.Netboot)
}

func TestMachineRepositorySaveUpdates(t *testing.T) {
	ds, cleanup := testutil.SetupTestDatastore(t, "machine_save_update")
	defer cleanup()
	repo := NewMachineRepository(ds)
	ctx := context.Background()

	created, err := repo.Save(ctx, testMachine())
	require.NoError(t, err)

	created.Netboot = false
	created.Status = domain.StatusDeployed
	updated, err := repo.Save(ctx, created)
	require.NoError(t, err)
	assert.False(t, updated.Netboot)

	found, err := repo.FindBySystemID(ctx, "node4abc")
	require.NoError(t, err)
	assert.False(t, found.Netboot)
	assert.Equal(t, domain.StatusDeployed, found.Status)
}

func TestMachineRepositoryPersistsModaliases(t *testing.T) {
	ds, cleanup := testutil.SetupTestDatastore(t, "machine_modaliases")
	defer cleanup()
	repo := NewMachineRepository(ds)
	ctx := context.Background()

	m := testMachine()
	m.Modaliases = []string{
		"acpi:PNP0A08:",
		"pci:v00001590d00000047sv00001590sd00000047bc01sc04i00",
	}
	_, err := repo.Save(ctx, m)
	require.NoError(t, err)

	found, err := repo.FindBySystemID(ctx, "node4abc")
	require.NoError(t, err)
	assert.Equal(t, m.Modaliases, found.Modaliases)
}

func TestMachineRepositoryFindBySystemIDNotFound(t *testing.T) {
	ds, cleanup := testutil.SetupTestDatastore(t, "machine_not_found")
	defer cleanup()
	repo := NewMachineRepository(ds)

	_, err := repo.FindBySystemID(context.Background(), "nodeXYZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMachineRepositoryDeleteByID(t *testing.T) {
	ds, cleanup := testutil.SetupTestDatastore(t, "machine_delete")
	defer cleanup()
	repo := NewMachineRepository(ds)
	ctx := context.Background()

	created, err := repo.Save(ctx, testMachine())
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByID(ctx, created.ID))

	_, err = repo.FindBySystemID(ctx, "node4abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMachineRepositoryHasSwapFilesystem(t *testing.T) {
	ds, cleanup := testutil.SetupTestDatastore(t, "machine_swap")
	defer cleanup()
	repo := NewMachineRepository(ds)
	ctx := context.Background()

	m, err := repo.Save(ctx, testMachine())
	require.NoError(t, err)

	has, err := repo.HasSwapFilesystem(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, has)

	disk, err := repo.AddBlockDevice(ctx, domain.BlockDevice{
		MachineID: m.ID,
		Name:      "sda",
		SizeBytes: 500 * 1000 * 1000 * 1000,
	})
	require.NoError(t, err)
	part, err := repo.AddPartition(ctx, domain.Partition{
		BlockDeviceID: disk.ID,
		Number:        1,
		SizeBytes:     8 * 1000 * 1000 * 1000,
	})
	require.NoError(t, err)
	_, err = repo.AddFilesystem(ctx, domain.Filesystem{
		PartitionID: &part.ID,
		FSType:      domain.FSTypeSwap,
	})
	require.NoError(t, err)

	has, err = repo.HasSwapFilesystem(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestMachineRepositoryHasSwapFilesystemOnWholeDisk(t *testing.T) {
	ds, cleanup := testutil.SetupTestDatastore(t, "machine_swap_disk")
	defer cleanup()
	repo := NewMachineRepository(ds)
	ctx := context.Background()

	m, err := repo.Save(ctx, testMachine())
	require.NoError(t, err)
	disk, err := repo.AddBlockDevice(ctx, domain.BlockDevice{
		MachineID: m.ID,
		Name:      "sdb",
		SizeBytes: 8 * 1000 * 1000 * 1000,
	})
	require.NoError(t, err)
	_, err = repo.AddFilesystem(ctx, domain.Filesystem{
		BlockDeviceID: &disk.ID,
		FSType:        domain.FSTypeSwap,
	})
	require.NoError(t, err)

	has, err := repo.HasSwapFilesystem(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestMachineRepositoryIgnoresOtherMachinesSwap(t *testing.T) {
	ds, cleanup := testutil.SetupTestDatastore(t, "machine_swap_other")
	defer cleanup()
	repo := NewMachineRepository(ds)
	ctx := context.Background()

	withSwap, err := repo.Save(ctx, testMachine())
	require.NoError(t, err)
	other := testMachine()
	other.SystemID = "node5def"
	without, err := repo.Save(ctx, other)
	require.NoError(t, err)

	disk, err := repo.AddBlockDevice(ctx, domain.BlockDevice{MachineID: withSwap.ID, Name: "sda", SizeBytes: 1000})
	require.NoError(t, err)
	_, err = repo.AddFilesystem(ctx, domain.Filesystem{BlockDeviceID: &disk.ID, FSType: domain.FSTypeSwap})
	require.NoError(t, err)

	has, err := repo.HasSwapFilesystem(ctx, without.ID)
	require.NoError(t, err)
	assert.False(t, has)
}
