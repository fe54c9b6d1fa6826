package datastore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/migrations"
)

// Datastore wraps the SQLite handle holding the region's model state.
type Datastore struct {
	DB *sql.DB
}

// New creates a new Datastore and runs migrations.
func New(dsn string) (*Datastore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Datastore{DB: db}, nil
}

// migrate runs all database migrations.
func migrate(db *sql.DB) error {
	migrator := migrations.NewMigrator(db)
	for _, migration := range migrations.GetInitialMigrations() {
		migrator.AddMigration(migration)
	}
	for _, migration := range migrations.GetPerformanceMigrations() {
		migrator.AddMigration(migration)
	}
	if err := migrator.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

const machineColumns = `id, system_id, hostname, architecture, osystem, distro_series,
	status, swap_size, hwe_kernel, license_key, power_type, power_params,
	owner, rack_id, boot_cluster_ip, netboot, lshw, lldp, modaliases`

func scanMachine(row interface{ Scan(...any) error }) (*domain.Machine, error) {
	var m domain.Machine
	var status, modaliases string
	err := row.Scan(
		&m.ID, &m.SystemID, &m.Hostname, &m.Architecture, &m.OSystem,
		&m.DistroSeries, &status, &m.SwapSize, &m.HWEKernel, &m.LicenseKey,
		&m.PowerType, &m.PowerParams, &m.Owner, &m.RackID, &m.BootClusterIP,
		&m.Netboot, &m.LSHW, &m.LLDP, &modaliases)
	if err != nil {
		return nil, err
	}
	m.Status = domain.NodeStatus(status)
	if err := json.Unmarshal([]byte(modaliases), &m.Modaliases); err != nil {
		return nil, fmt.Errorf("machine %d has malformed modaliases: %w", m.ID, err)
	}
	return &m, nil
}

// marshalModaliases keeps the column well-formed for machines that have
// not been commissioned yet.
func marshalModaliases(aliases []string) (string, error) {
	if aliases == nil {
		aliases = []string{}
	}
	encoded, err := json.Marshal(aliases)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// CreateMachine inserts a new machine and returns it with its assigned ID.
func (ds *Datastore) CreateMachine(m domain.Machine) (domain.Machine, error) {
	if m.SystemID == "" {
		return domain.Machine{}, fmt.Errorf("machine system_id is required")
	}
	if m.Hostname == "" {
		return domain.Machine{}, fmt.Errorf("machine hostname is required")
	}
	if m.Architecture == "" {
		return domain.Machine{}, fmt.Errorf("machine architecture is required")
	}
	modaliases, err := marshalModaliases(m.Modaliases)
	if err != nil {
		return domain.Machine{}, err
	}
	res, err := ds.DB.Exec(`
		INSERT INTO machines (system_id, hostname, architecture, osystem,
			distro_series, status, swap_size, hwe_kernel, license_key,
			power_type, power_params, owner, rack_id, boot_cluster_ip, netboot,
			lshw, lldp, modaliases)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SystemID, m.Hostname, m.Architecture, m.OSystem, m.DistroSeries,
		string(m.Status), m.SwapSize, m.HWEKernel, m.LicenseKey, m.PowerType,
		m.PowerParams, m.Owner, m.RackID, m.BootClusterIP, m.Netboot,
		m.LSHW, m.LLDP, modaliases)
	if err != nil {
		return domain.Machine{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Machine{}, err
	}
	m.ID = id
	return m, nil
}

// UpdateMachine updates an existing machine's details by ID.
func (ds *Datastore) UpdateMachine(m domain.Machine) (domain.Machine, error) {
	if m.ID == 0 {
		return domain.Machine{}, fmt.Errorf("machine ID is required")
	}
	modaliases, err := marshalModaliases(m.Modaliases)
	if err != nil {
		return domain.Machine{}, err
	}
	_, err = ds.DB.Exec(`
		UPDATE machines SET system_id = ?, hostname = ?, architecture = ?,
			osystem = ?, distro_series = ?, status = ?, swap_size = ?,
			hwe_kernel = ?, license_key = ?, power_type = ?, power_params = ?,
			owner = ?, rack_id = ?, boot_cluster_ip = ?, netboot = ?,
			lshw = ?, lldp = ?, modaliases = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		m.SystemID, m.Hostname, m.Architecture, m.OSystem, m.DistroSeries,
		string(m.Status), m.SwapSize, m.HWEKernel, m.LicenseKey, m.PowerType,
		m.PowerParams, m.Owner, m.RackID, m.BootClusterIP, m.Netboot,
		m.LSHW, m.LLDP, modaliases, m.ID)
	if err != nil {
		return domain.Machine{}, err
	}
	return m, nil
}

// GetMachineBySystemID returns the machine with the given system_id, or
// nil when no such machine exists.
func (ds *Datastore) GetMachineBySystemID(systemID string) (*domain.Machine, error) {
	row := ds.DB.QueryRow(
		"SELECT "+machineColumns+" FROM machines WHERE system_id = ?", systemID)
	m, err := scanMachine(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMachines returns all machines ordered by id.
func (ds *Datastore) ListMachines() ([]domain.Machine, error) {
	rows, err := ds.DB.Query("SELECT " + machineColumns + " FROM machines ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)
	var machines []domain.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		machines = append(machines, *m)
	}
	return machines, rows.Err()
}

// DeleteMachine removes a machine by ID.
func (ds *Datastore) DeleteMachine(id int64) error {
	_, err := ds.DB.Exec("DELETE FROM machines WHERE id = ?", id)
	return err
}

// CreateBlockDevice attaches a block device to a machine.
func (ds *Datastore) CreateBlockDevice(d domain.BlockDevice) (domain.BlockDevice, error) {
	res, err := ds.DB.Exec(
		"INSERT INTO block_devices (machine_id, name, size_bytes) VALUES (?, ?, ?)",
		d.MachineID, d.Name, d.SizeBytes)
	if err != nil {
		return domain.BlockDevice{}, err
	}
	d.ID, err = res.LastInsertId()
	return d, err
}

// CreatePartition adds a partition to a block device.
func (ds *Datastore) CreatePartition(p domain.Partition) (domain.Partition, error) {
	res, err := ds.DB.Exec(
		"INSERT INTO partitions (block_device_id, number, size_bytes) VALUES (?, ?, ?)",
		p.BlockDeviceID, p.Number, p.SizeBytes)
	if err != nil {
		return domain.Partition{}, err
	}
	p.ID, err = res.LastInsertId()
	return p, err
}

// CreateFilesystem records a filesystem on a block device or partition.
func (ds *Datastore) CreateFilesystem(f domain.Filesystem) (domain.Filesystem, error) {
	res, err := ds.DB.Exec(
		"INSERT INTO filesystems (block_device_id, partition_id, fstype, mount_point) VALUES (?, ?, ?, ?)",
		f.BlockDeviceID, f.PartitionID, f.FSType, f.MountPoint)
	if err != nil {
		return domain.Filesystem{}, err
	}
	f.ID, err = res.LastInsertId()
	return f, err
}

// MachineHasSwapFilesystem reports whether any block device or partition
// of the machine carries a swap filesystem.
func (ds *Datastore) MachineHasSwapFilesystem(machineID int64) (bool, error) {
	var count int
	err := ds.DB.QueryRow(`
		SELECT COUNT(*)
		FROM filesystems f
		LEFT JOIN block_devices bd ON f.block_device_id = bd.id
		LEFT JOIN partitions p ON f.partition_id = p.id
		LEFT JOIN block_devices pbd ON p.block_device_id = pbd.id
		WHERE f.fstype = ?
		  AND (bd.machine_id = ? OR pbd.machine_id = ?)`,
		domain.FSTypeSwap, machineID, machineID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreatePackageRepository inserts a repository definition.
func (ds *Datastore) CreatePackageRepository(r domain.PackageRepository) (domain.PackageRepository, error) {
	if r.Name == "" {
		return domain.PackageRepository{}, fmt.Errorf("repository name is required")
	}
	if r.URL == "" {
		return domain.PackageRepository{}, fmt.Errorf("repository url is required")
	}
	arches, err := json.Marshal(r.Arches)
	if err != nil {
		return domain.PackageRepository{}, err
	}
	components, err := json.Marshal(r.Components)
	if err != nil {
		return domain.PackageRepository{}, err
	}
	distributions, err := json.Marshal(r.Distributions)
	if err != nil {
		return domain.PackageRepository{}, err
	}
	res, err := ds.DB.Exec(`
		INSERT INTO package_repositories (name, url, arches, is_default,
			signing_key, components, distributions)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.URL, string(arches), r.Default, r.Key,
		string(components), string(distributions))
	if err != nil {
		return domain.PackageRepository{}, err
	}
	r.ID, err = res.LastInsertId()
	return r, err
}

// ListPackageRepositories returns all repositories ordered by id.
func (ds *Datastore) ListPackageRepositories() ([]domain.PackageRepository, error) {
	rows, err := ds.DB.Query(`
		SELECT id, name, url, arches, is_default, signing_key, components, distributions
		FROM package_repositories ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)
	var repos []domain.PackageRepository
	for rows.Next() {
		var r domain.PackageRepository
		var arches, components, distributions string
		if err := rows.Scan(&r.ID, &r.Name, &r.URL, &arches, &r.Default,
			&r.Key, &components, &distributions); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(arches), &r.Arches); err != nil {
			return nil, fmt.Errorf("repository %d has malformed arches: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(components), &r.Components); err != nil {
			return nil, fmt.Errorf("repository %d has malformed components: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(distributions), &r.Distributions); err != nil {
			return nil, fmt.Errorf("repository %d has malformed distributions: %w", r.ID, err)
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// DeletePackageRepositories removes all repository definitions.
func (ds *Datastore) DeletePackageRepositories() error {
	_, err := ds.DB.Exec("DELETE FROM package_repositories")
	return err
}

// GetConfig returns the value stored under key, or "" when unset.
func (ds *Datastore) GetConfig(key string) (string, error) {
	var value string
	err := ds.DB.QueryRow("SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetConfig stores value under key, replacing any previous value.
func (ds *Datastore) SetConfig(key, value string) error {
	_, err := ds.DB.Exec(`
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetNodeKey returns the credential minted for the machine, or nil when
// none exists yet.
func (ds *Datastore) GetNodeKey(machineID int64) (*domain.NodeKey, error) {
	var k domain.NodeKey
	err := ds.DB.QueryRow(`
		SELECT machine_id, consumer_key, token_key, token_secret
		FROM node_keys WHERE machine_id = ?`, machineID).
		Scan(&k.MachineID, &k.ConsumerKey, &k.TokenKey, &k.TokenSecret)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// CreateNodeKey stores a freshly-minted credential for a machine.
func (ds *Datastore) CreateNodeKey(k domain.NodeKey) error {
	_, err := ds.DB.Exec(`
		INSERT INTO node_keys (machine_id, consumer_key, token_key, token_secret)
		VALUES (?, ?, ?, ?)`,
		k.MachineID, k.ConsumerKey, k.TokenKey, k.TokenSecret)
	return err
}

// ReplaceBootSources replaces the boot sources recorded for a rack.
func (ds *Datastore) ReplaceBootSources(rackID string, sources []BootSourceRow) error {
	tx, err := ds.DB.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.Exec("DELETE FROM boot_sources WHERE rack_id = ?", rackID); err != nil {
		return err
	}
	for _, s := range sources {
		if _, err := tx.Exec(
			"INSERT INTO boot_sources (rack_id, url, keyring, selections) VALUES (?, ?, ?, ?)",
			rackID, s.URL, s.Keyring, s.Selections); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListBootSources returns the boot sources recorded for a rack.
func (ds *Datastore) ListBootSources(rackID string) ([]BootSourceRow, error) {
	rows, err := ds.DB.Query(
		"SELECT url, keyring, selections FROM boot_sources WHERE rack_id = ? ORDER BY id ASC", rackID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)
	var sources []BootSourceRow
	for rows.Next() {
		var s BootSourceRow
		if err := rows.Scan(&s.URL, &s.Keyring, &s.Selections); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// BootSourceRow is a boot source as stored; selections hold JSON.
type BootSourceRow struct {
	URL        string
	Keyring    []byte
	Selections string
}

// ReplaceReportedBootImages replaces a rack's reported image catalog.
func (ds *Datastore) ReplaceReportedBootImages(rackID string, images []domain.BootImage) error {
	tx, err := ds.DB.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.Exec("DELETE FROM reported_boot_images WHERE rack_id = ?", rackID); err != nil {
		return err
	}
	for _, img := range images {
		if _, err := tx.Exec(`
			INSERT INTO reported_boot_images (rack_id, architecture, subarchitecture, release, purpose)
			VALUES (?, ?, ?, ?, ?)`,
			rackID, img.Architecture, img.SubArchitecture, img.Release, img.Purpose); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetUserByAPIKey returns the user owning the key, or nil when unknown.
func (ds *Datastore) GetUserByAPIKey(apiKey string) (*domain.User, error) {
	var u domain.User
	err := ds.DB.QueryRow(
		"SELECT id, username, api_key, is_admin FROM users WHERE api_key = ?", apiKey).
		Scan(&u.ID, &u.Username, &u.APIKey, &u.IsAdmin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user for the node API permission checks.
func (ds *Datastore) CreateUser(u domain.User) (domain.User, error) {
	res, err := ds.DB.Exec(
		"INSERT INTO users (username, api_key, is_admin) VALUES (?, ?, ?)",
		u.Username, u.APIKey, u.IsAdmin)
	if err != nil {
		return domain.User{}, err
	}
	u.ID, err = res.LastInsertId()
	return u, err
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		log.Printf("failed to close rows: %v", err)
	}
}
