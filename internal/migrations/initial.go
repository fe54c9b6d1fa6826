package migrations

import (
	"database/sql"
)

// GetInitialMigrations returns all initial migrations
func GetInitialMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_initial_tables",
			Up: func(tx *sql.Tx) error {
				// Machines enrolled with the region.
				_, err := tx.Exec(`
					CREATE TABLE machines (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						system_id TEXT NOT NULL UNIQUE,
						hostname TEXT NOT NULL,
						architecture TEXT NOT NULL,
						osystem TEXT NOT NULL DEFAULT '',
						distro_series TEXT NOT NULL DEFAULT '',
						status TEXT NOT NULL,
						swap_size INTEGER,
						hwe_kernel TEXT NOT NULL DEFAULT '',
						license_key TEXT NOT NULL DEFAULT '',
						power_type TEXT NOT NULL DEFAULT '',
						power_params TEXT NOT NULL DEFAULT '{}',
						owner TEXT NOT NULL DEFAULT '',
						rack_id TEXT NOT NULL DEFAULT '',
						boot_cluster_ip TEXT NOT NULL DEFAULT '',
						netboot INTEGER NOT NULL DEFAULT 1,
						lshw BLOB,
						lldp BLOB,
						modaliases TEXT NOT NULL DEFAULT '[]',
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
					)
				`)
				if err != nil {
					return err
				}

				// Storage layout, used to detect swap-on-device.
				_, err = tx.Exec(`
					CREATE TABLE block_devices (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						machine_id INTEGER NOT NULL,
						name TEXT NOT NULL,
						size_bytes INTEGER NOT NULL DEFAULT 0,
						FOREIGN KEY (machine_id) REFERENCES machines(id) ON DELETE CASCADE
					)
				`)
				if err != nil {
					return err
				}

				_, err = tx.Exec(`
					CREATE TABLE partitions (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						block_device_id INTEGER NOT NULL,
						number INTEGER NOT NULL DEFAULT 1,
						size_bytes INTEGER NOT NULL DEFAULT 0,
						FOREIGN KEY (block_device_id) REFERENCES block_devices(id) ON DELETE CASCADE
					)
				`)
				if err != nil {
					return err
				}

				_, err = tx.Exec(`
					CREATE TABLE filesystems (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						block_device_id INTEGER,
						partition_id INTEGER,
						fstype TEXT NOT NULL,
						mount_point TEXT NOT NULL DEFAULT '',
						FOREIGN KEY (block_device_id) REFERENCES block_devices(id) ON DELETE CASCADE,
						FOREIGN KEY (partition_id) REFERENCES partitions(id) ON DELETE CASCADE
					)
				`)
				if err != nil {
					return err
				}

				// Apt archives and additional repositories. List-valued
				// columns hold JSON arrays.
				_, err = tx.Exec(`
					CREATE TABLE package_repositories (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						name TEXT NOT NULL UNIQUE,
						url TEXT NOT NULL,
						arches TEXT NOT NULL DEFAULT '[]',
						is_default INTEGER NOT NULL DEFAULT 0,
						signing_key TEXT NOT NULL DEFAULT '',
						components TEXT NOT NULL DEFAULT '[]',
						distributions TEXT NOT NULL DEFAULT '[]'
					)
				`)
				if err != nil {
					return err
				}

				// Mutable operator settings.
				_, err = tx.Exec(`
					CREATE TABLE config (
						key TEXT PRIMARY KEY,
						value TEXT NOT NULL
					)
				`)
				if err != nil {
					return err
				}

				// One-time per-machine credentials for install reporting.
				_, err = tx.Exec(`
					CREATE TABLE node_keys (
						machine_id INTEGER PRIMARY KEY,
						consumer_key TEXT NOT NULL,
						token_key TEXT NOT NULL,
						token_secret TEXT NOT NULL,
						FOREIGN KEY (machine_id) REFERENCES machines(id) ON DELETE CASCADE
					)
				`)
				if err != nil {
					return err
				}

				// Boot sources pushed by rack controllers, keyed by rack
				// UUID. Selections are a JSON array.
				_, err = tx.Exec(`
					CREATE TABLE boot_sources (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						rack_id TEXT NOT NULL,
						url TEXT NOT NULL,
						keyring BLOB,
						selections TEXT NOT NULL DEFAULT '[]'
					)
				`)
				if err != nil {
					return err
				}

				// Boot image catalogs reported by rack controllers.
				_, err = tx.Exec(`
					CREATE TABLE reported_boot_images (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						rack_id TEXT NOT NULL,
						architecture TEXT NOT NULL,
						subarchitecture TEXT NOT NULL,
						release TEXT NOT NULL,
						purpose TEXT NOT NULL
					)
				`)
				if err != nil {
					return err
				}

				// Requesters for the node API permission checks.
				_, err = tx.Exec(`
					CREATE TABLE users (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						username TEXT NOT NULL UNIQUE,
						api_key TEXT NOT NULL UNIQUE,
						is_admin INTEGER NOT NULL DEFAULT 0
					)
				`)
				if err != nil {
					return err
				}

				_, err = tx.Exec(`CREATE INDEX idx_machines_system_id ON machines(system_id)`)
				return err
			},
			Down: func(tx *sql.Tx) error {
				// Drop tables in reverse order due to foreign key constraints
				for _, stmt := range []string{
					`DROP TABLE IF EXISTS users`,
					`DROP TABLE IF EXISTS reported_boot_images`,
					`DROP TABLE IF EXISTS boot_sources`,
					`DROP TABLE IF EXISTS node_keys`,
					`DROP TABLE IF EXISTS config`,
					`DROP TABLE IF EXISTS package_repositories`,
					`DROP TABLE IF EXISTS filesystems`,
					`DROP TABLE IF EXISTS partitions`,
					`DROP TABLE IF EXISTS block_devices`,
					`DROP TABLE IF EXISTS machines`,
				} {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
