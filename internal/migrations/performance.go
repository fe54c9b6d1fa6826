package migrations

import (
	"database/sql"
)

// GetPerformanceMigrations returns performance optimization migrations
func GetPerformanceMigrations() []Migration {
	return []Migration{
		{
			Version: 10,
			Name:    "add_performance_indices",
			Up: func(tx *sql.Tx) error {
				// Add indices for better query performance
				indices := []string{
					"CREATE INDEX IF NOT EXISTS idx_block_devices_machine_id ON block_devices(machine_id)",
					"CREATE INDEX IF NOT EXISTS idx_partitions_block_device_id ON partitions(block_device_id)",
					"CREATE INDEX IF NOT EXISTS idx_filesystems_fstype ON filesystems(fstype)",
					"CREATE INDEX IF NOT EXISTS idx_package_repositories_default ON package_repositories(is_default)",
					"CREATE INDEX IF NOT EXISTS idx_boot_sources_rack_id ON boot_sources(rack_id)",
					"CREATE INDEX IF NOT EXISTS idx_reported_boot_images_rack_id ON reported_boot_images(rack_id)",
					"CREATE INDEX IF NOT EXISTS idx_users_api_key ON users(api_key)",
				}

				for _, indexSQL := range indices {
					if _, err := tx.Exec(indexSQL); err != nil {
						return err
					}
				}

				return nil
			},
			Down: func(tx *sql.Tx) error {
				indices := []string{
					"DROP INDEX IF EXISTS idx_block_devices_machine_id",
					"DROP INDEX IF EXISTS idx_partitions_block_device_id",
					"DROP INDEX IF EXISTS idx_filesystems_fstype",
					"DROP INDEX IF EXISTS idx_package_repositories_default",
					"DROP INDEX IF EXISTS idx_boot_sources_rack_id",
					"DROP INDEX IF EXISTS idx_reported_boot_images_rack_id",
					"DROP INDEX IF EXISTS idx_users_api_key",
				}

				for _, dropSQL := range indices {
					if _, err := tx.Exec(dropSQL); err != nil {
						return err
					}
				}

				return nil
			},
		},
	}
}
