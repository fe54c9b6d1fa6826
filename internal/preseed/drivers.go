package preseed

import (
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// DriverEntry describes one third-party driver: the kernel module and
// package to install, and the modalias patterns of the hardware it
// serves. Patterns use shell-style globs.
type DriverEntry struct {
	Module     string   `yaml:"module"`
	Package    string   `yaml:"package"`
	Modaliases []string `yaml:"modaliases"`
}

// DriverDB is the driver database matched against the modaliases a
// machine reported during commissioning. The zero value matches nothing.
type DriverDB []DriverEntry

// driverDBFile is the on-disk shape of the driver database.
type driverDBFile struct {
	Drivers []DriverEntry `yaml:"drivers"`
}

// LoadDriverDB reads the driver database from path. A missing file is
// not an error: driver detection is optional and most installs run
// without one.
func LoadDriverDB(dbPath string) (DriverDB, error) {
	raw, err := os.ReadFile(dbPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read driver database: %w", err)
	}
	var file driverDBFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse driver database %s: %w", dbPath, err)
	}
	return DriverDB(file.Drivers), nil
}

// Match returns the module and package of the first driver whose
// patterns match any of the machine's modaliases, or empty strings when
// none do. Entry order in the database is the tie-breaker.
func (db DriverDB) Match(modaliases []string) (module, pkg string) {
	for _, entry := range db {
		for _, pattern := range entry.Modaliases {
			for _, alias := range modaliases {
				ok, err := path.Match(pattern, alias)
				if err != nil {
					// Malformed pattern; skip it rather than fail
					// composition for every machine.
					break
				}
				if ok {
					return entry.Module, entry.Package
				}
			}
		}
	}
	return "", ""
}
