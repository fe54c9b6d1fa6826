package testutil

import (
	"fmt"
	"testing"

	"github.com/lyubomir-popov/maas/internal/datastore"
)

// NewTestDSN generates a DSN for an in-memory SQLite database for testing purposes.
func NewTestDSN(testName string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", testName)
}

// SetupTestDatastore creates a migrated in-memory datastore for a test.
func SetupTestDatastore(t *testing.T, testName string) (*datastore.Datastore, func()) {
	t.Helper()
	ds, err := datastore.New(NewTestDSN(testName))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	cleanup := func() {
		_ = ds.DB.Close()
	}
	return ds, cleanup
}
