// Package testing provides shared test helpers: migrated throwaway
// databases, world fixtures and mocks for the external capabilities.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/skourtis/boomtown/internal/database"
)

// NewTestDB creates a file-backed SQLite database with the schema for the
// given name ("auth", "game" or "social") applied. The cleanup function is
// registered with t automatically.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database %s: %v", name, err)
		}
		if err := os.Remove(tmpPath); err != nil {
			t.Logf("Warning: failed to remove %s: %v", tmpPath, err)
		}
	})
	return db
}
