package testsupport

import (
	"path/filepath"
	"testing"

	"midisession/internal/idstore"
)

// MustOpenIDStore opens an idstore in a temp directory and registers cleanup.
func MustOpenIDStore(t testing.TB) *idstore.Store {
	t.Helper()

	store, err := idstore.Open(filepath.Join(t.TempDir(), "ids.db"), nil)
	if err != nil {
		t.Fatalf("idstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
