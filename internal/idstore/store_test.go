package idstore_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"midisession/internal/idstore"
	"midisession/internal/manager"
	"midisession/internal/testsupport"
	"midisession/internal/transport"
)

var _ manager.IDCell = (*idstore.Cell)(nil)

func TestPutGetRoundTripAndUpsert(t *testing.T) {
	store := testsupport.MustOpenIDStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "keys", transport.Input); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%t err=%v", ok, err)
	}
	if err := store.Put(ctx, "keys", transport.Input, 4242); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "keys", transport.Input, 5151); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if err := store.Put(ctx, "keys", transport.Output, 6000); err != nil {
		t.Fatalf("Put output: %v", err)
	}

	id, ok, err := store.Get(ctx, "keys", transport.Input)
	if err != nil || !ok || id != 5151 {
		t.Fatalf("Get = %d %t %v, want 5151", id, ok, err)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected separate rows per direction, got %+v", entries)
	}
	if entries[0].UpdatedAt.IsZero() {
		t.Fatal("expected updated_at to be recorded")
	}
}

func TestPutRejectsInvalidID(t *testing.T) {
	store := testsupport.MustOpenIDStore(t)
	if err := store.Put(context.Background(), "keys", transport.Input, transport.InvalidUniqueID); err == nil {
		t.Fatal("expected error for invalid id")
	}
}

func TestDelete(t *testing.T) {
	store := testsupport.MustOpenIDStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, "pads", transport.Output, 77); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, "pads", transport.Output); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "pads", transport.Output); ok {
		t.Fatal("expected row to be gone")
	}
}

func TestCellPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.db")

	store, err := idstore.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cell := store.Cell("clock", transport.Output)
	if _, ok := cell.Load(); ok {
		t.Fatal("expected empty cell")
	}
	if err := cell.Store(9001); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := idstore.Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if id, ok := reopened.Cell("clock", transport.Output).Load(); !ok || id != 9001 {
		t.Fatalf("expected 9001 after reopen, got %d (%t)", id, ok)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.db")
	store, err := idstore.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := idstore.Open(path, nil); !errors.Is(err, idstore.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
