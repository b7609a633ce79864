package core

import (
	"path/filepath"
	"testing"

	"experimentcore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("EXPERIMENTCORE_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store == nil {
		t.Fatal("expected store")
	}
}

func TestOpenPersistentStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.db")
	t.Setenv("EXPERIMENTCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("EXPERIMENTCORE_SQLITE_PATH", path)
	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ss, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if ss.Path() != path {
		t.Fatalf("unexpected path %q", ss.Path())
	}
	if err := ss.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("EXPERIMENTCORE_STORAGE_DRIVER", "bogus")
	if _, err := OpenPersistentStore(NewDefaultRulesEngine()); err == nil {
		t.Fatal("expected unknown driver error")
	}
}
