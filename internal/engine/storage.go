package engine

import (
	"fmt"
	"os"

	"applycore/internal/infra/persistence/memory"
	"applycore/internal/infra/persistence/postgres"
	"applycore/internal/infra/persistence/sqlite"
	"applycore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// PersistentStore is re-exported so call sites configuring the engine do not
// import pkg/domain just for the storage contract.
type PersistentStore = domain.PersistentStore

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	APPLYCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	APPLYCORE_SQLITE_PATH: path to sqlite file (default ./applycore.db)
//	APPLYCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore() (PersistentStore, error) {
	driver := os.Getenv("APPLYCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		path := os.Getenv("APPLYCORE_SQLITE_PATH")
		return sqlite.NewStore(path)
	case StoragePostgres:
		dsn := os.Getenv("APPLYCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
