package interfaces

import "context"

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	KeyValueStorage() KeyValueStorage

	// LoadVariablesFromFiles seeds the KV store from TOML files in dirPath
	LoadVariablesFromFiles(ctx context.Context, dirPath string) error

	DB() interface{}
	Close() error
}
