package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/common"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/ternarybob/bloom/internal/storage/badger"
)

// NewStorageManager opens the configured store. Badger is the only backend.
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	if config.Storage.Type != "badger" && config.Storage.Type != "" {
		return nil, fmt.Errorf("unsupported storage type: %s (only 'badger' is supported)", config.Storage.Type)
	}
	if config.Storage.Badger.Path == "" {
		return nil, fmt.Errorf("storage.badger.path must be set")
	}

	logger.Debug().Str("path", config.Storage.Badger.Path).Msg("Creating badger storage manager")
	return badger.NewManager(logger, &config.Storage.Badger)
}
