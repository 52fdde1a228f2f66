package badger

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/common"
	"github.com/timshannon/badgerhold/v4"
)

// ErrDatabaseLocked is returned when another process holds the data directory,
// typically bloom and bloom-mcp pointed at the same storage.badger.path.
var ErrDatabaseLocked = errors.New("badger data directory is in use by another process")

// valueLogFileSize keeps the on-disk footprint small; bloom stores a handful of keys
const valueLogFileSize = 16 << 20

// BadgerDB owns the badgerhold store for one data directory
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	path   string
}

// NewBadgerDB opens (and with reset_on_startup, first wipes) the database at config.Path
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		logger.Debug().Str("path", config.Path).Msg("Deleting existing database (reset_on_startup=true)")
		if err := os.RemoveAll(config.Path); err != nil {
			logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to delete database directory")
		}
	}

	if err := os.MkdirAll(config.Path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Options = options.Options.
		WithDir(config.Path).
		WithValueDir(config.Path).
		WithValueLogFileSize(valueLogFileSize).
		WithLogger(nil) // arbor does the logging

	store, err := badgerhold.Open(options)
	if err != nil {
		if strings.Contains(err.Error(), "directory lock") {
			logger.Error().Str("path", config.Path).Msg("Badger data directory is locked by another process")
			return nil, fmt.Errorf("%w: %s", ErrDatabaseLocked, config.Path)
		}
		logger.Error().Err(err).Str("path", config.Path).Msg("Failed to open badger database")
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Badger database opened")

	return &BadgerDB{
		store:  store,
		logger: logger,
		path:   config.Path,
	}, nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Path returns the data directory
func (b *BadgerDB) Path() string {
	return b.path
}

func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	b.logger.Debug().Str("path", b.path).Msg("Closing badger database")
	return b.store.Close()
}
