package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// archiveDB owns the badgerhold store backing the job archive. Only
// terminal job records land here; the hot job map lives in the workflow
// store, so this database is append-mostly and survives restarts.
type archiveDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// openArchiveDB opens the archive database at the configured path,
// wiping it first when reset_on_startup is set.
func openArchiveDB(logger arbor.ILogger, cfg *common.BadgerConfig) (*archiveDB, error) {
	if cfg.ResetOnStartup {
		if _, err := os.Stat(cfg.Path); err == nil {
			logger.Debug().Str("path", cfg.Path).Msg("Wiping archive database (reset_on_startup=true)")
			if err := os.RemoveAll(cfg.Path); err != nil {
				logger.Warn().Err(err).Str("path", cfg.Path).Msg("Failed to wipe archive database")
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = cfg.Path
	opts.ValueDir = cfg.Path
	opts.Logger = nil // Disable badger's own logger; arbor covers it

	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	db := &archiveDB{store: store, logger: logger}

	// Surviving records from a previous run stay queryable; report them
	// so restart continuity shows up in the log.
	if count, err := store.Count(&models.JobRecord{}, nil); err == nil && count > 0 {
		logger.Info().Str("path", cfg.Path).Int("records", int(count)).Msg("Opened job archive")
	} else {
		logger.Debug().Str("path", cfg.Path).Msg("Opened job archive")
	}

	return db, nil
}

// Store returns the underlying badgerhold store.
func (d *archiveDB) Store() *badgerhold.Store {
	return d.store
}

// Close closes the archive database.
func (d *archiveDB) Close() error {
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}
