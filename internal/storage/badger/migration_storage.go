package badger

import (
	"context"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

// MigrationStorage implements interfaces.MigrationStorage on badgerhold.
// It only reads the ledger; rows are written and removed inside each
// migration's own transaction so a step and its record commit together.
type MigrationStorage struct {
	db     *BadgerDB
	res    *storage.Resilience
	logger arbor.ILogger
}

// NewMigrationStorage creates a new migration ledger storage instance
func NewMigrationStorage(db *BadgerDB, res *storage.Resilience, logger arbor.ILogger) *MigrationStorage {
	return &MigrationStorage{db: db, res: res, logger: logger}
}

// CurrentVersion returns the highest applied migration version, 0 when none
func (s *MigrationStorage) CurrentVersion(ctx context.Context) (int, error) {
	records, err := s.AppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return records[len(records)-1].Version, nil
}

// AppliedMigrations returns the ledger ordered by version ascending
func (s *MigrationStorage) AppliedMigrations(ctx context.Context) ([]*models.MigrationRecord, error) {
	var records []*models.MigrationRecord
	err := s.res.Execute(ctx, "applied_migrations", func() error {
		records = nil
		var all []models.MigrationRecord
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			records = append(records, &all[i])
		}
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Version < records[j].Version
		})
		return nil
	})
	return records, err
}
