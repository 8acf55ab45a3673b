package migrate

import (
	"context"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/scriptorium-dev/scriptorium/internal/models"
	badgerstore "github.com/scriptorium-dev/scriptorium/internal/storage/badger"
)

// Migration is one ordered schema-evolution step. Up and Down receive the
// transaction their step runs in; every write they make through it commits
// together with the ledger row, or not at all.
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, mgr *badgerstore.Manager, txn *badgerdb.Txn) error
	Down        func(ctx context.Context, mgr *badgerstore.Manager, txn *badgerdb.Txn) error
}

// Migrator applies registered migrations in version order, each inside one
// atomic scope with its ledger record, and stops at the first failure.
type Migrator struct {
	mgr        *badgerstore.Manager
	logger     arbor.ILogger
	migrations []Migration
}

// NewMigrator creates a migrator with the built-in migration set
func NewMigrator(mgr *badgerstore.Manager, logger arbor.ILogger) *Migrator {
	return &Migrator{mgr: mgr, logger: logger, migrations: builtinMigrations()}
}

// Register adds a migration; duplicate versions are rejected
func (m *Migrator) Register(migration Migration) error {
	if migration.Version <= 0 {
		return fmt.Errorf("migration version must be positive, got %d", migration.Version)
	}
	if migration.Up == nil {
		return fmt.Errorf("migration %d has no up step", migration.Version)
	}
	for _, existing := range m.migrations {
		if existing.Version == migration.Version {
			return fmt.Errorf("migration version %d already registered", migration.Version)
		}
	}
	m.migrations = append(m.migrations, migration)
	return nil
}

func (m *Migrator) store() (*badgerhold.Store, error) {
	store, ok := m.mgr.DB().(*badgerhold.Store)
	if !ok {
		return nil, fmt.Errorf("unexpected database handle %T", m.mgr.DB())
	}
	return store, nil
}

// Apply runs every registered migration above the current ledger version, in
// ascending order. Each step's writes and its ledger row share one
// transaction, so a failed step aborts cleanly and leaves the ledger at the
// last success.
func (m *Migrator) Apply(ctx context.Context) (int, error) {
	store, err := m.store()
	if err != nil {
		return 0, err
	}
	current, err := m.mgr.MigrationStorage().CurrentVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read migration ledger: %w", err)
	}

	pending := make([]Migration, 0, len(m.migrations))
	for _, migration := range m.migrations {
		if migration.Version > current {
			pending = append(pending, migration)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})

	applied := 0
	for _, migration := range pending {
		m.logger.Info().Int("version", migration.Version).Str("description", migration.Description).Msg("Applying migration")
		err := m.mgr.WithTransaction(func(txn *badgerdb.Txn) error {
			if err := migration.Up(ctx, m.mgr, txn); err != nil {
				return err
			}
			record := models.MigrationRecord{
				Version:     migration.Version,
				Description: migration.Description,
				AppliedAt:   time.Now().UTC(),
			}
			return store.TxInsert(txn, migration.Version, &record)
		})
		if err != nil {
			return applied, fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
		applied++
	}

	if applied > 0 {
		m.logger.Info().Int("applied", applied).Msg("Migrations applied")
	} else {
		m.logger.Debug().Int("current", current).Msg("Migration ledger already current")
	}
	return applied, nil
}

// Rollback reverts the highest applied migration, when it has a down step.
// The down writes and the ledger row removal share one transaction.
func (m *Migrator) Rollback(ctx context.Context) error {
	store, err := m.store()
	if err != nil {
		return err
	}
	current, err := m.mgr.MigrationStorage().CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("read migration ledger: %w", err)
	}
	if current == 0 {
		return fmt.Errorf("no applied migrations to roll back")
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == current {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %d is recorded but not registered", current)
	}
	if target.Down == nil {
		return fmt.Errorf("migration %d (%s) has no down step", target.Version, target.Description)
	}

	m.logger.Warn().Int("version", target.Version).Str("description", target.Description).Msg("Rolling back migration")
	err = m.mgr.WithTransaction(func(txn *badgerdb.Txn) error {
		if err := target.Down(ctx, m.mgr, txn); err != nil {
			return err
		}
		return store.TxDelete(txn, target.Version, &models.MigrationRecord{})
	})
	if err != nil {
		return fmt.Errorf("rollback of migration %d failed: %w", target.Version, err)
	}
	return nil
}
