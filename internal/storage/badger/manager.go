package badger

import (
	"context"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/interfaces"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	res        *storage.Resilience
	site       interfaces.SiteStorage
	page       interfaces.PageStorage
	session    interfaces.SessionStorage
	queue      interfaces.QueueStorage
	change     interfaces.ChangeStorage
	alert      interfaces.AlertStorage
	index      interfaces.IndexStorage
	authorWork interfaces.AuthorWorkStorage
	siteMap    interfaces.SiteMapStorage
	retention  interfaces.RetentionStorage
	migration  interfaces.MigrationStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager. One resilience wrapper
// (retry + circuit breaker) is shared by every store.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	res := storage.NewDefaultResilience("badger", logger)

	manager := &Manager{
		db:     db,
		res:    res,
		logger: logger,
	}
	manager.site = NewSiteStorage(db, res, logger)
	manager.page = NewPageStorage(db, res, logger)
	manager.session = NewSessionStorage(db, res, logger)
	manager.queue = NewQueueStorage(db, res, logger)
	manager.change = NewChangeStorage(db, res, logger)
	manager.alert = NewAlertStorage(db, res, logger)
	manager.index = NewIndexStorage(db, res, logger)
	manager.authorWork = NewAuthorWorkStorage(db, res, logger)
	manager.siteMap = NewSiteMapStorage(db, res, logger)
	manager.retention = NewRetentionStorage(db, res, logger)
	manager.migration = NewMigrationStorage(db, res, logger)

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// SiteStorage returns the Site storage interface
func (m *Manager) SiteStorage() interfaces.SiteStorage {
	return m.site
}

// PageStorage returns the Page storage interface
func (m *Manager) PageStorage() interfaces.PageStorage {
	return m.page
}

// SessionStorage returns the CrawlSession storage interface
func (m *Manager) SessionStorage() interfaces.SessionStorage {
	return m.session
}

// QueueStorage returns the processing queue storage interface
func (m *Manager) QueueStorage() interfaces.QueueStorage {
	return m.queue
}

// ChangeStorage returns the ContentChange storage interface
func (m *Manager) ChangeStorage() interfaces.ChangeStorage {
	return m.change
}

// AlertStorage returns the Alert storage interface
func (m *Manager) AlertStorage() interfaces.AlertStorage {
	return m.alert
}

// IndexStorage returns the ContentIndex storage interface
func (m *Manager) IndexStorage() interfaces.IndexStorage {
	return m.index
}

// AuthorWorkStorage returns the AuthorWork storage interface
func (m *Manager) AuthorWorkStorage() interfaces.AuthorWorkStorage {
	return m.authorWork
}

// SiteMapStorage returns the SiteMap storage interface
func (m *Manager) SiteMapStorage() interfaces.SiteMapStorage {
	return m.siteMap
}

// RetentionStorage returns the retention storage interface
func (m *Manager) RetentionStorage() interfaces.RetentionStorage {
	return m.retention
}

// MigrationStorage returns the migration ledger interface
func (m *Manager) MigrationStorage() interfaces.MigrationStorage {
	return m.migration
}

// WithTransaction runs fn inside a single Badger write transaction. Stores
// use this for multi-collection atomic scopes; everything in fn commits or
// nothing does.
func (m *Manager) WithTransaction(fn func(txn *badgerdb.Txn) error) error {
	if err := m.db.Store().Badger().Update(fn); err != nil {
		return &storage.TransactionError{Cause: err}
	}
	return nil
}

// Ping verifies the database is reachable. It bypasses the resilience
// wrapper so a health probe can never trip the breaker.
func (m *Manager) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		return nil
	})
}

// BreakerState reports the shared circuit breaker state
func (m *Manager) BreakerState() string {
	return m.res.BreakerState()
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
