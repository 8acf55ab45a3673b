package migrate

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/models"
	badgerstore "github.com/scriptorium-dev/scriptorium/internal/storage/badger"
)

func builtinMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "seed default retention policies",
			Up:          seedRetentionPolicies,
		},
		{
			Version:     2,
			Description: "backfill normalized page urls",
			Up:          backfillNormalizedPageURLs,
		},
	}
}

func holdStore(mgr *badgerstore.Manager) (*badgerhold.Store, error) {
	store, ok := mgr.DB().(*badgerhold.Store)
	if !ok {
		return nil, fmt.Errorf("unexpected database handle %T", mgr.DB())
	}
	return store, nil
}

// seedRetentionPolicies writes the built-in policy set inside the migration
// transaction. Policies already holding the same settings are left alone.
func seedRetentionPolicies(ctx context.Context, mgr *badgerstore.Manager, txn *badgerdb.Txn) error {
	store, err := holdStore(mgr)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for collection, cfg := range common.DefaultRetentionPolicies() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var existing models.RetentionPolicy
		err := store.TxGet(txn, collection, &existing)
		if err == nil {
			if existing.TTLField == cfg.TTLField &&
				existing.RetentionDays == cfg.RetentionDays &&
				existing.ArchiveEnabled == cfg.ArchiveEnabled &&
				existing.ArchiveAfterDays == cfg.ArchiveAfterDays &&
				existing.CompressionEnabled == cfg.CompressionEnabled {
				continue
			}
			existing.TTLField = cfg.TTLField
			existing.RetentionDays = cfg.RetentionDays
			existing.ArchiveEnabled = cfg.ArchiveEnabled
			existing.ArchiveAfterDays = cfg.ArchiveAfterDays
			existing.CompressionEnabled = cfg.CompressionEnabled
			existing.UpdatedAt = now
			if err := store.TxUpdate(txn, collection, &existing); err != nil {
				return fmt.Errorf("update policy for %s: %w", collection, err)
			}
			continue
		}
		if err != badgerhold.ErrNotFound {
			return fmt.Errorf("read policy for %s: %w", collection, err)
		}

		policy := models.RetentionPolicy{
			Collection:         collection,
			TTLField:           cfg.TTLField,
			RetentionDays:      cfg.RetentionDays,
			ArchiveEnabled:     cfg.ArchiveEnabled,
			ArchiveAfterDays:   cfg.ArchiveAfterDays,
			CompressionEnabled: cfg.CompressionEnabled,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := store.TxInsert(txn, collection, &policy); err != nil {
			return fmt.Errorf("seed policy for %s: %w", collection, err)
		}
	}
	return nil
}

// backfillNormalizedPageURLs rewrites pages stored before URL normalization
// was enforced at create time. Pages that normalize to their stored form are
// untouched.
func backfillNormalizedPageURLs(ctx context.Context, mgr *badgerstore.Manager, txn *badgerdb.Txn) error {
	store, err := holdStore(mgr)
	if err != nil {
		return err
	}

	var pages []models.Page
	if err := store.TxFind(txn, &pages, nil); err != nil {
		return fmt.Errorf("load pages: %w", err)
	}

	for i := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		normalized, err := common.NormalizePageURL(pages[i].URL)
		if err != nil || normalized == pages[i].URL {
			continue
		}
		pages[i].URL = normalized
		if err := store.TxUpdate(txn, pages[i].ID, &pages[i]); err != nil {
			return fmt.Errorf("rewrite page %s: %w", pages[i].ID, err)
		}
	}
	return nil
}
