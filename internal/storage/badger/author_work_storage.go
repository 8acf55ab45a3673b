package badger

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

// AuthorWorkStorage implements interfaces.AuthorWorkStorage on badgerhold
type AuthorWorkStorage struct {
	db     *BadgerDB
	res    *storage.Resilience
	logger arbor.ILogger
}

// NewAuthorWorkStorage creates a new author work storage instance
func NewAuthorWorkStorage(db *BadgerDB, res *storage.Resilience, logger arbor.ILogger) *AuthorWorkStorage {
	return &AuthorWorkStorage{db: db, res: res, logger: logger}
}

// CreateAuthorWork inserts a work record. An external WorkID, when present,
// must be globally unique; a matching (author, title, site) triple is logged
// as a likely duplicate but not rejected.
func (s *AuthorWorkStorage) CreateAuthorWork(ctx context.Context, work *models.AuthorWork) (string, error) {
	if work == nil {
		return "", storage.NewValidationError("work", "work is required")
	}
	if strings.TrimSpace(work.AuthorName) == "" {
		return "", storage.NewValidationError("author_name", "author name is required")
	}
	if strings.TrimSpace(work.WorkTitle) == "" {
		return "", storage.NewValidationError("work_title", "work title is required")
	}
	if err := common.ValidateID(common.SiteIDPrefix, work.SiteID); err != nil {
		return "", &storage.ValidationError{Field: "site_id", Cause: err}
	}
	if err := common.ValidateID(common.PageIDPrefix, work.PageID); err != nil {
		return "", &storage.ValidationError{Field: "page_id", Cause: err}
	}

	var dupErr error
	err := s.res.Execute(ctx, "create_author_work", func() error {
		dupErr = nil
		if work.WorkID != "" {
			var existing models.AuthorWork
			err := s.db.Store().FindOne(&existing, badgerhold.Where("WorkID").Eq(work.WorkID).Index("WorkID"))
			if err == nil {
				dupErr = storage.NewDuplicateError("author_work", work.WorkID)
				return nil
			}
			if err != badgerhold.ErrNotFound {
				return err
			}
		}

		var candidates []models.AuthorWork
		if err := s.db.Store().Find(&candidates,
			badgerhold.Where("AuthorName").Eq(work.AuthorName).Index("AuthorName").And("SiteID").Eq(work.SiteID)); err != nil {
			return err
		}
		for i := range candidates {
			if strings.EqualFold(candidates[i].WorkTitle, work.WorkTitle) {
				s.logger.Warn().
					Str("author", work.AuthorName).
					Str("title", work.WorkTitle).
					Str("site_id", work.SiteID).
					Str("existing_id", candidates[i].ID).
					Msg("Possible duplicate work for author on site")
				break
			}
		}

		now := time.Now().UTC()
		work.ID = common.NewAuthorWorkID()
		work.CreatedAt = now
		work.UpdatedAt = now
		return s.db.Store().Insert(work.ID, work)
	})
	if err != nil {
		return "", err
	}
	if dupErr != nil {
		return "", dupErr
	}
	return work.ID, nil
}

// GetAuthorWork returns one work by id
func (s *AuthorWorkStorage) GetAuthorWork(ctx context.Context, id string) (*models.AuthorWork, error) {
	if err := common.ValidateID(common.AuthorWorkIDPrefix, id); err != nil {
		return nil, &storage.ValidationError{Field: "work_id", Cause: err}
	}

	var work models.AuthorWork
	var found bool
	err := s.res.Execute(ctx, "get_author_work", func() error {
		found = false
		err := s.db.Store().Get(id, &work)
		if err == badgerhold.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.NewNotFoundError("author_work", id)
	}
	return &work, nil
}

// GetWorkByWorkID resolves a work through its external catalog identifier
func (s *AuthorWorkStorage) GetWorkByWorkID(ctx context.Context, workID string) (*models.AuthorWork, error) {
	if strings.TrimSpace(workID) == "" {
		return nil, storage.NewValidationError("work_id", "work id is required")
	}

	var work models.AuthorWork
	var found bool
	err := s.res.Execute(ctx, "get_work_by_work_id", func() error {
		found = false
		err := s.db.Store().FindOne(&work, badgerhold.Where("WorkID").Eq(workID).Index("WorkID"))
		if err == badgerhold.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.NewNotFoundError("author_work", workID)
	}
	return &work, nil
}

// GetWorksByAuthor returns every work by an author, case-insensitive
func (s *AuthorWorkStorage) GetWorksByAuthor(ctx context.Context, author string) ([]*models.AuthorWork, error) {
	needle := strings.ToLower(strings.TrimSpace(author))
	if needle == "" {
		return nil, storage.NewValidationError("author", "author is required")
	}

	var works []*models.AuthorWork
	err := s.res.Execute(ctx, "get_works_by_author", func() error {
		works = nil
		var all []models.AuthorWork
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			if strings.ToLower(all[i].AuthorName) == needle {
				works = append(works, &all[i])
			}
		}
		return nil
	})
	return works, err
}

// GetWorksByYearRange filters publication dates on astronomical years, so
// 1 BCE is year 0 and 380 BCE is year -379. Works without a date are skipped.
func (s *AuthorWorkStorage) GetWorksByYearRange(ctx context.Context, fromYear, toYear int) ([]*models.AuthorWork, error) {
	if fromYear > toYear {
		return nil, storage.NewValidationError("year_range", "from year is after to year")
	}

	var works []*models.AuthorWork
	err := s.res.Execute(ctx, "get_works_by_year_range", func() error {
		works = nil
		var all []models.AuthorWork
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			date := all[i].PublicationDate
			if date == nil {
				continue
			}
			if date.Year >= fromYear && date.Year <= toYear {
				works = append(works, &all[i])
			}
		}
		return nil
	})
	return works, err
}
