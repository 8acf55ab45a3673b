package badger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

// Automatic retry backoff: 60s base doubling per retry, capped at one hour.
const (
	retryBaseDelay = 60 * time.Second
	retryMaxDelay  = 3600 * time.Second
	defaultRetries = 3
)

// QueueStorage implements interfaces.QueueStorage on badgerhold
type QueueStorage struct {
	db     *BadgerDB
	res    *storage.Resilience
	logger arbor.ILogger
	mu     sync.Mutex // serializes the find-and-lease so a task is handed to exactly one worker
}

// NewQueueStorage creates a new processing queue storage instance
func NewQueueStorage(db *BadgerDB, res *storage.Resilience, logger arbor.ILogger) *QueueStorage {
	return &QueueStorage{db: db, res: res, logger: logger}
}

// EnqueueTask validates and inserts a pending task
func (s *QueueStorage) EnqueueTask(ctx context.Context, task *models.ProcessingTask) (string, error) {
	if task == nil {
		return "", storage.NewValidationError("task", "task is required")
	}
	if strings.TrimSpace(task.TaskType) == "" {
		return "", storage.NewValidationError("task_type", "task type is required")
	}
	if task.Priority < models.TaskPriorityMin || task.Priority > models.TaskPriorityMax {
		return "", storage.NewValidationError("priority", fmt.Sprintf("priority %d out of range %d..%d", task.Priority, models.TaskPriorityMin, models.TaskPriorityMax))
	}
	if err := models.ValidateTaskPayload(task.Payload); err != nil {
		return "", &storage.ValidationError{Field: "payload", Cause: err}
	}
	for _, dep := range task.Dependencies {
		if err := common.ValidateID(common.TaskIDPrefix, dep); err != nil {
			return "", &storage.ValidationError{Field: "dependencies", Cause: err}
		}
	}

	now := time.Now().UTC()
	task.ID = common.NewTaskID()
	task.Payload = storage.SanitizeMap(task.Payload)
	task.Status = models.TaskStatusPending
	if task.ScheduledAt.IsZero() {
		task.ScheduledAt = now
	}
	if task.MaxRetries <= 0 {
		task.MaxRetries = defaultRetries
	}
	task.RetryCount = 0
	task.LastUpdate = now
	task.CreatedAt = now
	task.UpdatedAt = now

	err := s.res.Execute(ctx, "enqueue_task", func() error {
		return s.db.Store().Insert(task.ID, task)
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug().Str("task_id", task.ID).Str("task_type", task.TaskType).Int("priority", task.Priority).Msg("Task enqueued")
	return task.ID, nil
}

// GetTask returns one task by id
func (s *QueueStorage) GetTask(ctx context.Context, id string) (*models.ProcessingTask, error) {
	if err := common.ValidateID(common.TaskIDPrefix, id); err != nil {
		return nil, &storage.ValidationError{Field: "task_id", Cause: err}
	}

	var task models.ProcessingTask
	var found bool
	err := s.res.Execute(ctx, "get_task", func() error {
		found = false
		err := s.db.Store().Get(id, &task)
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
		return nil, storage.NewNotFoundError("task", id)
	}
	return &task, nil
}

// DequeueNextTask atomically leases the highest-ordered eligible task: it is
// pending, due, and all its dependencies are completed. Order is priority
// descending, then created_at ascending, then id. Returns nil when nothing
// is eligible.
func (s *QueueStorage) DequeueNextTask(ctx context.Context, taskType string) (*models.ProcessingTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var leased *models.ProcessingTask
	err := s.res.Execute(ctx, "dequeue_next_task", func() error {
		leased = nil
		return s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
			now := time.Now().UTC()

			query := badgerhold.Where("Status").Eq(models.TaskStatusPending).Index("Status")
			if taskType != "" {
				query = query.And("TaskType").Eq(taskType)
			}
			var pending []models.ProcessingTask
			if err := s.db.Store().TxFind(txn, &pending, query); err != nil {
				return err
			}

			var eligible []*models.ProcessingTask
			for i := range pending {
				if pending[i].ScheduledAt.After(now) {
					continue
				}
				ok, err := s.dependenciesCompleted(txn, &pending[i])
				if err != nil {
					return err
				}
				if ok {
					eligible = append(eligible, &pending[i])
				}
			}
			if len(eligible) == 0 {
				return nil
			}

			sort.SliceStable(eligible, func(i, j int) bool {
				if eligible[i].Priority != eligible[j].Priority {
					return eligible[i].Priority > eligible[j].Priority
				}
				if !eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
					return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
				}
				return eligible[i].ID < eligible[j].ID
			})

			task := eligible[0]
			task.Status = models.TaskStatusProcessing
			task.StartedAt = &now
			task.LastUpdate = now
			task.UpdatedAt = now
			task.ErrorMessage = ""
			if err := s.db.Store().TxUpdate(txn, task.ID, task); err != nil {
				return err
			}
			leased = task
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

func (s *QueueStorage) dependenciesCompleted(txn *badgerdb.Txn, task *models.ProcessingTask) (bool, error) {
	for _, dep := range task.Dependencies {
		var depTask models.ProcessingTask
		err := s.db.Store().TxGet(txn, dep, &depTask)
		if err == badgerhold.ErrNotFound {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if depTask.Status != models.TaskStatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// MarkTaskProcessing attaches the worker id to a freshly leased task
func (s *QueueStorage) MarkTaskProcessing(ctx context.Context, id, workerID string) error {
	if strings.TrimSpace(workerID) == "" {
		return storage.NewValidationError("worker_id", "worker id is required")
	}
	return s.mutateTask(ctx, "mark_task_processing", id, func(task *models.ProcessingTask) error {
		if task.Status != models.TaskStatusProcessing {
			return storage.NewValidationError("status", "task "+id+" is not processing")
		}
		task.WorkerID = workerID
		task.LastUpdate = time.Now().UTC()
		return nil
	})
}

// CompleteTask transitions processing to completed and stores the result.
// A result that does not serialize is replaced with a placeholder rather
// than failing the completion.
func (s *QueueStorage) CompleteTask(ctx context.Context, id string, result map[string]interface{}) error {
	return s.mutateTask(ctx, "complete_task", id, func(task *models.ProcessingTask) error {
		if task.Status != models.TaskStatusProcessing {
			return storage.NewValidationError("status", "task "+id+" is not processing")
		}
		now := time.Now().UTC()
		task.Status = models.TaskStatusCompleted
		task.CompletedAt = &now
		task.LastUpdate = now
		task.Result = models.SerializableResult(storage.SanitizeMap(result))
		return nil
	})
}

// FailTask records a failure. When retry is allowed and the budget is not
// exhausted the task is rescheduled with exponential backoff; otherwise it
// becomes failed. Automatic retries keep the retry count; only the manual
// RetryFailedTasks path resets it.
func (s *QueueStorage) FailTask(ctx context.Context, id, errorMessage string, retry bool) error {
	return s.mutateTask(ctx, "fail_task", id, func(task *models.ProcessingTask) error {
		now := time.Now().UTC()
		if retry && task.RetryCount < task.MaxRetries {
			delay := backoffDelay(task.RetryCount)
			task.Status = models.TaskStatusPending
			task.ScheduledAt = now.Add(delay)
			task.RetryCount++
			task.WorkerID = ""
			task.StartedAt = nil
			task.ErrorMessage = errorMessage
			task.LastUpdate = now
			s.logger.Debug().
				Str("task_id", id).
				Int("retry_count", task.RetryCount).
				Str("delay", delay.String()).
				Msg("Task scheduled for retry")
			return nil
		}

		task.Status = models.TaskStatusFailed
		task.FailedAt = &now
		task.ErrorMessage = errorMessage
		task.LastUpdate = now
		return nil
	})
}

// backoffDelay returns min(base * 2^retryCount, cap)
func backoffDelay(retryCount int) time.Duration {
	delay := retryBaseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}

// RetryFailedTasks manually resets currently-failed tasks to pending with a
// fresh retry budget. Returns the number of tasks reset.
func (s *QueueStorage) RetryFailedTasks(ctx context.Context, ids []string) (int, error) {
	for _, id := range ids {
		if err := common.ValidateID(common.TaskIDPrefix, id); err != nil {
			return 0, &storage.ValidationError{Field: "task_id", Cause: err}
		}
	}

	var reset int
	err := s.res.Execute(ctx, "retry_failed_tasks", func() error {
		reset = 0
		now := time.Now().UTC()
		for _, id := range ids {
			var task models.ProcessingTask
			err := s.db.Store().Get(id, &task)
			if err == badgerhold.ErrNotFound {
				continue
			}
			if err != nil {
				return err
			}
			if task.Status != models.TaskStatusFailed {
				continue
			}
			task.Status = models.TaskStatusPending
			task.ScheduledAt = now
			task.RetryCount = 0
			task.WorkerID = ""
			task.StartedAt = nil
			task.FailedAt = nil
			task.LastUpdate = now
			task.UpdatedAt = now
			if err := s.db.Store().Update(id, &task); err != nil {
				return err
			}
			reset++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reset, nil
}

// GetQueueStatus reports counts by status, the oldest pending create time,
// and the average completed processing duration.
func (s *QueueStorage) GetQueueStatus(ctx context.Context) (*models.QueueStatus, error) {
	status := &models.QueueStatus{CountsByStatus: map[string]int{}}
	err := s.res.Execute(ctx, "get_queue_status", func() error {
		status.CountsByStatus = map[string]int{}
		status.OldestPendingCreated = nil
		status.AvgProcessingSeconds = 0

		var all []models.ProcessingTask
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}

		var totalSeconds float64
		var completed int
		for i := range all {
			task := &all[i]
			status.CountsByStatus[task.Status]++
			if task.Status == models.TaskStatusPending {
				created := task.CreatedAt
				if status.OldestPendingCreated == nil || created.Before(*status.OldestPendingCreated) {
					status.OldestPendingCreated = &created
				}
			}
			if task.Status == models.TaskStatusCompleted && task.StartedAt != nil && task.CompletedAt != nil {
				totalSeconds += task.CompletedAt.Sub(*task.StartedAt).Seconds()
				completed++
			}
		}
		if completed > 0 {
			status.AvgProcessingSeconds = totalSeconds / float64(completed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// GetStaleTasks returns processing tasks whose lease looks abandoned: no
// update since now-leaseTimeout. The sweeper loop decides what to do with
// them, usually FailTask with retry.
func (s *QueueStorage) GetStaleTasks(ctx context.Context, leaseTimeout time.Duration) ([]*models.ProcessingTask, error) {
	if leaseTimeout <= 0 {
		return nil, storage.NewValidationError("lease_timeout", "lease timeout must be positive")
	}
	cutoff := time.Now().UTC().Add(-leaseTimeout)

	var stale []*models.ProcessingTask
	err := s.res.Execute(ctx, "get_stale_tasks", func() error {
		stale = nil
		var processing []models.ProcessingTask
		if err := s.db.Store().Find(&processing, badgerhold.Where("Status").Eq(models.TaskStatusProcessing).Index("Status")); err != nil {
			return err
		}
		for i := range processing {
			if processing[i].LastUpdate.Before(cutoff) {
				stale = append(stale, &processing[i])
			}
		}
		return nil
	})
	return stale, err
}

// PurgeCompletedTasks deletes completed tasks older than the threshold
func (s *QueueStorage) PurgeCompletedTasks(ctx context.Context, hours int) (int, error) {
	if hours <= 0 {
		return 0, storage.NewValidationError("hours", "hours must be positive")
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	var purged int
	err := s.res.Execute(ctx, "purge_completed_tasks", func() error {
		purged = 0
		var completed []models.ProcessingTask
		if err := s.db.Store().Find(&completed, badgerhold.Where("Status").Eq(models.TaskStatusCompleted).Index("Status")); err != nil {
			return err
		}
		for i := range completed {
			if completed[i].CompletedAt == nil || !completed[i].CompletedAt.Before(cutoff) {
				continue
			}
			if err := s.db.Store().Delete(completed[i].ID, &models.ProcessingTask{}); err != nil && err != badgerhold.ErrNotFound {
				return err
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.logger.Info().Int("purged", purged).Int("hours", hours).Msg("Completed tasks purged")
	}
	return purged, nil
}

// DeleteTasksByPage removes every task whose payload references the page,
// all in one transaction. Used together with page updates so a replaced
// page never leaves stale work behind.
func (s *QueueStorage) DeleteTasksByPage(ctx context.Context, pageID string) (int, error) {
	if err := common.ValidateID(common.PageIDPrefix, pageID); err != nil {
		return 0, &storage.ValidationError{Field: "page_id", Cause: err}
	}

	var deleted int
	err := s.res.Execute(ctx, "delete_tasks_by_page", func() error {
		deleted = 0
		err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
			var all []models.ProcessingTask
			if err := s.db.Store().TxFind(txn, &all, nil); err != nil {
				return err
			}
			for i := range all {
				ref, _ := all[i].Payload["page_id"].(string)
				if ref != pageID {
					continue
				}
				if err := s.db.Store().TxDelete(txn, all[i].ID, &models.ProcessingTask{}); err != nil {
					return err
				}
				deleted++
			}
			return nil
		})
		if err != nil {
			return &storage.TransactionError{Operation: "delete_tasks_by_page", Cause: err}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *QueueStorage) mutateTask(ctx context.Context, operation, id string, fn func(*models.ProcessingTask) error) error {
	if err := common.ValidateID(common.TaskIDPrefix, id); err != nil {
		return &storage.ValidationError{Field: "task_id", Cause: err}
	}

	var opErr error
	err := s.res.Execute(ctx, operation, func() error {
		opErr = nil
		var task models.ProcessingTask
		err := s.db.Store().Get(id, &task)
		if err == badgerhold.ErrNotFound {
			opErr = storage.NewNotFoundError("task", id)
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(&task); err != nil {
			opErr = err
			return nil
		}
		task.UpdatedAt = time.Now().UTC()
		return s.db.Store().Update(id, &task)
	})
	if err != nil {
		return err
	}
	return opErr
}
