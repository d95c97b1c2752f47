// Task repository: creation, lookup, filtered listing, and the guarded
// status transition.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a task is not found, functions return gorm.ErrRecordNotFound
//     (exported here as ErrNotFound).
//   - TransitionTask returns ErrNotPending when the row was not in the
//     pending state at the moment of the conditional update; this is the
//     optimistic guard that keeps two concurrent approvals from both
//     applying effects.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/dkachan/go-passport-office/internal/domain"
)

// ErrNotPending is returned by TransitionTask when the task was already
// approved or rejected. Callers translate it into the "already processed"
// conflict.
var ErrNotPending = errors.New("task is not pending")

// TaskFilter narrows ListTasks. Nil fields are ignored.
type TaskFilter struct {
	Status *domain.TaskStatus
	Kind   *domain.Kind
}

// CreateTask inserts a new pending Task for the given citizen.
func CreateTask(ctx context.Context, db *gorm.DB, citizenID uint, kind domain.Kind, payload domain.Payload) (*domain.Task, error) {
	t := &domain.Task{
		CitizenID: citizenID,
		Kind:      kind,
		Status:    domain.StatusPending,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// GetTask fetches a task by id with its citizen (and the citizen's documents)
// preloaded, or ErrNotFound.
func GetTask(ctx context.Context, db *gorm.DB, id uint) (*domain.Task, error) {
	var t domain.Task
	err := db.WithContext(ctx).
		Preload("Citizen").
		Preload("Citizen.Passport").
		Preload("Citizen.ForeignPassport").
		First(&t, id).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func applyFilter(q *gorm.DB, f TaskFilter) *gorm.DB {
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Kind != nil {
		q = q.Where("kind = ?", *f.Kind)
	}
	return q
}

// CountTasks returns the number of tasks matching the filter.
func CountTasks(ctx context.Context, db *gorm.DB, f TaskFilter) (int64, error) {
	var total int64
	err := applyFilter(db.WithContext(ctx).Model(&domain.Task{}), f).Count(&total).Error
	return total, err
}

// ListTasksPage returns a page of tasks matching the filter, ordered by
// status ascending then creation time descending, so pending work surfaces
// first with the newest requests on top.
func ListTasksPage(ctx context.Context, db *gorm.DB, f TaskFilter, offset, limit int) ([]domain.Task, error) {
	var out []domain.Task
	err := applyFilter(db.WithContext(ctx).Preload("Citizen"), f).
		Order("status asc").
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListTasksAll returns every task matching the filter with the same ordering
// as ListTasksPage. Backs the list endpoint's "all" mode.
func ListTasksAll(ctx context.Context, db *gorm.DB, f TaskFilter) ([]domain.Task, error) {
	var out []domain.Task
	err := applyFilter(db.WithContext(ctx).Preload("Citizen"), f).
		Order("status asc").
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListPendingTasks returns the citizen's pending tasks of the given kind.
// The duplicate-submission guard compares their payload keys in the service
// layer; pending tasks per (citizen, kind) are few.
func ListPendingTasks(ctx context.Context, db *gorm.DB, citizenID uint, kind domain.Kind) ([]domain.Task, error) {
	var out []domain.Task
	err := db.WithContext(ctx).
		Where("citizen_id = ? AND kind = ? AND status = ?", citizenID, kind, domain.StatusPending).
		Find(&out).Error
	return out, err
}

// TransitionTask moves a task from pending to the given terminal status via
// a conditional update. The WHERE clause re-checks the pending state inside
// whatever transaction db carries, so the losing side of a concurrent double
// approval observes ErrNotPending instead of re-applying effects.
func TransitionTask(ctx context.Context, db *gorm.DB, id uint, to domain.TaskStatus) error {
	if to != domain.StatusApproved && to != domain.StatusRejected {
		return ErrNotPending
	}
	res := db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}
