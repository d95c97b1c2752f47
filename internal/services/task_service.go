// Package services – TaskService
//
// This file implements the TaskService, which owns the lifecycle of pending
// requests on the citizen side: the duplicate-submission guard, task
// creation (with the "task created" notification), lookup, and the filtered
// staff listing. Resolution of tasks lives in the workflow engine
// (workflow.go and its per-area files).
package services

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkachan/go-passport-office/internal/domain"
	"github.com/dkachan/go-passport-office/internal/repo"
	"github.com/dkachan/go-passport-office/internal/validation"
)

// Notifier receives the two workflow events. Implementations must be
// fire-and-forget: enqueueing never blocks the caller and delivery failures
// stay inside the dispatcher.
type Notifier interface {
	// TaskCreated fires after a citizen submits a new request.
	TaskCreated(task *domain.Task, requester *domain.Citizen)
	// TaskResolved fires after staff approves a request.
	TaskResolved(task *domain.Task, requester *domain.Citizen)
	// TaskRejected fires after staff rejects a request.
	TaskRejected(task *domain.Task, requester *domain.Citizen)
}

// NopNotifier discards all events. Useful default for tests.
type NopNotifier struct{}

func (NopNotifier) TaskCreated(*domain.Task, *domain.Citizen)  {}
func (NopNotifier) TaskResolved(*domain.Task, *domain.Citizen) {}
func (NopNotifier) TaskRejected(*domain.Task, *domain.Citizen) {}

// TaskService creates and lists tasks.
type TaskService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Notify receives task lifecycle events.
	Notify Notifier
}

// NewTaskService constructs a TaskService. A nil notifier is replaced with
// the no-op one.
func NewTaskService(db *gorm.DB, n Notifier) *TaskService {
	if n == nil {
		n = NopNotifier{}
	}
	return &TaskService{DB: db, Notify: n}
}

// Submit runs the duplicate-submission guard and the per-kind citizen
// preconditions, then creates a pending task and emits the created event.
// The guard is advisory (read-then-write); the accepted race window is
// documented in the concurrency notes.
func (s *TaskService) Submit(ctx context.Context, citizen *domain.Citizen, kind domain.Kind, payload domain.Payload) (*domain.Task, error) {
	tr := otel.Tracer("services/TaskService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.Int64("citizen.id", int64(citizen.ID)),
			attribute.String("task.kind", kind.Slug()),
		),
	)
	defer span.End()

	if !kind.Valid() {
		return nil, domain.ErrKindUnknown
	}
	if !payload.VariantFor(kind) {
		return nil, domain.ErrPayloadVariant
	}
	if err := s.checkPreconditions(citizen, kind); err != nil {
		return nil, err
	}

	dup, err := s.hasPendingDuplicate(ctx, citizen.ID, kind, payload)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, conflict(fmt.Sprintf("You have already sent a request to %s.", kind.Name()))
	}

	task, err := repo.CreateTask(ctx, s.DB, citizen.ID, kind, payload)
	if err != nil {
		return nil, err
	}
	tasksCreated.WithLabelValues(kind.Slug()).Inc()
	s.Notify.TaskCreated(task, citizen)
	return task, nil
}

// checkPreconditions enforces what a citizen must (not) already hold for the
// request to make sense. These mirror the checks the staff handlers repeat
// at approval time.
func (s *TaskService) checkPreconditions(c *domain.Citizen, kind domain.Kind) error {
	switch kind {
	case domain.KindCreateInternalPassport:
		if c.PassportNumber != nil {
			return conflict("You already have an internal passport.")
		}
	case domain.KindCreateForeignPassport:
		if c.ForeignPassportNumber != nil {
			return conflict("You already have a foreign passport.")
		}
		if c.PassportNumber == nil {
			return conflict("You must have an internal passport to create a foreign passport.")
		}
	case domain.KindRestoreInternalPassportLoss, domain.KindRestoreInternalPassportExpiry:
		if c.PassportNumber == nil {
			return conflict("You don't have an internal passport yet.")
		}
	case domain.KindRestoreForeignPassportLoss, domain.KindRestoreForeignPassportExpiry:
		if c.ForeignPassportNumber == nil {
			return conflict("You don't have a foreign passport yet.")
		}
	case domain.KindCreateVisa, domain.KindExtendVisa, domain.KindRestoreVisaLoss:
		if c.ForeignPassportNumber == nil {
			return conflict("You must have a foreign passport to manage visas.")
		}
	case domain.KindChangeName, domain.KindChangeSurname, domain.KindChangePatronymic:
		if c.PassportNumber == nil {
			return conflict("You must have an internal passport to change the data.")
		}
	case domain.KindChangeAddress:
		if c.PassportNumber == nil {
			return conflict("You do not have a passport, so updating the address is not possible.")
		}
	}
	return nil
}

// hasPendingDuplicate reports whether an unresolved task with the same guard
// key already exists. The key is (citizen, kind), extended for visa kinds
// with the target visa id (extend/restore) or destination country (create),
// since a citizen may pursue several different visas at once.
func (s *TaskService) hasPendingDuplicate(ctx context.Context, citizenID uint, kind domain.Kind, payload domain.Payload) (bool, error) {
	pending, err := repo.ListPendingTasks(ctx, s.DB, citizenID, kind)
	if err != nil {
		return false, err
	}
	if !kind.IsVisaKind() {
		return len(pending) > 0, nil
	}
	for _, t := range pending {
		switch kind {
		case domain.KindCreateVisa:
			if t.Payload.VisaCreate != nil && payload.VisaCreate != nil &&
				t.Payload.VisaCreate.Country == payload.VisaCreate.Country {
				return true, nil
			}
		case domain.KindExtendVisa, domain.KindRestoreVisaLoss:
			if t.Payload.VisaTarget != nil && payload.VisaTarget != nil &&
				t.Payload.VisaTarget.VisaID == payload.VisaTarget.VisaID {
				return true, nil
			}
		}
	}
	return false, nil
}

// Find fetches a task by id.
func (s *TaskService) Find(ctx context.Context, id uint) (*domain.Task, error) {
	t, err := repo.GetTask(ctx, s.DB, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListOptions carries the raw filter values of the staff listing. Status and
// Kind are kept as strings so this layer owns their validation.
type ListOptions struct {
	Status   string
	Kind     string
	Page     int
	PageSize int
	All      bool
}

// List returns tasks for the staff view: validated filters, status-ascending
// then newest-first ordering, pagination or the unpaginated "all" mode.
// Unknown filter values fail with a field-keyed validation error, never an
// empty list.
func (s *TaskService) List(ctx context.Context, opts ListOptions) ([]domain.Task, int64, error) {
	tr := otel.Tracer("services/TaskService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("filter.status", opts.Status),
			attribute.String("filter.kind", opts.Kind),
			attribute.Bool("all", opts.All),
		),
	)
	defer span.End()

	filter, verrs := parseTaskFilter(opts.Status, opts.Kind)
	if err := verrs.Err(); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountTasks(ctx, s.DB, filter)
	if err != nil {
		return nil, 0, err
	}

	if opts.All {
		items, err := repo.ListTasksAll(ctx, s.DB, filter)
		return items, total, err
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if total == 0 {
		return []domain.Task{}, 0, nil
	}
	items, err := repo.ListTasksPage(ctx, s.DB, filter, (page-1)*pageSize, pageSize)
	return items, total, err
}

// parseTaskFilter validates the raw status/kind filter values.
func parseTaskFilter(status, kind string) (repo.TaskFilter, validation.Errors) {
	var filter repo.TaskFilter
	errs := validation.Errors{}

	if status != "" {
		v, err := strconv.Atoi(status)
		if err != nil || !domain.ValidStatus(domain.TaskStatus(v)) {
			errs.Add("status", "Invalid status.")
		} else {
			st := domain.TaskStatus(v)
			filter.Status = &st
		}
	}
	if kind != "" {
		k, err := domain.ParseKind(kind)
		switch err {
		case nil:
			filter.Kind = &k
		case domain.ErrKindSpaces:
			errs.Add("kind", "Spaces are not allowed in the kind filter.")
		default:
			errs.Add("kind", "Invalid kind.")
		}
	}
	return filter, errs
}
