// Package services – workflow engine core.
//
// Each task kind is bound to exactly one staff action; the per-area files
// (workflow_passport.go, workflow_visa.go, workflow_citizen.go) implement
// the actions on top of the shared plumbing here: kind-checked task loading,
// the pending-status idempotency guard, and the transactional approve step
// that re-checks the status under the same transaction that applies the
// document effects.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkachan/go-passport-office/internal/domain"
	"github.com/dkachan/go-passport-office/internal/repo"
	"github.com/dkachan/go-passport-office/internal/validation"
)

// WorkflowService resolves tasks: it validates staff completion data,
// applies the business effect to the document store, and transitions the
// task — all inside one transaction per action.
type WorkflowService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Notify receives resolution events.
	Notify Notifier
	// Clock returns the current time; tests pin it.
	Clock func() time.Time
}

// NewWorkflowService constructs a WorkflowService with real time and an
// optional notifier.
func NewWorkflowService(db *gorm.DB, n Notifier) *WorkflowService {
	if n == nil {
		n = NopNotifier{}
	}
	return &WorkflowService{DB: db, Notify: n, Clock: time.Now}
}

func (s *WorkflowService) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

// DocumentCompletion is the staff-supplied data finishing a passport or
// foreign-passport task.
type DocumentCompletion struct {
	Authority    int       `json:"authority"`
	DateOfIssue  time.Time `json:"date_of_issue"`
	DateOfExpiry time.Time `json:"date_of_expiry"`
}

// VisaCompletion is the staff-supplied data finishing a create-visa task.
type VisaCompletion struct {
	DateOfIssue  time.Time `json:"date_of_issue"`
	DateOfExpiry time.Time `json:"date_of_expiry"`
}

// loadPending fetches the task, verifies it is bound to one of the expected
// kinds (mismatch reads as not-found so ids cannot be probed for their
// kind), and applies the fail-fast idempotency check. The conditional status
// update inside the approve transaction re-checks pending; this early check
// only exists to answer quickly without opening a transaction.
func (s *WorkflowService) loadPending(ctx context.Context, taskID uint, kinds ...domain.Kind) (*domain.Task, error) {
	task, err := repo.GetTask(ctx, s.DB, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	matched := false
	for _, k := range kinds {
		if task.Kind == k {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrTaskNotFound
	}
	if task.Status != domain.StatusPending {
		return nil, ErrTaskProcessed
	}
	if !task.Payload.VariantFor(task.Kind) {
		return nil, domain.ErrPayloadVariant
	}
	return task, nil
}

// approve runs effect and the pending→approved transition in one
// transaction. The transition goes first so the row-level conditional update
// settles concurrent approvals before any document is touched; the loser
// rolls back with ErrTaskProcessed. On commit the resolved event fires.
func (s *WorkflowService) approve(ctx context.Context, task *domain.Task, effect func(tx *gorm.DB) error) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.TransitionTask(ctx, tx, task.ID, domain.StatusApproved); err != nil {
			if errors.Is(err, repo.ErrNotPending) {
				return ErrTaskProcessed
			}
			return err
		}
		return effect(tx)
	})
	if err != nil {
		return err
	}
	task.Status = domain.StatusApproved
	tasksResolved.WithLabelValues(task.Kind.Slug(), "approved").Inc()
	s.Notify.TaskResolved(task, &task.Citizen)
	return nil
}

// Reject transitions any pending task to rejected. Terminal tasks cannot be
// rejected again.
func (s *WorkflowService) Reject(ctx context.Context, taskID uint) (*domain.Task, error) {
	tr := otel.Tracer("services/WorkflowService")
	ctx, span := tr.Start(ctx, "Reject",
		trace.WithAttributes(attribute.Int64("task.id", int64(taskID))),
	)
	defer span.End()

	task, err := repo.GetTask(ctx, s.DB, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if task.Status != domain.StatusPending {
		return nil, ErrTaskProcessed
	}
	if err := repo.TransitionTask(ctx, s.DB, task.ID, domain.StatusRejected); err != nil {
		if errors.Is(err, repo.ErrNotPending) {
			return nil, ErrTaskProcessed
		}
		return nil, err
	}
	task.Status = domain.StatusRejected
	tasksResolved.WithLabelValues(task.Kind.Slug(), "rejected").Inc()
	s.Notify.TaskRejected(task, &task.Citizen)
	return task, nil
}

// validateDocument applies the shared passport field policy against the
// service clock.
func (s *WorkflowService) validateDocument(data DocumentCompletion) error {
	return validation.Document(data.Authority, data.DateOfIssue, data.DateOfExpiry, s.now()).Err()
}

// validateVisaDates checks a visa completion: issuance today or later,
// expiry strictly after issuance.
func (s *WorkflowService) validateVisaDates(data VisaCompletion) error {
	errs := validation.Errors{}
	if data.DateOfIssue.IsZero() {
		errs.Add("date_of_issue", validation.MsgRequired)
	} else if !validation.IssueDate(data.DateOfIssue, s.now()) {
		errs.Add("date_of_issue", validation.MsgIssueDate)
	}
	if data.DateOfExpiry.IsZero() {
		errs.Add("date_of_expiry", validation.MsgRequired)
	} else if !data.DateOfExpiry.After(data.DateOfIssue) {
		errs.Add("date_of_expiry", "The expiry date must be later than the issue date.")
	}
	return errs.Err()
}
