// Workflow engine – visa actions. Visas are never replaced in place: a new
// visa in an occupied (type, country, entry_amount) bucket soft-supersedes
// the active one — the old row is deactivated, not deleted — so history is
// kept. Extension is the one exception: it moves the expiry date on the
// existing row.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkachan/go-passport-office/internal/domain"
	"github.com/dkachan/go-passport-office/internal/repo"
	"github.com/dkachan/go-passport-office/internal/validation"
)

// CreateVisa finishes a create-visa task. If an active visa already occupies
// the requested bucket it is deactivated in the same transaction, so exactly
// one visa per bucket stays active.
func (s *WorkflowService) CreateVisa(ctx context.Context, taskID uint, data VisaCompletion) (*domain.Visa, error) {
	tr := otel.Tracer("services/WorkflowService")
	ctx, span := tr.Start(ctx, "CreateVisa",
		trace.WithAttributes(attribute.Int64("task.id", int64(taskID))),
	)
	defer span.End()

	task, err := s.loadPending(ctx, taskID, domain.KindCreateVisa)
	if err != nil {
		return nil, err
	}
	if task.Citizen.ForeignPassportNumber == nil {
		return nil, conflict("The user has no foreign passport to attach a visa to.")
	}
	if err := s.validateVisaDates(data); err != nil {
		return nil, err
	}

	req := task.Payload.VisaCreate
	visa := &domain.Visa{
		Number:                domain.NewDocumentNumber(),
		ForeignPassportNumber: *task.Citizen.ForeignPassportNumber,
		Type:                  req.Type,
		Country:               req.Country,
		EntryAmount:           req.EntryAmount,
		DateOfIssue:           data.DateOfIssue,
		DateOfExpiry:          data.DateOfExpiry,
		PhotoPath:             req.PhotoPath,
		IsActive:              true,
	}
	err = s.approve(ctx, task, func(tx *gorm.DB) error {
		prior, err := repo.ActiveVisaInBucket(ctx, tx, visa.ForeignPassportNumber, visa.Type, visa.Country, visa.EntryAmount)
		if err != nil {
			return err
		}
		if prior != nil {
			if err := repo.DeactivateVisa(ctx, tx, prior.ID); err != nil {
				return err
			}
		}
		return repo.CreateVisa(ctx, tx, visa)
	})
	if err != nil {
		return nil, err
	}
	return visa, nil
}

// ExtendVisa finishes an extend-visa task: the staff-approved expiry date is
// written onto the visa named by the payload. No replacement document is
// created. The new date must exceed the current expiry.
func (s *WorkflowService) ExtendVisa(ctx context.Context, taskID uint, newExpiry time.Time) (*domain.Visa, error) {
	tr := otel.Tracer("services/WorkflowService")
	ctx, span := tr.Start(ctx, "ExtendVisa",
		trace.WithAttributes(attribute.Int64("task.id", int64(taskID))),
	)
	defer span.End()

	task, err := s.loadPending(ctx, taskID, domain.KindExtendVisa)
	if err != nil {
		return nil, err
	}
	visa, err := s.ownedVisa(ctx, task)
	if err != nil {
		return nil, err
	}

	errs := validation.Errors{}
	if newExpiry.IsZero() {
		errs.Add("date_of_expiry", validation.MsgRequired)
	} else if !newExpiry.After(visa.DateOfExpiry) {
		errs.Add("date_of_expiry", "The new expiry date must be later than the current one.")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	err = s.approve(ctx, task, func(tx *gorm.DB) error {
		return repo.UpdateVisaExpiry(ctx, tx, visa.ID, newExpiry)
	})
	if err != nil {
		return nil, err
	}
	visa.DateOfExpiry = newExpiry
	return visa, nil
}

// RestoreVisa finishes a restore-visa task: a new visa is issued copying
// type, country, entry amount and dates from the lost one — only the photo
// changes — and the old visa is deactivated.
func (s *WorkflowService) RestoreVisa(ctx context.Context, taskID uint) (*domain.Visa, error) {
	tr := otel.Tracer("services/WorkflowService")
	ctx, span := tr.Start(ctx, "RestoreVisa",
		trace.WithAttributes(attribute.Int64("task.id", int64(taskID))),
	)
	defer span.End()

	task, err := s.loadPending(ctx, taskID, domain.KindRestoreVisaLoss)
	if err != nil {
		return nil, err
	}
	old, err := s.ownedVisa(ctx, task)
	if err != nil {
		return nil, err
	}

	replacement := &domain.Visa{
		Number:                domain.NewDocumentNumber(),
		ForeignPassportNumber: old.ForeignPassportNumber,
		Type:                  old.Type,
		Country:               old.Country,
		EntryAmount:           old.EntryAmount,
		DateOfIssue:           old.DateOfIssue,
		DateOfExpiry:          old.DateOfExpiry,
		PhotoPath:             task.Payload.VisaTarget.PhotoPath,
		IsActive:              true,
	}
	err = s.approve(ctx, task, func(tx *gorm.DB) error {
		if old.IsActive {
			if err := repo.DeactivateVisa(ctx, tx, old.ID); err != nil {
				return err
			}
		}
		return repo.CreateVisa(ctx, tx, replacement)
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// ownedVisa resolves the payload's visa id and verifies the visa belongs to
// the requester's foreign passport. A mismatch reads as not-found, the same
// as a missing id.
func (s *WorkflowService) ownedVisa(ctx context.Context, task *domain.Task) (*domain.Visa, error) {
	visa, err := repo.GetVisa(ctx, s.DB, task.Payload.VisaTarget.VisaID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrVisaNotFound
		}
		return nil, err
	}
	if task.Citizen.ForeignPassportNumber == nil ||
		visa.ForeignPassportNumber != *task.Citizen.ForeignPassportNumber {
		return nil, ErrVisaNotFound
	}
	return visa, nil
}
