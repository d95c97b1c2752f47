// Workflow engine – passport actions: initial issuance and restore for the
// internal and foreign passport. Restore replaces the document (the old row
// is deleted in the same transaction); restoring the foreign passport first
// deletes every visa that hung off the old document.
package services

import (
	"context"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkachan/go-passport-office/internal/domain"
	"github.com/dkachan/go-passport-office/internal/repo"
)

// CreateInternalPassport finishes a create-internal-passport task: it builds
// the passport from the payload photo and the staff fields, attaches it to
// the citizen and, when the payload carries an address, attaches that too.
func (s *WorkflowService) CreateInternalPassport(ctx context.Context, taskID uint, data DocumentCompletion) (*domain.Passport, error) {
	tr := otel.Tracer("services/WorkflowService")
	ctx, span := tr.Start(ctx, "CreateInternalPassport",
		trace.WithAttributes(attribute.Int64("task.id", int64(taskID))),
	)
	defer span.End()

	task, err := s.loadPending(ctx, taskID, domain.KindCreateInternalPassport)
	if err != nil {
		return nil, err
	}
	if task.Citizen.PassportNumber != nil {
		return nil, conflict("Request has already been processed or the user already has a passport.")
	}
	if err := s.validateDocument(data); err != nil {
		return nil, err
	}

	passport := &domain.Passport{
		Number:       domain.NewDocumentNumber(),
		Authority:    data.Authority,
		DateOfIssue:  data.DateOfIssue,
		DateOfExpiry: data.DateOfExpiry,
		PhotoPath:    task.Payload.Document.PhotoPath,
	}
	err = s.approve(ctx, task, func(tx *gorm.DB) error {
		if err := repo.CreatePassport(ctx, tx, passport); err != nil {
			return err
		}
		if err := repo.AttachPassport(ctx, tx, task.CitizenID, passport.Number); err != nil {
			return err
		}
		if aid := task.Payload.Document.AddressID; aid != nil {
			if err := repo.AttachAddress(ctx, tx, task.CitizenID, *aid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return passport, nil
}

// CreateForeignPassport finishes a create-foreign-passport task.
func (s *WorkflowService) CreateForeignPassport(ctx context.Context, taskID uint, data DocumentCompletion) (*domain.ForeignPassport, error) {
	tr := otel.Tracer("services/WorkflowService")
	ctx, span := tr.Start(ctx, "CreateForeignPassport",
		trace.WithAttributes(attribute.Int64("task.id", int64(taskID))),
	)
	defer span.End()

	task, err := s.loadPending(ctx, taskID, domain.KindCreateForeignPassport)
	if err != nil {
		return nil, err
	}
	if task.Citizen.ForeignPassportNumber != nil {
		return nil, conflict("Request has already been processed or the user already has a foreign passport.")
	}
	if err := s.validateDocument(data); err != nil {
		return nil, err
	}

	passport := &domain.ForeignPassport{
		Number:       domain.NewDocumentNumber(),
		Authority:    data.Authority,
		DateOfIssue:  data.DateOfIssue,
		DateOfExpiry: data.DateOfExpiry,
		PhotoPath:    task.Payload.Document.PhotoPath,
	}
	err = s.approve(ctx, task, func(tx *gorm.DB) error {
		if err := repo.CreateForeignPassport(ctx, tx, passport); err != nil {
			return err
		}
		return repo.AttachForeignPassport(ctx, tx, task.CitizenID, passport.Number)
	})
	if err != nil {
		return nil, err
	}
	return passport, nil
}

// RestoreInternalPassport finishes a restore-internal-passport task (loss or
// expiry): the replacement is created, the old document deleted, and the
// citizen re-linked, atomically.
func (s *WorkflowService) RestoreInternalPassport(ctx context.Context, taskID uint, data DocumentCompletion) (*domain.Passport, error) {
	tr := otel.Tracer("services/WorkflowService")
	ctx, span := tr.Start(ctx, "RestoreInternalPassport",
		trace.WithAttributes(attribute.Int64("task.id", int64(taskID))),
	)
	defer span.End()

	task, err := s.loadPending(ctx, taskID,
		domain.KindRestoreInternalPassportLoss, domain.KindRestoreInternalPassportExpiry)
	if err != nil {
		return nil, err
	}
	if task.Citizen.PassportNumber == nil {
		return nil, conflict("The user has no internal passport to restore.")
	}
	if err := s.validateDocument(data); err != nil {
		return nil, err
	}

	oldNumber := *task.Citizen.PassportNumber
	replacement := &domain.Passport{
		Number:       domain.NewDocumentNumber(),
		Authority:    data.Authority,
		DateOfIssue:  data.DateOfIssue,
		DateOfExpiry: data.DateOfExpiry,
		PhotoPath:    task.Payload.Document.PhotoPath,
	}
	err = s.approve(ctx, task, func(tx *gorm.DB) error {
		return s.replaceInternalPassport(ctx, tx, task.CitizenID, oldNumber, replacement)
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// RestoreForeignPassport finishes a restore-foreign-passport task (loss or
// expiry). All visas of the old document are deleted before it is replaced.
func (s *WorkflowService) RestoreForeignPassport(ctx context.Context, taskID uint, data DocumentCompletion) (*domain.ForeignPassport, error) {
	tr := otel.Tracer("services/WorkflowService")
	ctx, span := tr.Start(ctx, "RestoreForeignPassport",
		trace.WithAttributes(attribute.Int64("task.id", int64(taskID))),
	)
	defer span.End()

	task, err := s.loadPending(ctx, taskID,
		domain.KindRestoreForeignPassportLoss, domain.KindRestoreForeignPassportExpiry)
	if err != nil {
		return nil, err
	}
	if task.Citizen.ForeignPassportNumber == nil {
		return nil, conflict("The user has no foreign passport to restore.")
	}
	if err := s.validateDocument(data); err != nil {
		return nil, err
	}

	oldNumber := *task.Citizen.ForeignPassportNumber
	replacement := &domain.ForeignPassport{
		Number:       domain.NewDocumentNumber(),
		Authority:    data.Authority,
		DateOfIssue:  data.DateOfIssue,
		DateOfExpiry: data.DateOfExpiry,
		PhotoPath:    task.Payload.Document.PhotoPath,
	}
	err = s.approve(ctx, task, func(tx *gorm.DB) error {
		return s.replaceForeignPassport(ctx, tx, task.CitizenID, oldNumber, replacement)
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// replaceInternalPassport swaps the citizen's internal passport for the
// given replacement inside tx: new row in, link moved, old row gone.
func (s *WorkflowService) replaceInternalPassport(ctx context.Context, tx *gorm.DB, citizenID uint, oldNumber int, replacement *domain.Passport) error {
	if err := repo.CreatePassport(ctx, tx, replacement); err != nil {
		return err
	}
	if err := repo.AttachPassport(ctx, tx, citizenID, replacement.Number); err != nil {
		return err
	}
	return repo.DeletePassport(ctx, tx, oldNumber)
}

// replaceForeignPassport swaps the citizen's foreign passport inside tx.
// The visa cascade runs first: every visa of the old document is deleted.
func (s *WorkflowService) replaceForeignPassport(ctx context.Context, tx *gorm.DB, citizenID uint, oldNumber int, replacement *domain.ForeignPassport) error {
	if err := repo.DeleteVisasForPassport(ctx, tx, oldNumber); err != nil {
		return err
	}
	if err := repo.CreateForeignPassport(ctx, tx, replacement); err != nil {
		return err
	}
	if err := repo.AttachForeignPassport(ctx, tx, citizenID, replacement.Number); err != nil {
		return err
	}
	return repo.DeleteForeignPassport(ctx, tx, oldNumber)
}
