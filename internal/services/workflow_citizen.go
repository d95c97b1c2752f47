// Workflow engine – citizen-record actions: name/surname/patronymic changes
// (which reissue the identity documents carrying the old value) and
// registration-address changes.
package services

import (
	"context"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkachan/go-passport-office/internal/domain"
	"github.com/dkachan/go-passport-office/internal/repo"
	"github.com/dkachan/go-passport-office/internal/validation"
)

// FieldChangeCompletion is the staff-supplied data finishing a change-name /
// change-surname / change-patronymic task. The internal passport is always
// reissued; when the citizen also holds a foreign passport that one is
// reissued too (with the full visa cascade), so a second completion block is
// required exactly then.
type FieldChangeCompletion struct {
	InternalPassport DocumentCompletion  `json:"internal_passport"`
	ForeignPassport  *DocumentCompletion `json:"foreign_passport,omitempty"`
}

// ChangeUserField finishes a change-user-data task: the citizen's field is
// updated to the proposed value and every identity document carrying it is
// reissued. The foreign-passport reissue deletes its visas first, exactly as
// a foreign-passport restore does.
func (s *WorkflowService) ChangeUserField(ctx context.Context, taskID uint, data FieldChangeCompletion) (*domain.Citizen, error) {
	tr := otel.Tracer("services/WorkflowService")
	ctx, span := tr.Start(ctx, "ChangeUserField",
		trace.WithAttributes(attribute.Int64("task.id", int64(taskID))),
	)
	defer span.End()

	task, err := s.loadPending(ctx, taskID,
		domain.KindChangeName, domain.KindChangeSurname, domain.KindChangePatronymic)
	if err != nil {
		return nil, err
	}
	if task.Citizen.PassportNumber == nil {
		return nil, conflict("The user has no internal passport to reissue.")
	}

	hasForeign := task.Citizen.ForeignPassportNumber != nil
	if err := s.validateFieldChange(data, hasForeign); err != nil {
		return nil, err
	}

	field := task.Kind.FieldName()
	value := task.Payload.FieldChange.Value
	photo := task.Payload.FieldChange.PhotoPath
	oldPassport := *task.Citizen.PassportNumber

	newPassport := &domain.Passport{
		Number:       domain.NewDocumentNumber(),
		Authority:    data.InternalPassport.Authority,
		DateOfIssue:  data.InternalPassport.DateOfIssue,
		DateOfExpiry: data.InternalPassport.DateOfExpiry,
		PhotoPath:    photo,
	}
	var newForeign *domain.ForeignPassport
	if hasForeign {
		newForeign = &domain.ForeignPassport{
			Number:       domain.NewDocumentNumber(),
			Authority:    data.ForeignPassport.Authority,
			DateOfIssue:  data.ForeignPassport.DateOfIssue,
			DateOfExpiry: data.ForeignPassport.DateOfExpiry,
			PhotoPath:    photo,
		}
	}

	err = s.approve(ctx, task, func(tx *gorm.DB) error {
		if err := repo.UpdateCitizen(ctx, tx, task.CitizenID, map[string]any{field: value}); err != nil {
			return err
		}
		if err := s.replaceInternalPassport(ctx, tx, task.CitizenID, oldPassport, newPassport); err != nil {
			return err
		}
		if newForeign != nil {
			return s.replaceForeignPassport(ctx, tx, task.CitizenID, *task.Citizen.ForeignPassportNumber, newForeign)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repo.GetCitizen(ctx, s.DB, task.CitizenID)
}

// validateFieldChange checks both completion blocks, prefixing field keys so
// the caller can tell which document failed.
func (s *WorkflowService) validateFieldChange(data FieldChangeCompletion, needForeign bool) error {
	errs := validation.Errors{}
	for field, msgs := range validation.Document(
		data.InternalPassport.Authority,
		data.InternalPassport.DateOfIssue,
		data.InternalPassport.DateOfExpiry,
		s.now(),
	) {
		errs["internal_passport."+field] = msgs
	}
	if needForeign {
		if data.ForeignPassport == nil {
			errs.Add("foreign_passport", validation.MsgRequired)
		} else {
			for field, msgs := range validation.Document(
				data.ForeignPassport.Authority,
				data.ForeignPassport.DateOfIssue,
				data.ForeignPassport.DateOfExpiry,
				s.now(),
			) {
				errs["foreign_passport."+field] = msgs
			}
		}
	}
	return errs.Err()
}

// ChangeAddress finishes a change-address task by attaching the payload's
// address to the citizen. No document is touched.
func (s *WorkflowService) ChangeAddress(ctx context.Context, taskID uint) (*domain.Citizen, error) {
	tr := otel.Tracer("services/WorkflowService")
	ctx, span := tr.Start(ctx, "ChangeAddress",
		trace.WithAttributes(attribute.Int64("task.id", int64(taskID))),
	)
	defer span.End()

	task, err := s.loadPending(ctx, taskID, domain.KindChangeAddress)
	if err != nil {
		return nil, err
	}
	addr, err := repo.GetAddress(ctx, s.DB, task.Payload.Address.AddressID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}

	err = s.approve(ctx, task, func(tx *gorm.DB) error {
		return repo.AttachAddress(ctx, tx, task.CitizenID, addr.ID)
	})
	if err != nil {
		return nil, err
	}
	return repo.GetCitizen(ctx, s.DB, task.CitizenID)
}
