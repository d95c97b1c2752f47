// Citizen repository: lookups and the small set of mutations the workflow
// engine performs on the citizen row (document attachment, field updates,
// address changes).
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/dkachan/go-passport-office/internal/domain"
)

// GetCitizen fetches a citizen by id with address and documents preloaded,
// or ErrNotFound.
func GetCitizen(ctx context.Context, db *gorm.DB, id uint) (*domain.Citizen, error) {
	var c domain.Citizen
	err := db.WithContext(ctx).
		Preload("Address").
		Preload("Passport").
		Preload("ForeignPassport").
		First(&c, id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCitizen persists the given column/value pairs on the citizen row.
// Column names are caller-controlled constants, never user input.
func UpdateCitizen(ctx context.Context, db *gorm.DB, id uint, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Citizen{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachPassport links the citizen to the given internal passport number.
func AttachPassport(ctx context.Context, db *gorm.DB, citizenID uint, number int) error {
	return UpdateCitizen(ctx, db, citizenID, map[string]any{"passport_number": number})
}

// AttachForeignPassport links the citizen to the given foreign passport
// number.
func AttachForeignPassport(ctx context.Context, db *gorm.DB, citizenID uint, number int) error {
	return UpdateCitizen(ctx, db, citizenID, map[string]any{"foreign_passport_number": number})
}

// AttachAddress points the citizen's registration address at the given row.
func AttachAddress(ctx context.Context, db *gorm.DB, citizenID uint, addressID uint) error {
	return UpdateCitizen(ctx, db, citizenID, map[string]any{"address_id": addressID})
}
