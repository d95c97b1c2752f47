// Document store: passports, foreign passports and visas. The workflow
// engine composes these inside a single transaction per task action; the
// uniqueness invariants (one active document per citizen, one active visa
// per bucket) are backed by the indexes declared on the domain models, so a
// violation here surfaces as a constraint error rather than a user error —
// the engine is responsible for the precondition checks.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dkachan/go-passport-office/internal/domain"
)

// CreatePassport inserts a new internal passport row.
func CreatePassport(ctx context.Context, db *gorm.DB, p *domain.Passport) error {
	return db.WithContext(ctx).Create(p).Error
}

// DeletePassport removes an internal passport by number.
func DeletePassport(ctx context.Context, db *gorm.DB, number int) error {
	return db.WithContext(ctx).Delete(&domain.Passport{}, "number = ?", number).Error
}

// CreateForeignPassport inserts a new foreign passport row.
func CreateForeignPassport(ctx context.Context, db *gorm.DB, p *domain.ForeignPassport) error {
	return db.WithContext(ctx).Create(p).Error
}

// DeleteForeignPassport removes a foreign passport by number. Callers must
// have dealt with its visas first (see DeleteVisasForPassport).
func DeleteForeignPassport(ctx context.Context, db *gorm.DB, number int) error {
	return db.WithContext(ctx).Delete(&domain.ForeignPassport{}, "number = ?", number).Error
}

// CreateVisa inserts a new visa row.
func CreateVisa(ctx context.Context, db *gorm.DB, v *domain.Visa) error {
	return db.WithContext(ctx).Create(v).Error
}

// GetVisa fetches a visa by id, or ErrNotFound.
func GetVisa(ctx context.Context, db *gorm.DB, id uint) (*domain.Visa, error) {
	var v domain.Visa
	if err := db.WithContext(ctx).First(&v, id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVisas returns all visas belonging to a foreign passport, newest first.
func ListVisas(ctx context.Context, db *gorm.DB, passportNumber int) ([]domain.Visa, error) {
	var out []domain.Visa
	err := db.WithContext(ctx).
		Where("foreign_passport_number = ?", passportNumber).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ActiveVisaInBucket returns the active visa matching the
// (passport, type, country, entry_amount) bucket, nil when none is active.
func ActiveVisaInBucket(ctx context.Context, db *gorm.DB, passportNumber int, visaType, country, entryAmount string) (*domain.Visa, error) {
	var v domain.Visa
	err := db.WithContext(ctx).
		Where("foreign_passport_number = ? AND type = ? AND country = ? AND entry_amount = ? AND is_active = ?",
			passportNumber, visaType, country, entryAmount, true).
		First(&v).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// DeactivateVisa flips is_active off; the row stays for history.
func DeactivateVisa(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).
		Model(&domain.Visa{}).
		Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateVisaExpiry sets a visa's expiry date in place (extension grants no
// replacement document).
func UpdateVisaExpiry(ctx context.Context, db *gorm.DB, id uint, expiry time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Visa{}).
		Where("id = ?", id).
		Update("date_of_expiry", expiry)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteVisasForPassport hard-deletes every visa belonging to the foreign
// passport. Runs as part of the foreign-passport replacement cascade.
func DeleteVisasForPassport(ctx context.Context, db *gorm.DB, passportNumber int) error {
	return db.WithContext(ctx).
		Where("foreign_passport_number = ?", passportNumber).
		Delete(&domain.Visa{}).Error
}

// FindOrCreateAddress de-duplicates addresses by value: an existing row with
// identical fields is reused, otherwise a new one is inserted.
func FindOrCreateAddress(ctx context.Context, db *gorm.DB, a domain.Address) (*domain.Address, error) {
	var existing domain.Address
	err := db.WithContext(ctx).
		Where("country_code = ? AND region = ? AND settlement = ? AND street = ? AND apartments = ? AND post_code = ?",
			a.CountryCode, a.Region, a.Settlement, a.Street, a.Apartments, a.PostCode).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if err := db.WithContext(ctx).Create(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAddress fetches an address by id, or ErrNotFound.
func GetAddress(ctx context.Context, db *gorm.DB, id uint) (*domain.Address, error) {
	var a domain.Address
	if err := db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}
