// Package domain defines the persistence models for citizens, their identity
// documents (internal passport, foreign passport, visas), registration
// addresses, and the pending-request tasks that staff act on. These types are
// mapped with GORM and form the core data layer of the passport office.
package domain

import (
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"
)

// Citizen is the owner of identity documents. Authentication itself lives in
// an external identity provider; this row is what the workflow engine needs:
// the personal fields printed on documents, the staff flag, and one-to-one
// links to the active internal and foreign passports.
//
// Fields:
//   - ID: numeric primary key.
//   - Email: unique contact address, used by the notification dispatcher.
//   - Name / Surname / Patronymic: identity fields; changing one reissues
//     the passports that carry it.
//   - RecordNumber: YYYYMMDD-NNNNN civil registry number, generated once.
//   - AddressID: current registration address (nullable).
//   - PassportNumber / ForeignPassportNumber: at most one active document
//     of each type per citizen; replacing a document deletes the old row.
//   - IsStaff: role flag trusted from the identity provider.
type Citizen struct {
	ID           uint      `json:"id"            gorm:"primaryKey"`
	Email        string    `json:"email"         gorm:"type:varchar(254);not null;uniqueIndex"`
	Name         string    `json:"name"          gorm:"type:varchar(50);not null"`
	Surname      string    `json:"surname"       gorm:"type:varchar(50);not null"`
	Patronymic   string    `json:"patronymic"    gorm:"type:varchar(50);not null"`
	Sex          string    `json:"sex"           gorm:"type:varchar(1);check:sex IN ('F','M')"`
	DateOfBirth  time.Time `json:"date_of_birth"`
	PlaceOfBirth string    `json:"place_of_birth" gorm:"type:varchar(255)"`
	Nationality  string    `json:"nationality"   gorm:"type:varchar(2)"`
	RecordNumber string    `json:"record_number" gorm:"type:varchar(14);uniqueIndex"`
	IsStaff      bool      `json:"is_staff"      gorm:"not null;default:false"`

	AddressID             *uint `json:"address_id"`
	PassportNumber        *int  `json:"passport_number"         gorm:"uniqueIndex"`
	ForeignPassportNumber *int  `json:"foreign_passport_number" gorm:"uniqueIndex"`

	Address         *Address         `json:"address,omitempty"          gorm:"foreignKey:AddressID"`
	Passport        *Passport        `json:"passport,omitempty"         gorm:"foreignKey:PassportNumber;references:Number"`
	ForeignPassport *ForeignPassport `json:"foreign_passport,omitempty" gorm:"foreignKey:ForeignPassportNumber;references:Number"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Citizen.
func (Citizen) TableName() string { return "citizens" }

// BeforeCreate fills the record number when the caller did not provide one.
// The column is unique, so every insert needs a value.
func (c *Citizen) BeforeCreate(*gorm.DB) error {
	if c.RecordNumber == "" {
		c.RecordNumber = NewRecordNumber(c.DateOfBirth)
	}
	return nil
}

// NewRecordNumber generates the YYYYMMDD-NNNNN civil registry number: the
// date of birth (today when unknown) plus a 5-digit serial.
func NewRecordNumber(birth time.Time) string {
	if birth.IsZero() {
		birth = time.Now().UTC()
	}
	return fmt.Sprintf("%04d%02d%02d-%05d",
		birth.Year(), birth.Month(), birth.Day(), rand.Intn(90000)+10000)
}

// Address is a registration address. Rows are immutable once referenced and
// de-duplicated by value: submitting the same address twice reuses one row.
type Address struct {
	ID          uint   `json:"id"           gorm:"primaryKey"`
	CountryCode string `json:"country_code" gorm:"type:varchar(2);not null"`
	Region      string `json:"region"       gorm:"type:varchar(25);not null"`
	Settlement  string `json:"settlement"   gorm:"type:varchar(100);not null"`
	Street      string `json:"street"       gorm:"type:varchar(100);not null"`
	Apartments  string `json:"apartments"   gorm:"type:varchar(10);not null"`
	PostCode    int    `json:"post_code"    gorm:"not null"`
}

// TableName returns the database table name for Address.
func (Address) TableName() string { return "addresses" }

// Passport is the internal identity document. The 8-digit number is the
// primary key and is generated server-side on issuance; a citizen holds at
// most one at a time and a replacement deletes the predecessor row.
type Passport struct {
	Number       int       `json:"number"         gorm:"primaryKey;autoIncrement:false"`
	Authority    int       `json:"authority"      gorm:"not null"`
	DateOfIssue  time.Time `json:"date_of_issue"`
	DateOfExpiry time.Time `json:"date_of_expiry"`
	PhotoPath    string    `json:"photo"          gorm:"type:varchar(255)"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for Passport.
func (Passport) TableName() string { return "passports" }

// ForeignPassport is the travel document. It shares the passport shape but is
// a distinct table because visas hang off it and its lifecycle cascades to
// them: deleting or replacing a foreign passport removes its visas.
type ForeignPassport struct {
	Number       int       `json:"number"         gorm:"primaryKey;autoIncrement:false"`
	Authority    int       `json:"authority"      gorm:"not null"`
	DateOfIssue  time.Time `json:"date_of_issue"`
	DateOfExpiry time.Time `json:"date_of_expiry"`
	PhotoPath    string    `json:"photo"          gorm:"type:varchar(255)"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for ForeignPassport.
func (ForeignPassport) TableName() string { return "foreign_passports" }

// Visa type, destination and entry classes (closed sets, stored as text).
const (
	VisaTypeEmployment = "Employment"
	VisaTypeBusiness   = "Business"
	VisaTypeTourist    = "Tourist"
	VisaTypeStudent    = "Student"
	VisaTypeTransit    = "Transit"

	EntrySingle   = "1"
	EntryDouble   = "2"
	EntryMultiple = "MULT"
)

// VisaTypes lists the accepted visa types in display order.
var VisaTypes = []string{
	VisaTypeEmployment, VisaTypeBusiness, VisaTypeTourist, VisaTypeStudent, VisaTypeTransit,
}

// EntryAmounts lists the accepted entry-amount classes.
var EntryAmounts = []string{EntrySingle, EntryDouble, EntryMultiple}

// Visa belongs to exactly one foreign passport. Superseded visas are kept for
// history with IsActive=false; the store guarantees at most one active visa
// per (passport, type, country, entry_amount) bucket.
type Visa struct {
	ID                    uint      `json:"id"               gorm:"primaryKey"`
	Number                int       `json:"number"           gorm:"not null;uniqueIndex"`
	ForeignPassportNumber int       `json:"foreign_passport" gorm:"not null;index"`
	Type                  string    `json:"type"             gorm:"type:varchar(50);not null;default:'Tourist'"`
	Country               string    `json:"country"          gorm:"type:varchar(2);not null"`
	EntryAmount           string    `json:"entry_amount"     gorm:"type:varchar(4);not null;default:'1'"`
	DateOfIssue           time.Time `json:"date_of_issue"`
	DateOfExpiry          time.Time `json:"date_of_expiry"`
	PhotoPath             string    `json:"photo"            gorm:"type:varchar(255)"`
	IsActive              bool      `json:"is_active"        gorm:"not null;default:true"`
	CreatedAt             time.Time `json:"created_at"`

	ForeignPassport ForeignPassport `json:"-" gorm:"foreignKey:ForeignPassportNumber;references:Number;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Visa.
func (Visa) TableName() string { return "visas" }

// TaskStatus is the task state machine: pending is the only mutable state,
// approved and rejected are terminal.
type TaskStatus int

// Task statuses.
const (
	StatusPending  TaskStatus = 0
	StatusApproved TaskStatus = 1
	StatusRejected TaskStatus = 2
)

// ValidStatus reports whether s is a known task status.
func ValidStatus(s TaskStatus) bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Task is a pending citizen request awaiting staff action. Tasks are created
// by citizen-facing endpoints, resolved exactly once by staff, and never
// deleted. The payload is a tagged union decoded according to Kind.
type Task struct {
	ID        uint       `json:"id"         gorm:"primaryKey"`
	CitizenID uint       `json:"citizen_id" gorm:"not null;index"`
	Kind      Kind       `json:"kind"       gorm:"not null;index"`
	Status    TaskStatus `json:"status"     gorm:"not null;default:0;index"`
	Payload   Payload    `json:"payload"    gorm:"type:text"`
	CreatedAt time.Time  `json:"created_at"`

	Citizen Citizen `json:"-" gorm:"foreignKey:CitizenID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Task.
func (Task) TableName() string { return "tasks" }

// NewDocumentNumber generates an 8-digit document number. Uniqueness is
// enforced by the primary key / unique index at insert time.
func NewDocumentNumber() int {
	return rand.Intn(90000000-10000001) + 10000001
}
