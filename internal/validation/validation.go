// Package validation holds the field-level policy checks shared by the
// citizen self-service endpoints and the staff workflow actions. Failures are
// collected into an Errors map keyed by field name so handlers can return
// them verbatim as a 400 body.
package validation

import (
	"encoding/json"
	"regexp"
	"time"
)

// Errors maps a field name to its validation messages. A nil or empty map
// means the input passed.
type Errors map[string][]string

// Error implements the error interface with the JSON form of the map, which
// is also what handlers serialize into the response body.
func (e Errors) Error() string {
	b, err := json.Marshal(map[string][]string(e))
	if err != nil {
		return "validation failed"
	}
	return string(b)
}

// Add appends a message for field.
func (e Errors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Err returns e as an error, or nil when no field failed. Callers must use
// this instead of returning the map directly so an empty map compares equal
// to nil at the call site.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Validation messages. The exact wording is part of the API contract.
const (
	MsgAuthority    = "Authority must be in the format xxxx."
	MsgNumber       = "Document number must be in the format xxxxxxxx."
	MsgIssueDate    = "Issue date must be at least today."
	MsgExpiryDate   = "The expiry date must be in 10 years since today."
	MsgPostCode     = "Post code must be in the format xxxxx."
	MsgRecordNumber = "Record number must be in the format xxxxxxxx-xxxxx."
	MsgBirthDate    = "You must be at least 14 years old."
	MsgEmail        = "The email address is not valid."
	MsgRequired     = "This field is required."
)

var (
	recordNumberRE = regexp.MustCompile(`^\d{8}-\d{5}$`)
	emailRE        = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,7}$`)
)

// Authority checks the 4-digit issuing-authority code.
func Authority(authority int) bool {
	return authority > 1111 && authority < 9999
}

// DocumentNumber checks the 8-digit document number range.
func DocumentNumber(number int) bool {
	return number > 10000000 && number < 99999999
}

// IssueDate requires the issue date to be today or later. Dates compare by
// calendar day, not instant.
func IssueDate(issue, today time.Time) bool {
	return !day(issue).Before(day(today))
}

// ExpiryDate requires the expiry date to lie at least ten years past today.
// The two-day slack mirrors the leap days inside any ten-year window.
func ExpiryDate(expiry, today time.Time) bool {
	tenYears := day(today).AddDate(0, 0, 10*365+2)
	return !day(expiry).Before(tenYears)
}

// PostCode checks the 5-digit postal code range.
func PostCode(code int) bool {
	return code > 10000 && code < 99999
}

// RecordNumber checks the civil registry number format.
func RecordNumber(rn string) bool {
	return recordNumberRE.MatchString(rn)
}

// BirthDate requires the citizen to be at least 14 years old.
func BirthDate(birth, today time.Time) bool {
	age := today.Year() - birth.Year()
	if today.Month() < birth.Month() ||
		(today.Month() == birth.Month() && today.Day() < birth.Day()) {
		age--
	}
	return age >= 14
}

// Email checks the address shape.
func Email(email string) bool {
	return emailRE.MatchString(email)
}

// Document validates the staff-supplied completion fields of a passport or
// foreign passport: authority code, issue date and ten-year expiry. The same
// checks gate citizen self-service input so both paths agree.
func Document(authority int, issue, expiry time.Time, today time.Time) Errors {
	errs := Errors{}
	if !Authority(authority) {
		errs.Add("authority", MsgAuthority)
	}
	if issue.IsZero() {
		errs.Add("date_of_issue", MsgRequired)
	} else if !IssueDate(issue, today) {
		errs.Add("date_of_issue", MsgIssueDate)
	}
	if expiry.IsZero() {
		errs.Add("date_of_expiry", MsgRequired)
	} else if !ExpiryDate(expiry, today) {
		errs.Add("date_of_expiry", MsgExpiryDate)
	}
	return errs
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
