package domain

import (
	"errors"
	"strings"
)

// Kind identifies what a Task requests. The set is closed and ordered; each
// kind is bound to exactly one staff workflow handler.
type Kind int

// Task kinds, in the order of the request catalogue.
const (
	KindCreateInternalPassport Kind = iota + 1
	KindCreateForeignPassport
	KindCreateVisa
	KindExtendVisa
	KindRestoreVisaLoss
	KindRestoreInternalPassportLoss
	KindRestoreInternalPassportExpiry
	KindRestoreForeignPassportLoss
	KindRestoreForeignPassportExpiry
	KindChangeName
	KindChangeSurname
	KindChangePatronymic
	KindChangeAddress
)

// kindNames holds the human-readable request names, kept verbatim from the
// request catalogue so notifications read naturally.
var kindNames = map[Kind]string{
	KindCreateInternalPassport:        "create an internal passport",
	KindCreateForeignPassport:         "create a foreign passport",
	KindCreateVisa:                    "create a visa",
	KindExtendVisa:                    "extend a visa",
	KindRestoreVisaLoss:               "restore a visa due to loss",
	KindRestoreInternalPassportLoss:   "restore an internal passport due to loss",
	KindRestoreInternalPassportExpiry: "restore an internal passport due to expiry",
	KindRestoreForeignPassportLoss:    "restore a foreign passport due to loss",
	KindRestoreForeignPassportExpiry:  "restore a foreign passport due to expiry",
	KindChangeName:                    "change user name",
	KindChangeSurname:                 "change user surname",
	KindChangePatronymic:              "change user patronymic",
	KindChangeAddress:                 "change registration address",
}

// kindSlugs maps kinds to the hyphenated slugs used in filters and staff
// action URLs.
var kindSlugs = map[Kind]string{
	KindCreateInternalPassport:        "create-internal-passport",
	KindCreateForeignPassport:         "create-foreign-passport",
	KindCreateVisa:                    "create-visa",
	KindExtendVisa:                    "extend-visa",
	KindRestoreVisaLoss:               "restore-visa-loss",
	KindRestoreInternalPassportLoss:   "restore-internal-passport-loss",
	KindRestoreInternalPassportExpiry: "restore-internal-passport-expiry",
	KindRestoreForeignPassportLoss:    "restore-foreign-passport-loss",
	KindRestoreForeignPassportExpiry:  "restore-foreign-passport-expiry",
	KindChangeName:                    "change-name",
	KindChangeSurname:                 "change-surname",
	KindChangePatronymic:              "change-patronymic",
	KindChangeAddress:                 "change-address",
}

var slugKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindSlugs))
	for k, s := range kindSlugs {
		m[s] = k
	}
	return m
}()

// Parse errors for kind filter values.
var (
	ErrKindSpaces  = errors.New("spaces are not allowed in the kind filter")
	ErrKindUnknown = errors.New("invalid kind")
)

// Valid reports whether k is a member of the closed kind set.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Name returns the human-readable request name, e.g. "create a visa".
func (k Kind) Name() string { return kindNames[k] }

// Slug returns the hyphenated identifier used in URLs and filters.
func (k Kind) Slug() string { return kindSlugs[k] }

// String implements fmt.Stringer using the slug form.
func (k Kind) String() string { return k.Slug() }

// ParseKind resolves a hyphenated slug to a Kind. Values containing
// whitespace are rejected outright (filter values are slugs, a space is
// invalid input rather than a silent no-match); anything outside the closed
// set is ErrKindUnknown.
func ParseKind(slug string) (Kind, error) {
	if strings.ContainsAny(slug, " \t") {
		return 0, ErrKindSpaces
	}
	k, ok := slugKinds[slug]
	if !ok {
		return 0, ErrKindUnknown
	}
	return k, nil
}

// IsVisaKind reports whether the kind targets a visa. Visa kinds carry an
// extra duplicate-guard key (target visa id or destination country).
func (k Kind) IsVisaKind() bool {
	switch k {
	case KindCreateVisa, KindExtendVisa, KindRestoreVisaLoss:
		return true
	}
	return false
}

// FieldName returns the citizen field a change-user-data kind updates, or ""
// for every other kind.
func (k Kind) FieldName() string {
	switch k {
	case KindChangeName:
		return "name"
	case KindChangeSurname:
		return "surname"
	case KindChangePatronymic:
		return "patronymic"
	}
	return ""
}
