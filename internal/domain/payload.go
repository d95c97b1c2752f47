package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Payload is the task payload: a tagged union keyed by the task's Kind.
// Exactly one variant is set per task; the workflow engine dispatches on the
// kind and reads the matching variant instead of probing a loose key-value
// bag. The whole union is stored as a single JSON text column.
type Payload struct {
	Document    *DocumentPayload    `json:"document,omitempty"`
	VisaCreate  *VisaCreatePayload  `json:"visa_create,omitempty"`
	VisaTarget  *VisaTargetPayload  `json:"visa_target,omitempty"`
	FieldChange *FieldChangePayload `json:"field_change,omitempty"`
	Address     *AddressPayload     `json:"address,omitempty"`
}

// DocumentPayload backs passport create/restore requests: the citizen's
// uploaded photo and, for initial internal-passport issuance, the
// registration address submitted alongside it.
type DocumentPayload struct {
	PhotoPath string `json:"photo"`
	AddressID *uint  `json:"address_id,omitempty"`
}

// VisaCreatePayload carries the attributes of a requested visa.
type VisaCreatePayload struct {
	PhotoPath   string `json:"photo"`
	Type        string `json:"type"`
	Country     string `json:"country"`
	EntryAmount string `json:"entry_amount"`
}

// VisaTargetPayload points at an existing visa for extend/restore requests.
// The photo is only present for restore (the replacement document needs one).
type VisaTargetPayload struct {
	VisaID    uint   `json:"visa_id"`
	PhotoPath string `json:"photo,omitempty"`
}

// FieldChangePayload carries the proposed value for a name/surname/patronymic
// change together with the photo for the reissued documents. The field being
// changed is encoded by the task kind, not repeated here.
type FieldChangePayload struct {
	Value     string `json:"value"`
	PhotoPath string `json:"photo"`
}

// AddressPayload references the de-duplicated address row a change-address
// request proposes.
type AddressPayload struct {
	AddressID uint `json:"address_id"`
}

// Value implements driver.Valuer, serializing the payload to JSON text.
func (p Payload) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner, decoding the JSON text column.
func (p *Payload) Scan(value any) error {
	if value == nil {
		*p = Payload{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported payload column type %T", value)
	}
	if len(data) == 0 {
		*p = Payload{}
		return nil
	}
	return json.Unmarshal(data, p)
}

// ErrPayloadVariant is returned when a task's payload does not carry the
// variant its kind requires. It indicates a programming error at task
// creation, not bad user input.
var ErrPayloadVariant = errors.New("task payload does not match task kind")

// VariantFor returns whether the payload carries the variant required by
// kind. Used by the workflow engine to fail fast before touching documents.
func (p Payload) VariantFor(kind Kind) bool {
	switch kind {
	case KindCreateInternalPassport, KindCreateForeignPassport,
		KindRestoreInternalPassportLoss, KindRestoreInternalPassportExpiry,
		KindRestoreForeignPassportLoss, KindRestoreForeignPassportExpiry:
		return p.Document != nil
	case KindCreateVisa:
		return p.VisaCreate != nil
	case KindExtendVisa, KindRestoreVisaLoss:
		return p.VisaTarget != nil
	case KindChangeName, KindChangeSurname, KindChangePatronymic:
		return p.FieldChange != nil
	case KindChangeAddress:
		return p.Address != nil
	}
	return false
}
