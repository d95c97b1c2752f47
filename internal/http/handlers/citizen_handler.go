// Citizen self-service HTTP handlers.
//
// This file exposes the document endpoints citizens use to view their
// documents and to submit requests. Submissions carry a photo as a multipart
// form and never touch the document store directly: every mutation becomes a
// pending task for staff review.
//
//   - GET    /documents                      (all documents)
//   - GET    /documents/internal-passport
//   - POST   /documents/internal-passport    (request issuance)
//   - PUT    /documents/internal-passport    (request restore, reason=loss|expiry)
//   - GET    /documents/foreign-passport
//   - POST   /documents/foreign-passport
//   - PUT    /documents/foreign-passport
//   - GET    /documents/visas
//   - POST   /documents/visas                (request a visa)
//   - PATCH  /documents/visas/:id/extend     (request extension)
//   - PUT    /documents/visas/:id            (request restore)
//   - GET    /documents/address
//   - PATCH  /documents/address              (request address change)
//   - GET    /documents/user-data
//   - PATCH  /documents/user-data            (request name/surname/patronymic change)
package handlers

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"gorm.io/gorm"

	"github.com/dkachan/go-passport-office/internal/domain"
	"github.com/dkachan/go-passport-office/internal/http/middleware"
	"github.com/dkachan/go-passport-office/internal/repo"
	"github.com/dkachan/go-passport-office/internal/services"
	"github.com/dkachan/go-passport-office/internal/storage"
	"github.com/dkachan/go-passport-office/internal/validation"
)

// CitizenHandlers groups the citizen-facing endpoints.
type CitizenHandlers struct {
	DB     *gorm.DB
	Tasks  *services.TaskService
	Photos storage.Store
	// MaxUploadBytes caps the accepted photo size.
	MaxUploadBytes int64
}

// NewCitizenHandlers constructs the citizen endpoint group.
func NewCitizenHandlers(db *gorm.DB, tasks *services.TaskService, photos storage.Store, maxUpload int64) *CitizenHandlers {
	return &CitizenHandlers{DB: db, Tasks: tasks, Photos: photos, MaxUploadBytes: maxUpload}
}

// DocumentsResponse bundles everything a citizen holds.
type DocumentsResponse struct {
	InternalPassport *domain.Passport        `json:"internal_passport"`
	ForeignPassport  *domain.ForeignPassport `json:"foreign_passport"`
	Visas            []domain.Visa           `json:"visas"`
	Address          *domain.Address         `json:"address"`
}

// AddressRequest carries the registration address fields of a submission.
type AddressRequest struct {
	CountryCode string `json:"country_code" form:"country_code"`
	Region      string `json:"region"       form:"region"`
	Settlement  string `json:"settlement"   form:"settlement"`
	Street      string `json:"street"       form:"street"`
	Apartments  string `json:"apartments"   form:"apartments"`
	PostCode    int    `json:"post_code"    form:"post_code"`
}

// validate collects the address field failures.
func (r AddressRequest) validate() validation.Errors {
	errs := validation.Errors{}
	for field, value := range map[string]string{
		"country_code": r.CountryCode,
		"region":       r.Region,
		"settlement":   r.Settlement,
		"street":       r.Street,
		"apartments":   r.Apartments,
	} {
		if strings.TrimSpace(value) == "" {
			errs.Add(field, validation.MsgRequired)
		}
	}
	if !validation.PostCode(r.PostCode) {
		errs.Add("post_code", validation.MsgPostCode)
	}
	return errs
}

// storePhoto reads the uploaded "photo" part, enforces the size cap, and
// writes it to the photo store under the deterministic name for this request.
func (h *CitizenHandlers) storePhoto(c *gin.Context, citizen *domain.Citizen, kind domain.Kind) (string, error) {
	header, err := c.FormFile("photo")
	if err != nil {
		return "", validation.Errors{"photo": {validation.MsgRequired}}
	}
	if h.MaxUploadBytes > 0 && header.Size > h.MaxUploadBytes {
		return "", validation.Errors{"photo": {"The photo is too large."}}
	}
	f, err := header.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	name := storage.ObjectName(citizen, kind, filepath.Ext(header.Filename))
	return h.Photos.Save(c.Request.Context(), name, f, header.Size, header.Header.Get("Content-Type"))
}

// submit runs the task service and writes the created task as 201.
func (h *CitizenHandlers) submit(c *gin.Context, kind domain.Kind, payload domain.Payload) {
	citizen := middleware.CitizenFrom(c)
	task, err := h.Tasks.Submit(c.Request.Context(), citizen, kind, payload)
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusCreated, task)
}

// ListDocuments returns everything the citizen currently holds.
func (h *CitizenHandlers) ListDocuments(c *gin.Context) {
	citizen := middleware.CitizenFrom(c)
	resp := DocumentsResponse{
		InternalPassport: citizen.Passport,
		ForeignPassport:  citizen.ForeignPassport,
		Visas:            []domain.Visa{},
		Address:          citizen.Address,
	}
	if citizen.ForeignPassportNumber != nil {
		visas, err := repo.ListVisas(c.Request.Context(), h.DB, *citizen.ForeignPassportNumber)
		if err != nil {
			translateError(c, err)
			return
		}
		resp.Visas = visas
	}
	ok(c, http.StatusOK, resp)
}

// GetInternalPassport returns the citizen's internal passport.
func (h *CitizenHandlers) GetInternalPassport(c *gin.Context) {
	citizen := middleware.CitizenFrom(c)
	if citizen.Passport == nil {
		fail(c, http.StatusNotFound, "You don't have an internal passport yet.")
		return
	}
	ok(c, http.StatusOK, citizen.Passport)
}

// CreateInternalPassport submits an issuance request: photo plus the
// registration address that will be attached on approval.
func (h *CitizenHandlers) CreateInternalPassport(c *gin.Context) {
	citizen := middleware.CitizenFrom(c)

	var req AddressRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid form data.")
		return
	}
	if err := req.validate().Err(); err != nil {
		translateError(c, err)
		return
	}

	photo, err := h.storePhoto(c, citizen, domain.KindCreateInternalPassport)
	if err != nil {
		translateError(c, err)
		return
	}
	addr, err := repo.FindOrCreateAddress(c.Request.Context(), h.DB, domain.Address{
		CountryCode: strings.ToUpper(req.CountryCode),
		Region:      req.Region,
		Settlement:  req.Settlement,
		Street:      req.Street,
		Apartments:  req.Apartments,
		PostCode:    req.PostCode,
	})
	if err != nil {
		translateError(c, err)
		return
	}

	h.submit(c, domain.KindCreateInternalPassport, domain.Payload{
		Document: &domain.DocumentPayload{PhotoPath: photo, AddressID: &addr.ID},
	})
}

// RestoreInternalPassport submits a restore request; the form's reason field
// selects the loss or expiry variant.
func (h *CitizenHandlers) RestoreInternalPassport(c *gin.Context) {
	kind, err := restoreKind(c.PostForm("reason"),
		domain.KindRestoreInternalPassportLoss, domain.KindRestoreInternalPassportExpiry)
	if err != nil {
		translateError(c, err)
		return
	}
	citizen := middleware.CitizenFrom(c)
	photo, err := h.storePhoto(c, citizen, kind)
	if err != nil {
		translateError(c, err)
		return
	}
	h.submit(c, kind, domain.Payload{Document: &domain.DocumentPayload{PhotoPath: photo}})
}

// GetForeignPassport returns the citizen's foreign passport.
func (h *CitizenHandlers) GetForeignPassport(c *gin.Context) {
	citizen := middleware.CitizenFrom(c)
	if citizen.ForeignPassport == nil {
		fail(c, http.StatusNotFound, "You don't have a foreign passport yet.")
		return
	}
	ok(c, http.StatusOK, citizen.ForeignPassport)
}

// CreateForeignPassport submits a foreign-passport issuance request.
func (h *CitizenHandlers) CreateForeignPassport(c *gin.Context) {
	citizen := middleware.CitizenFrom(c)
	photo, err := h.storePhoto(c, citizen, domain.KindCreateForeignPassport)
	if err != nil {
		translateError(c, err)
		return
	}
	h.submit(c, domain.KindCreateForeignPassport, domain.Payload{
		Document: &domain.DocumentPayload{PhotoPath: photo},
	})
}

// RestoreForeignPassport submits a foreign-passport restore request.
func (h *CitizenHandlers) RestoreForeignPassport(c *gin.Context) {
	kind, err := restoreKind(c.PostForm("reason"),
		domain.KindRestoreForeignPassportLoss, domain.KindRestoreForeignPassportExpiry)
	if err != nil {
		translateError(c, err)
		return
	}
	citizen := middleware.CitizenFrom(c)
	photo, err := h.storePhoto(c, citizen, kind)
	if err != nil {
		translateError(c, err)
		return
	}
	h.submit(c, kind, domain.Payload{Document: &domain.DocumentPayload{PhotoPath: photo}})
}

// ListVisas returns the visas attached to the citizen's foreign passport.
func (h *CitizenHandlers) ListVisas(c *gin.Context) {
	citizen := middleware.CitizenFrom(c)
	if citizen.ForeignPassportNumber == nil {
		fail(c, http.StatusNotFound, "You don't have a foreign passport yet.")
		return
	}
	visas, err := repo.ListVisas(c.Request.Context(), h.DB, *citizen.ForeignPassportNumber)
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusOK, visas)
}

// CreateVisa submits a visa request: photo plus type, destination country
// and entry amount.
func (h *CitizenHandlers) CreateVisa(c *gin.Context) {
	citizen := middleware.CitizenFrom(c)

	visaType := c.PostForm("type")
	country := strings.ToUpper(strings.TrimSpace(c.PostForm("country")))
	entry := c.PostForm("entry_amount")

	errs := validation.Errors{}
	if !contains(domain.VisaTypes, visaType) {
		errs.Add("type", "Invalid visa type.")
	}
	if len(country) != 2 {
		errs.Add("country", "Country must be a two-letter code.")
	}
	if !contains(domain.EntryAmounts, entry) {
		errs.Add("entry_amount", "Invalid entry amount.")
	}
	if err := errs.Err(); err != nil {
		translateError(c, err)
		return
	}

	photo, err := h.storePhoto(c, citizen, domain.KindCreateVisa)
	if err != nil {
		translateError(c, err)
		return
	}
	h.submit(c, domain.KindCreateVisa, domain.Payload{
		VisaCreate: &domain.VisaCreatePayload{
			PhotoPath:   photo,
			Type:        visaType,
			Country:     country,
			EntryAmount: entry,
		},
	})
}

// ExtendVisa submits an extension request for one of the citizen's visas.
func (h *CitizenHandlers) ExtendVisa(c *gin.Context) {
	visa, okVisa := h.ownedVisa(c)
	if !okVisa {
		return
	}
	h.submit(c, domain.KindExtendVisa, domain.Payload{
		VisaTarget: &domain.VisaTargetPayload{VisaID: visa.ID},
	})
}

// RestoreVisa submits a restore request for a lost visa. Only the photo is
// new; the replacement copies the lost visa's attributes on approval.
func (h *CitizenHandlers) RestoreVisa(c *gin.Context) {
	visa, okVisa := h.ownedVisa(c)
	if !okVisa {
		return
	}
	citizen := middleware.CitizenFrom(c)
	photo, err := h.storePhoto(c, citizen, domain.KindRestoreVisaLoss)
	if err != nil {
		translateError(c, err)
		return
	}
	h.submit(c, domain.KindRestoreVisaLoss, domain.Payload{
		VisaTarget: &domain.VisaTargetPayload{VisaID: visa.ID, PhotoPath: photo},
	})
}

// ownedVisa resolves the :id path param to a visa on the citizen's foreign
// passport. A foreign visa reads the same as a missing one.
func (h *CitizenHandlers) ownedVisa(c *gin.Context) (*domain.Visa, bool) {
	citizen := middleware.CitizenFrom(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusNotFound, "Visa not found.")
		return nil, false
	}
	visa, err := repo.GetVisa(c.Request.Context(), h.DB, uint(id))
	if err != nil {
		fail(c, http.StatusNotFound, "Visa not found.")
		return nil, false
	}
	if citizen.ForeignPassportNumber == nil || visa.ForeignPassportNumber != *citizen.ForeignPassportNumber {
		fail(c, http.StatusNotFound, "Visa not found.")
		return nil, false
	}
	return visa, true
}

// GetAddress returns the citizen's registration address.
func (h *CitizenHandlers) GetAddress(c *gin.Context) {
	citizen := middleware.CitizenFrom(c)
	if citizen.Address == nil {
		fail(c, http.StatusNotFound, "You don't have a registration address yet.")
		return
	}
	ok(c, http.StatusOK, citizen.Address)
}

// ChangeAddress submits a registration address change.
func (h *CitizenHandlers) ChangeAddress(c *gin.Context) {
	var req AddressRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid form data.")
		return
	}
	if err := req.validate().Err(); err != nil {
		translateError(c, err)
		return
	}
	addr, err := repo.FindOrCreateAddress(c.Request.Context(), h.DB, domain.Address{
		CountryCode: strings.ToUpper(req.CountryCode),
		Region:      req.Region,
		Settlement:  req.Settlement,
		Street:      req.Street,
		Apartments:  req.Apartments,
		PostCode:    req.PostCode,
	})
	if err != nil {
		translateError(c, err)
		return
	}
	h.submit(c, domain.KindChangeAddress, domain.Payload{
		Address: &domain.AddressPayload{AddressID: addr.ID},
	})
}

// GetUserData returns the citizen's own record.
func (h *CitizenHandlers) GetUserData(c *gin.Context) {
	ok(c, http.StatusOK, middleware.CitizenFrom(c))
}

// ChangeUserData submits a name, surname or patronymic change. The form's
// field value selects which one; the photo goes onto the reissued documents.
func (h *CitizenHandlers) ChangeUserData(c *gin.Context) {
	citizen := middleware.CitizenFrom(c)

	field := c.PostForm("field")
	value := strings.TrimSpace(c.PostForm("value"))

	var kind domain.Kind
	switch field {
	case "name":
		kind = domain.KindChangeName
	case "surname":
		kind = domain.KindChangeSurname
	case "patronymic":
		kind = domain.KindChangePatronymic
	default:
		translateError(c, validation.Errors{"field": {"Field must be one of: name, surname, patronymic."}})
		return
	}
	if value == "" {
		translateError(c, validation.Errors{"value": {validation.MsgRequired}})
		return
	}

	photo, err := h.storePhoto(c, citizen, kind)
	if err != nil {
		translateError(c, err)
		return
	}
	h.submit(c, kind, domain.Payload{
		FieldChange: &domain.FieldChangePayload{Value: value, PhotoPath: photo},
	})
}

// restoreKind maps the form's reason to the loss/expiry kind pair.
func restoreKind(reason string, loss, expiry domain.Kind) (domain.Kind, error) {
	switch reason {
	case "loss":
		return loss, nil
	case "expiry":
		return expiry, nil
	}
	return 0, validation.Errors{"reason": {"Reason must be one of: loss, expiry."}}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
