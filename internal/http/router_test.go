package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkachan/go-passport-office/internal/config"
	"github.com/dkachan/go-passport-office/internal/domain"
	"github.com/dkachan/go-passport-office/internal/repo"
	"github.com/dkachan/go-passport-office/internal/services"
	"github.com/dkachan/go-passport-office/internal/storage"
)

func testConfig() config.Config {
	return config.Config{
		GinMode:        gin.TestMode,
		APIBasePath:    "/api/v1",
		MaxUploadBytes: 5 << 20,
		RateRPS:        1000,
		RateBurst:      1000,
	}
}

func newAPI(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	r := gin.New()
	RegisterRoutes(r, db, storage.NewLocalStore(t.TempDir()), services.NopNotifier{}, testConfig())
	return r, db
}

func seedAPICitizen(t *testing.T, db *gorm.DB, email string, isStaff bool) *domain.Citizen {
	t.Helper()
	c := &domain.Citizen{
		Email: email, Name: "Olena", Surname: "Shevchenko", Sex: "F", IsStaff: isStaff,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed citizen: %v", err)
	}
	return c
}

// multipartBody builds a form with the given fields and one "photo" file part.
func multipartBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := w.CreateFormFile("photo", "face.jpg")
	if err != nil {
		t.Fatalf("create file part: %v", err)
	}
	if _, err := io.WriteString(part, "jpegbytes"); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func request(r *gin.Engine, method, path string, body io.Reader, contentType string, userID uint) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.Itoa(int(userID)))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndFallbackRoutes(t *testing.T) {
	r, _ := newAPI(t)

	if w := request(r, http.MethodGet, "/health", nil, "", 0); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	if w := request(r, http.MethodGet, "/metrics", nil, "", 0); w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
	w := request(r, http.MethodGet, "/no/such/route", nil, "", 0)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "detail") {
		t.Fatalf("fallback: %d %s", w.Code, w.Body.String())
	}
}

func TestRoleGates(t *testing.T) {
	r, db := newAPI(t)
	citizen := seedAPICitizen(t, db, "c@example.com", false)
	staff := seedAPICitizen(t, db, "s@example.com", true)

	if w := request(r, http.MethodGet, "/api/v1/staff/tasks", nil, "", citizen.ID); w.Code != http.StatusForbidden {
		t.Fatalf("citizen on staff route: %d", w.Code)
	}
	if w := request(r, http.MethodGet, "/api/v1/documents", nil, "", staff.ID); w.Code != http.StatusForbidden {
		t.Fatalf("staff on self-service route: %d", w.Code)
	}
	if w := request(r, http.MethodGet, "/api/v1/documents", nil, "", 0); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", w.Code)
	}
}

func TestInternalPassport_EndToEnd(t *testing.T) {
	r, db := newAPI(t)
	citizen := seedAPICitizen(t, db, "flow@example.com", false)
	staff := seedAPICitizen(t, db, "staff@example.com", true)

	// No document yet.
	w := request(r, http.MethodGet, "/api/v1/documents/internal-passport", nil, "", citizen.ID)
	if w.Code != http.StatusNotFound ||
		!strings.Contains(w.Body.String(), "You don't have an internal passport yet.") {
		t.Fatalf("empty state: %d %s", w.Code, w.Body.String())
	}

	// Submit the issuance request with photo and address.
	body, contentType := multipartBody(t, map[string]string{
		"country_code": "ua",
		"region":       "Kyiv",
		"settlement":   "Kyiv",
		"street":       "Khreshchatyk 1",
		"apartments":   "12",
		"post_code":    "20200",
	})
	w = request(r, http.MethodPost, "/api/v1/documents/internal-passport", body, contentType, citizen.ID)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	var task struct {
		ID     uint `json:"id"`
		Status int  `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if task.Status != int(domain.StatusPending) {
		t.Fatalf("task must start pending: %+v", task)
	}

	// The staff listing shows it.
	w = request(r, http.MethodGet, "/api/v1/staff/tasks", nil, "", staff.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	var listing struct {
		Count int64         `json:"count"`
		Tasks []domain.Task `json:"tasks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if listing.Count != 1 || len(listing.Tasks) != 1 || listing.Tasks[0].ID != task.ID {
		t.Fatalf("listing: %+v", listing)
	}

	// Staff approves with valid document fields.
	now := time.Now().UTC()
	completion, _ := json.Marshal(map[string]any{
		"authority":      6666,
		"date_of_issue":  now.Format(time.RFC3339),
		"date_of_expiry": now.AddDate(0, 0, 10*365+3).Format(time.RFC3339),
	})
	approveURL := fmt.Sprintf("/api/v1/staff/create-passport/%d", task.ID)
	w = request(r, http.MethodPost, approveURL, bytes.NewReader(completion), "application/json", staff.ID)
	if w.Code != http.StatusCreated {
		t.Fatalf("approve: %d %s", w.Code, w.Body.String())
	}

	// The citizen now holds the document.
	w = request(r, http.MethodGet, "/api/v1/documents/internal-passport", nil, "", citizen.ID)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"authority":6666`) {
		t.Fatalf("issued document: %d %s", w.Code, w.Body.String())
	}

	// A second approval is refused as already processed.
	w = request(r, http.MethodPost, approveURL, bytes.NewReader(completion), "application/json", staff.ID)
	if w.Code != http.StatusBadRequest ||
		!strings.Contains(w.Body.String(), "Request has already been processed.") {
		t.Fatalf("double approve: %d %s", w.Code, w.Body.String())
	}
}

func TestRestorePassport_IssuesReplacementWithCreated(t *testing.T) {
	r, db := newAPI(t)
	citizen := seedAPICitizen(t, db, "lost@example.com", false)
	staff := seedAPICitizen(t, db, "desk@example.com", true)

	old := &domain.Passport{
		Number: domain.NewDocumentNumber(), Authority: 4455,
		DateOfIssue: time.Now().UTC(), DateOfExpiry: time.Now().UTC().AddDate(10, 0, 0),
	}
	if err := db.Create(old).Error; err != nil {
		t.Fatalf("seed passport: %v", err)
	}
	if err := repo.AttachPassport(context.Background(), db, citizen.ID, old.Number); err != nil {
		t.Fatalf("attach passport: %v", err)
	}

	body, contentType := multipartBody(t, map[string]string{"reason": "loss"})
	w := request(r, http.MethodPut, "/api/v1/documents/internal-passport", body, contentType, citizen.ID)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit restore: %d %s", w.Code, w.Body.String())
	}
	var task struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}

	// A replacement document is a new resource, so approval returns 201.
	now := time.Now().UTC()
	completion, _ := json.Marshal(map[string]any{
		"authority":      6666,
		"date_of_issue":  now.Format(time.RFC3339),
		"date_of_expiry": now.AddDate(0, 0, 10*365+3).Format(time.RFC3339),
	})
	approveURL := fmt.Sprintf("/api/v1/staff/restore-passport/%d", task.ID)
	w = request(r, http.MethodPost, approveURL, bytes.NewReader(completion), "application/json", staff.ID)
	if w.Code != http.StatusCreated {
		t.Fatalf("approve restore: %d %s", w.Code, w.Body.String())
	}
	var issued domain.Passport
	if err := json.Unmarshal(w.Body.Bytes(), &issued); err != nil {
		t.Fatalf("decode passport: %v", err)
	}
	if issued.Number == old.Number {
		t.Fatalf("replacement must carry a new number: %d", issued.Number)
	}
}

func TestInternalPassport_SubmitValidation(t *testing.T) {
	r, db := newAPI(t)
	citizen := seedAPICitizen(t, db, "val@example.com", false)

	// Missing fields come back as a field-keyed map.
	body, contentType := multipartBody(t, map[string]string{"region": "Kyiv"})
	w := request(r, http.MethodPost, "/api/v1/documents/internal-passport", body, contentType, citizen.ID)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	var errs map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &errs); err != nil {
		t.Fatalf("decode errors: %v", err)
	}
	for _, field := range []string{"country_code", "settlement", "street", "apartments", "post_code"} {
		if len(errs[field]) == 0 {
			t.Fatalf("missing error for %s: %v", field, errs)
		}
	}
	if errs["post_code"][0] != "Post code must be in the format xxxxx." {
		t.Fatalf("post code message: %v", errs["post_code"])
	}
}

func TestStaffListTasks_FilterValidation(t *testing.T) {
	r, db := newAPI(t)
	staff := seedAPICitizen(t, db, "filters@example.com", true)

	w := request(r, http.MethodGet, "/api/v1/staff/tasks?status=3", nil, "", staff.ID)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Invalid status.") {
		t.Fatalf("bad status: %d %s", w.Code, w.Body.String())
	}
	w = request(r, http.MethodGet, "/api/v1/staff/tasks?kind=create+visa", nil, "", staff.ID)
	if w.Code != http.StatusBadRequest ||
		!strings.Contains(w.Body.String(), "Spaces are not allowed in the kind filter.") {
		t.Fatalf("spaced kind: %d %s", w.Code, w.Body.String())
	}
	w = request(r, http.MethodGet, "/api/v1/staff/tasks?kind=create-visa", nil, "", staff.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("valid filter: %d %s", w.Code, w.Body.String())
	}
}

func TestVisaRoutes_RequireForeignPassport(t *testing.T) {
	r, db := newAPI(t)
	citizen := seedAPICitizen(t, db, "novisa@example.com", false)

	w := request(r, http.MethodGet, "/api/v1/documents/visas", nil, "", citizen.ID)
	if w.Code != http.StatusNotFound ||
		!strings.Contains(w.Body.String(), "You don't have a foreign passport yet.") {
		t.Fatalf("visas without passport: %d %s", w.Code, w.Body.String())
	}

	// A visa id the citizen does not own reads as missing.
	w = request(r, http.MethodPatch, "/api/v1/documents/visas/123/extend", nil, "", citizen.ID)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "Visa not found.") {
		t.Fatalf("foreign visa: %d %s", w.Code, w.Body.String())
	}
}

func TestRestore_RequiresKnownReason(t *testing.T) {
	r, db := newAPI(t)
	citizen := seedAPICitizen(t, db, "reason@example.com", false)

	body, contentType := multipartBody(t, map[string]string{"reason": "stolen"})
	w := request(r, http.MethodPut, "/api/v1/documents/internal-passport", body, contentType, citizen.ID)
	if w.Code != http.StatusBadRequest ||
		!strings.Contains(w.Body.String(), "Reason must be one of: loss, expiry.") {
		t.Fatalf("bad reason: %d %s", w.Code, w.Body.String())
	}
}
