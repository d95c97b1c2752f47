// Staff back-office HTTP handlers.
//
// This file exposes the review surface: the filtered task listing and one
// action route per task kind. Each action binds the staff completion data,
// hands it to the workflow engine, and translates the outcome; a task id on
// the wrong action route reads as not-found.
//
//   - GET    /staff/tasks
//   - POST   /staff/create-passport/:id
//   - POST   /staff/create-foreign-passport/:id
//   - POST   /staff/restore-passport/:id
//   - POST   /staff/restore-foreign-passport/:id
//   - POST   /staff/create-visa/:id
//   - PATCH  /staff/extend-visa/:id
//   - POST   /staff/restore-visa/:id
//   - PUT    /staff/change-user-data/:id
//   - PUT    /staff/change-address/:id
//   - POST   /staff/reject/:id
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkachan/go-passport-office/internal/domain"
	"github.com/dkachan/go-passport-office/internal/services"
)

// StaffHandlers groups the staff-only endpoints.
type StaffHandlers struct {
	Tasks    *services.TaskService
	Workflow *services.WorkflowService
}

// NewStaffHandlers constructs the staff endpoint group.
func NewStaffHandlers(tasks *services.TaskService, workflow *services.WorkflowService) *StaffHandlers {
	return &StaffHandlers{Tasks: tasks, Workflow: workflow}
}

// ListTasksResponse wraps the task listing with its total count.
type ListTasksResponse struct {
	Count int64         `json:"count"`
	Tasks []domain.Task `json:"tasks"`
}

// ExtendVisaRequest carries the staff-approved new expiry date.
type ExtendVisaRequest struct {
	DateOfExpiry time.Time `json:"date_of_expiry"`
}

// atoiDefault parses s as an int, returning def when s is empty or malformed.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = atoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = atoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// ListTasks returns the review queue: pending first, newest first within a
// status, filterable by status and kind slug. all=true disables pagination.
func (h *StaffHandlers) ListTasks(c *gin.Context) {
	page, pageSize := clampPagination(c)
	opts := services.ListOptions{
		Status:   c.Query("status"),
		Kind:     c.Query("kind"),
		Page:     page,
		PageSize: pageSize,
		All:      c.Query("all") == "true",
	}
	tasks, count, err := h.Tasks.List(c.Request.Context(), opts)
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusOK, ListTasksResponse{Count: count, Tasks: tasks})
}

// taskID parses the :id path param; 0 means unparseable (no task has id 0,
// the workflow reports not-found).
func taskID(c *gin.Context) uint {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// bindCompletion reads the staff document fields from the JSON body.
func bindCompletion(c *gin.Context) (services.DocumentCompletion, bool) {
	var data services.DocumentCompletion
	if err := c.ShouldBindJSON(&data); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body.")
		return data, false
	}
	return data, true
}

// CreatePassport approves a create-internal-passport task.
func (h *StaffHandlers) CreatePassport(c *gin.Context) {
	data, okBind := bindCompletion(c)
	if !okBind {
		return
	}
	passport, err := h.Workflow.CreateInternalPassport(c.Request.Context(), taskID(c), data)
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusCreated, passport)
}

// CreateForeignPassport approves a create-foreign-passport task.
func (h *StaffHandlers) CreateForeignPassport(c *gin.Context) {
	data, okBind := bindCompletion(c)
	if !okBind {
		return
	}
	passport, err := h.Workflow.CreateForeignPassport(c.Request.Context(), taskID(c), data)
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusCreated, passport)
}

// RestorePassport approves an internal-passport restore task (loss or expiry).
func (h *StaffHandlers) RestorePassport(c *gin.Context) {
	data, okBind := bindCompletion(c)
	if !okBind {
		return
	}
	passport, err := h.Workflow.RestoreInternalPassport(c.Request.Context(), taskID(c), data)
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusCreated, passport)
}

// RestoreForeignPassport approves a foreign-passport restore task.
func (h *StaffHandlers) RestoreForeignPassport(c *gin.Context) {
	data, okBind := bindCompletion(c)
	if !okBind {
		return
	}
	passport, err := h.Workflow.RestoreForeignPassport(c.Request.Context(), taskID(c), data)
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusOK, passport)
}

// CreateVisa approves a create-visa task.
func (h *StaffHandlers) CreateVisa(c *gin.Context) {
	var data services.VisaCompletion
	if err := c.ShouldBindJSON(&data); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	visa, err := h.Workflow.CreateVisa(c.Request.Context(), taskID(c), data)
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusOK, visa)
}

// ExtendVisa approves an extend-visa task with the new expiry date.
func (h *StaffHandlers) ExtendVisa(c *gin.Context) {
	var req ExtendVisaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	visa, err := h.Workflow.ExtendVisa(c.Request.Context(), taskID(c), req.DateOfExpiry)
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusOK, visa)
}

// RestoreVisa approves a restore-visa task. No body: the replacement copies
// the lost visa.
func (h *StaffHandlers) RestoreVisa(c *gin.Context) {
	visa, err := h.Workflow.RestoreVisa(c.Request.Context(), taskID(c))
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusOK, visa)
}

// ChangeUserData approves a name/surname/patronymic change, reissuing the
// citizen's documents with the bound completion blocks.
func (h *StaffHandlers) ChangeUserData(c *gin.Context) {
	var data services.FieldChangeCompletion
	if err := c.ShouldBindJSON(&data); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	citizen, err := h.Workflow.ChangeUserField(c.Request.Context(), taskID(c), data)
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusOK, citizen)
}

// ChangeAddress approves a change-address task.
func (h *StaffHandlers) ChangeAddress(c *gin.Context) {
	citizen, err := h.Workflow.ChangeAddress(c.Request.Context(), taskID(c))
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusOK, citizen)
}

// Reject declines any pending task.
func (h *StaffHandlers) Reject(c *gin.Context) {
	task, err := h.Workflow.Reject(c.Request.Context(), taskID(c))
	if err != nil {
		translateError(c, err)
		return
	}
	ok(c, http.StatusOK, task)
}
