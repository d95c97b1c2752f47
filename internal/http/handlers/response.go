// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints.
// Errors come in two shapes, both stable parts of the API contract:
//
//   - business failures carry a single human-readable reason:
//     {"detail": "You already have an internal passport."}
//   - validation failures return the field-keyed message map verbatim:
//     {"authority": ["Authority must be in the format xxxx."]}
//
// translateError() centralizes the mapping from service-layer errors to HTTP
// statuses so every handler resolves conflicts, not-founds, and validation
// failures identically.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dkachan/go-passport-office/internal/domain"
	"github.com/dkachan/go-passport-office/internal/http/middleware"
	"github.com/dkachan/go-passport-office/internal/repo"
	"github.com/dkachan/go-passport-office/internal/services"
	"github.com/dkachan/go-passport-office/internal/validation"
)

// DetailResponse is the single-reason error envelope.
type DetailResponse struct {
	// Human-readable reason, safe to show to users.
	Detail string `json:"detail" example:"You already have an internal passport."`
}

// fail aborts the request with a detail envelope and logs server-side errors.
func fail(c *gin.Context, status int, detail string) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("detail", detail).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, DetailResponse{Detail: detail})
}

// failValidation aborts with the field-keyed message map as the 400 body.
func failValidation(c *gin.Context, errs validation.Errors) {
	c.AbortWithStatusJSON(http.StatusBadRequest, map[string][]string(errs))
}

// translateError maps service-layer errors onto the HTTP contract:
// validation maps → 400 (field-keyed body), conflicts and the
// already-processed guard → 400 detail, not-found values → 404 detail,
// anything else → 500.
func translateError(c *gin.Context, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		failValidation(c, verrs)
		return
	}
	if ce, ok := services.AsConflict(err); ok {
		fail(c, http.StatusBadRequest, ce.Detail)
		return
	}
	switch {
	case errors.Is(err, services.ErrTaskProcessed):
		fail(c, http.StatusBadRequest, "Request has already been processed.")
	case errors.Is(err, domain.ErrKindUnknown), errors.Is(err, domain.ErrPayloadVariant):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrTaskNotFound):
		fail(c, http.StatusNotFound, "Task not found.")
	case errors.Is(err, services.ErrVisaNotFound):
		fail(c, http.StatusNotFound, "Visa not found.")
	case errors.Is(err, services.ErrAddressNotFound):
		fail(c, http.StatusNotFound, "Address not found.")
	case errors.Is(err, services.ErrCitizenNotFound):
		fail(c, http.StatusNotFound, "Citizen not found.")
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		fail(c, http.StatusNotFound, "Not found.")
	default:
		fail(c, http.StatusInternalServerError, "internal server error")
	}
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
