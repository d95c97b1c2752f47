// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides identity resolution for the API. The service sits behind
// an authenticating gateway that forwards the caller's citizen id in the
// X-User-ID header; Identity() resolves that id against the citizens table and
// stores the record in the Gin context. RequireStaff() gates the back-office
// routes on the staff flag.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dkachan/go-passport-office/internal/domain"
	"github.com/dkachan/go-passport-office/internal/repo"
)

const (
	// userIDHeader carries the authenticated citizen id, set by the gateway.
	userIDHeader = "X-User-ID"
	// citizenKey is the Gin context key under which the resolved citizen is stored.
	citizenKey = "citizen"
)

// Identity resolves the X-User-ID header to a citizen record and aborts with
// 401 when the header is missing, malformed, or names no known citizen.
//
// Place this on every authenticated group, after Logger() so the user id shows
// up in access logs.
func Identity(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(userIDHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Authentication credentials were not provided.",
			})
			return
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Invalid authentication credentials.",
			})
			return
		}
		citizen, err := repo.GetCitizen(c.Request.Context(), db, uint(id))
		if err != nil {
			status := http.StatusInternalServerError
			detail := "internal server error"
			if err == repo.ErrNotFound || err == gorm.ErrRecordNotFound {
				status = http.StatusUnauthorized
				detail = "Invalid authentication credentials."
			}
			c.AbortWithStatusJSON(status, gin.H{"detail": detail})
			return
		}
		c.Set(citizenKey, citizen)
		c.Set("userID", raw)
		c.Next()
	}
}

// RequireStaff aborts with 403 unless the resolved citizen is staff.
// Must run after Identity().
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		citizen := CitizenFrom(c)
		if citizen == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Authentication credentials were not provided.",
			})
			return
		}
		if !citizen.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"detail": "You do not have permission to perform this action.",
			})
			return
		}
		c.Next()
	}
}

// RequireCitizen aborts with 403 when the resolved principal is staff. The
// self-service surface belongs to citizens; staff act through the review
// routes only. Must run after Identity().
func RequireCitizen() gin.HandlerFunc {
	return func(c *gin.Context) {
		citizen := CitizenFrom(c)
		if citizen == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Authentication credentials were not provided.",
			})
			return
		}
		if citizen.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"detail": "You do not have permission to perform this action.",
			})
			return
		}
		c.Next()
	}
}

// CitizenFrom returns the citizen resolved by Identity(), or nil when absent.
func CitizenFrom(c *gin.Context) *domain.Citizen {
	if v, ok := c.Get(citizenKey); ok {
		if citizen, ok := v.(*domain.Citizen); ok {
			return citizen
		}
	}
	return nil
}
