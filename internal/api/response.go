package api

import (
	"context"  // Deadline detection
	"errors"   // Error matching
	"net/http" // HTTP status codes
	"strconv"  // Query parsing

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library

	"github.com/The-Quan/atm-banking-2/internal/auth"     // Authorization errors
	"github.com/The-Quan/atm-banking-2/internal/identity" // Identity errors
	"github.com/The-Quan/atm-banking-2/internal/ledger"   // Ledger errors
)

// Pagination bounds
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// errorStatus maps an error to its HTTP status, stable code and client message
func errorStatus(err error) (int, string, string) {
	var le *ledger.Error
	if errors.As(err, &le) {
		switch le {
		case ledger.ErrInvalidAmount, ledger.ErrInvalidTransfer:
			return http.StatusBadRequest, le.Code, err.Error()
		case ledger.ErrAccountNotFound, ledger.ErrUserNotFound:
			return http.StatusNotFound, le.Code, le.Message
		case ledger.ErrInsufficientFunds, ledger.ErrLimitExceeded:
			return http.StatusUnprocessableEntity, le.Code, err.Error()
		case ledger.ErrTransientConflict:
			return http.StatusConflict, le.Code, le.Message
		case ledger.ErrStoreUnavailable:
			return http.StatusServiceUnavailable, le.Code, le.Message
		}
		return http.StatusInternalServerError, le.Code, le.Message
	}
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", err.Error()
	case errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_TAKEN", err.Error()
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error()
	case errors.Is(err, identity.ErrWeakPassword), errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrNameRequired):
		return http.StatusBadRequest, "INVALID_REQUEST", err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "request timed out"
	case errors.Is(err, context.Canceled):
		return 499, "CANCELLED", "request cancelled"
	}
	return http.StatusInternalServerError, "INTERNAL", "internal error"
}

// respondError writes err as {"error", "code"} and logs server-side failures
func respondError(c *gin.Context, err error) {
	status, code, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"code":  code,
			"error": err.Error(),
		}).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": msg, "code": code})
}

// badRequest rejects a malformed body or parameter
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "INVALID_REQUEST"})
}

// pagination reads page and page_size with the usual defaults and bounds
func pagination(c *gin.Context) (int, int, ledger.Page) {
	page := 1                   // Default page number
	pageSize := defaultPageSize // Default page size
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v // Set page if valid
		}
	}
	// Check and set page size within limits
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= maxPageSize {
			pageSize = v // Set page size
		}
	}
	return page, pageSize, ledger.Page{Limit: pageSize, Offset: (page - 1) * pageSize}
}

func totalPages(total int64, pageSize int) int {
	return (int(total) + pageSize - 1) / pageSize
}

// idParam parses a positive integer path parameter
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}
