package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/middleware"
)

// writeError maps err to a status code and APIError body. Internal details
// are logged, never returned.
func (s *Server) writeError(c *gin.Context, err error) {
	requestID := middleware.RequestID(c)
	entry := s.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"path":       c.FullPath(),
	}).WithError(err)

	var (
		invalid   *domain.InvalidInputError
		noCorpus  *domain.NoCorpusError
		store     *domain.StoreUnavailableError
		invariant *domain.InvariantViolation
	)

	var status int
	var body *domain.APIError
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
		body = domain.NewAPIError(domain.CodeInvalidInput, invalid.Message, invalid.Field, requestID)
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		body = domain.NewAPIError(domain.CodeNotFound, "Resource not found", "", requestID)
	case errors.As(err, &noCorpus):
		entry.Error("Diagnosis unavailable: no disease corpus")
		status = http.StatusServiceUnavailable
		body = domain.NewAPIError(domain.CodeNoCorpus, "Diagnosis is temporarily unavailable", "", requestID)
	case errors.As(err, &store):
		entry.Warn("Store unavailable")
		status = http.StatusServiceUnavailable
		body = domain.NewAPIError(domain.CodeStoreUnavailable, "Service temporarily unavailable", "", requestID)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		entry.Warn("Request did not complete in time")
		status = http.StatusGatewayTimeout
		body = domain.NewAPIError(domain.CodeTimeout, "Request timed out", "", requestID)
	case errors.As(err, &invariant):
		entry.Error("Invariant violation")
		status = http.StatusInternalServerError
		body = domain.NewAPIError(domain.CodeInternalServer, "Internal server error", "", requestID)
	default:
		entry.Error("Unhandled error")
		status = http.StatusInternalServerError
		body = domain.NewAPIError(domain.CodeInternalServer, "Internal server error", "", requestID)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
