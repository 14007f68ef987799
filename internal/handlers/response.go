package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/personaforge/backend/internal/services"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps service sentinel errors onto HTTP statuses.
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrPublishConflict):
		RespondError(c, http.StatusConflict, "publish_conflict", err)
	case errors.Is(err, services.ErrUnsupportedArchiveVersion):
		RespondError(c, http.StatusUnprocessableEntity, "unsupported_archive_version", err)
	case errors.Is(err, services.ErrMissingArchiveSection),
		errors.Is(err, services.ErrCorruptArchive):
		RespondError(c, http.StatusBadRequest, "invalid_archive", err)
	case errors.Is(err, services.ErrUnsupportedFormat):
		RespondError(c, http.StatusBadRequest, "unsupported_format", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
