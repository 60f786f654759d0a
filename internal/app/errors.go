package app

import (
	"errors"
	"fmt"
	"net/http"

	"dealdesk/api/internal/auth"
	"dealdesk/api/internal/deal"
	"dealdesk/api/internal/export"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// AuditWriteError reports a committed mutation whose audit entry could be
// neither stored nor spooled. The version change itself is durable.
type AuditWriteError struct {
	PropertyID string
	Version    string
	Revision   int
	Action     deal.Action
	Err        error
}

func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("audit write failed for %s@%s r%d (%s): %v", e.PropertyID, e.Version, e.Revision, e.Action, e.Err)
}

func (e *AuditWriteError) Unwrap() error { return e.Err }

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var auditErr *AuditWriteError
	if errors.As(err, &auditErr) {
		return http.StatusInternalServerError, "AUDIT_WRITE_FAILED", "Change saved but audit entry could not be recorded", map[string]any{
			"propertyId": auditErr.PropertyID,
			"version":    auditErr.Version,
			"revision":   auditErr.Revision,
		}
	}
	var dealErr *deal.Error
	if errors.As(err, &dealErr) {
		switch dealErr.Kind {
		case deal.KindNotFound:
			return http.StatusNotFound, string(dealErr.Kind), dealErr.Message, nil
		case deal.KindConflict:
			return http.StatusConflict, string(dealErr.Kind), dealErr.Message, nil
		case deal.KindValidation:
			return http.StatusUnprocessableEntity, string(dealErr.Kind), dealErr.Message, nil
		}
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
