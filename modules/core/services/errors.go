package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	CodePrivilegeEscalation  = "PRIVILEGE_ESCALATION"
	CodePrivilegeOrgScope    = "PRIVILEGE_ORG_SCOPE"
	CodeAdminOrgsRequired    = "PRIVILEGE_ADMIN_ORGS_REQUIRED"
	CodeUserNotFound         = "CORE_USER_NOT_FOUND"
	CodeOrganizationNotFound = "CORE_ORGANIZATION_NOT_FOUND"
	CodeInvalidBody          = "CORE_INVALID_BODY"
	CodeUnauthenticated      = "CORE_UNAUTHENTICATED"
	codeInternal             = "CORE_INTERNAL"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return newServiceError(http.StatusNotFound, CodeUserNotFound, "user not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23503": // foreign_key_violation
		return newServiceError(http.StatusUnprocessableEntity, CodeOrganizationNotFound, "organization not found", err)
	default:
		return newServiceError(http.StatusInternalServerError, codeInternal, fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
