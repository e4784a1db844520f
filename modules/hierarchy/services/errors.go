package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	CodeNotFound            = "HIERARCHY_NOT_FOUND"
	CodeInvalidBody         = "HIERARCHY_INVALID_BODY"
	CodeNoOrganization      = "HIERARCHY_NO_ORGANIZATION"
	CodeDuplicateActiveEdge = "HIERARCHY_DUPLICATE_ACTIVE_EDGE"
	CodeUserNotFound        = "HIERARCHY_USER_NOT_FOUND"
	CodeSelfManagement      = "HIERARCHY_SELF_MANAGEMENT"
	CodeCycle               = "HIERARCHY_CYCLE"
	CodeForbiddenOrg        = "HIERARCHY_FORBIDDEN_ORGANIZATION"
	codeInternal            = "HIERARCHY_INTERNAL"
)

const (
	constraintOneActiveEdge    = "organizational_hierarchy_one_active_edge"
	constraintNoSelfManagement = "organizational_hierarchy_no_self_management"
	constraintNoCycle          = "organizational_hierarchy_no_cycle"
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

func errSelfManagement() *ServiceError {
	return newServiceError(http.StatusUnprocessableEntity, CodeSelfManagement, "an employee cannot manage themselves", nil)
}

func errCycle() *ServiceError {
	return newServiceError(http.StatusConflict, CodeCycle, "manager is a subordinate of the employee; the change would create a reporting cycle", nil)
}

func errUserNotFound() *ServiceError {
	return newServiceError(http.StatusUnprocessableEntity, CodeUserNotFound, "employee or manager is not a member of the organization", nil)
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
		return newServiceError(http.StatusNotFound, CodeNotFound, "hierarchy relationship not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		if pgErr.ConstraintName == constraintOneActiveEdge {
			return newServiceError(http.StatusConflict, CodeDuplicateActiveEdge, "employee already has an active manager", err)
		}
		return newServiceError(http.StatusConflict, CodeDuplicateActiveEdge, "unique constraint violated", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError(http.StatusUnprocessableEntity, CodeUserNotFound, "employee or manager is not a member of the organization", err)
	case "23514": // check_violation
		recordWriteConflict("check")
		if pgErr.ConstraintName == constraintNoSelfManagement {
			return newServiceError(http.StatusUnprocessableEntity, CodeSelfManagement, "an employee cannot manage themselves", err)
		}
		return newServiceError(http.StatusUnprocessableEntity, CodeInvalidBody, "check constraint violated", err)
	case "23000": // integrity_constraint_violation raised by the cycle trigger
		recordWriteConflict("cycle")
		if pgErr.ConstraintName == constraintNoCycle {
			return newServiceError(http.StatusConflict, CodeCycle, "the change would create a reporting cycle", err)
		}
		return newServiceError(http.StatusConflict, CodeCycle, "integrity constraint violated", err)
	default:
		return newServiceError(http.StatusInternalServerError, codeInternal, fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
