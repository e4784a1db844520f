package authz

import (
	"fmt"
)

const errorCodeForbidden = "AUTHZ_FORBIDDEN"

// ForbiddenError is returned by Authorize when enforcement denies a request.
type ForbiddenError struct {
	Subjects []string
	Object   string
	Action   string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("permission denied: %s on %s", e.Action, e.Object)
}

func (e *ForbiddenError) Code() string {
	return errorCodeForbidden
}

func configError(msg string, args ...any) error {
	return fmt.Errorf("authz: "+msg, args...)
}
