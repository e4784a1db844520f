package constants

import (
	"github.com/go-playground/validator/v10"
)

type ContextKey string

const (
	AppKey            ContextKey = "app"
	PoolKey           ContextKey = "pool"
	TxKey             ContextKey = "tx"
	LoggerKey         ContextKey = "logger"
	RequestStart      ContextKey = "requestStart"
	RequestIDKey      ContextKey = "requestID"
	UserKey           ContextKey = "user"
	OrganizationIDKey ContextKey = "organizationID"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())
