// Package apperror defines the error taxonomy shared by services and the HTTP
// boundary. Services wrap one of the sentinel kinds; the Fiber error handler
// maps the kind to a status code and error code.
package apperror

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrUnauthorized         = errors.New("authentication required")
	ErrForbidden            = errors.New("access denied")
	ErrLimitReached         = errors.New("wallet limit reached")
	ErrTrialExpired         = errors.New("pro trial has ended")
	ErrGateway              = errors.New("payment gateway error")
	ErrConfiguration        = errors.New("configuration error")
	ErrSignatureInvalid     = errors.New("webhook signature invalid")
	ErrTokenInvalid         = errors.New("webhook callback token invalid")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// Error pairs a taxonomy kind with a caller-facing message and an optional cause.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func New(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind error, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(reason string) error { return New(ErrValidation, reason) }

func NotFound(resource string) error { return New(ErrNotFound, resource+" not found") }

func Gateway(message string, cause error) error { return Wrap(ErrGateway, message, cause) }

func Configuration(message string) error { return New(ErrConfiguration, message) }

// Message returns the caller-facing message of err. Unclassified errors are
// reported generically so internals do not leak.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Message
	}
	return "An unexpected error occurred"
}

type classification struct {
	kind   error
	status int
	code   string
}

var classifications = []classification{
	{ErrValidation, fiber.StatusBadRequest, "VALIDATION_ERROR"},
	{ErrUnsupportedOperation, fiber.StatusBadRequest, "UNSUPPORTED_OPERATION"},
	{ErrSignatureInvalid, fiber.StatusBadRequest, "SIGNATURE_INVALID"},
	{ErrTokenInvalid, fiber.StatusBadRequest, "TOKEN_INVALID"},
	{ErrUnauthorized, fiber.StatusUnauthorized, "AUTHENTICATION_ERROR"},
	{ErrTrialExpired, fiber.StatusForbidden, "PRO_TRIAL_EXPIRED"},
	{ErrLimitReached, fiber.StatusForbidden, "WALLET_LIMIT_REACHED"},
	{ErrForbidden, fiber.StatusForbidden, "AUTHORIZATION_ERROR"},
	{ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{ErrConflict, fiber.StatusConflict, "CONFLICT"},
	{ErrGateway, fiber.StatusBadGateway, "GATEWAY_ERROR"},
	{ErrConfiguration, fiber.StatusInternalServerError, "CONFIGURATION_ERROR"},
}

// Classify returns the HTTP status and error code for err.
func Classify(err error) (int, string) {
	for _, c := range classifications {
		if errors.Is(err, c.kind) {
			return c.status, c.code
		}
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, "HTTP_ERROR"
	}
	return fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
}

// Handler is the Fiber ErrorHandler rendering every failure in one envelope.
func Handler(c *fiber.Ctx, err error) error {
	status, code := Classify(err)
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error": fiber.Map{
			"code":    code,
			"message": Message(err),
		},
	})
}
