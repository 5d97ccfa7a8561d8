package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// StoreErrorMessage describes reading store failures.
	StoreErrorMessage = "store operation failed"
	// DeliveryErrorMessage describes outbound message failures.
	DeliveryErrorMessage = "message delivery failed"
	// UpstreamErrorMessage describes inference or fetch failures.
	UpstreamErrorMessage = "upstream call failed"
)

// Kind classifies an error for retry and logging decisions.
type Kind int

const (
	KindUnexpected Kind = iota
	KindTransient
	KindValidation
	KindPermission
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	default:
		return "unexpected"
	}
}

var (
	// ErrNoAsset is returned when a step needs a downloaded asset that is absent.
	ErrNoAsset = errors.New("no asset available")
	// ErrInvalidMeasurement marks a reading that is missing, negative or not finite.
	ErrInvalidMeasurement = errors.New("invalid measurement")
	// ErrInsufficientData marks a query that returned too few rows to chart.
	ErrInsufficientData = errors.New("insufficient data")
)

// AppError wraps an underlying error with an HTTP status, safe message and kind.
type AppError struct {
	Err     error
	Status  int
	Message string
	Kind    Kind
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information. The kind is
// derived from the status code.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
		Kind:    kindForStatus(status),
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// Validation wraps err as a non-retryable validation failure.
func Validation(err error, message string) *AppError {
	return &AppError{Err: err, Status: http.StatusUnprocessableEntity, Message: message, Kind: KindValidation}
}

// KindOf returns the kind of the first AppError in err's chain, or
// KindUnexpected when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnexpected
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnexpected
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// IsPermission reports whether err is an authorization failure.
func IsPermission(err error) bool {
	return KindOf(err) == KindPermission
}

// IsNotFound reports whether err refers to a missing resource.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		return KindTransient
	case status >= 500:
		return KindTransient
	case status >= 400:
		return KindValidation
	default:
		return KindUnexpected
	}
}
