package errx

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}

	return New(err, http.StatusBadGateway, RedisErrorMessage)
}

// WrapStore wraps a store error with the given kind.
func WrapStore(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &AppError{Err: err, Status: http.StatusBadGateway, Message: StoreErrorMessage, Kind: kind}
}

// WrapDelivery wraps an outbound delivery error carrying the provider status.
// 5xx statuses are transient; everything else is terminal.
func WrapDelivery(err error, status int) error {
	if err == nil {
		return nil
	}
	kind := KindValidation
	if status >= 500 && status < 600 {
		kind = KindTransient
	}
	return &AppError{Err: err, Status: status, Message: DeliveryErrorMessage, Kind: kind}
}

// WrapUpstream classifies a network or inference error. Timeouts, connection
// failures and 5xx/429 statuses are transient.
func WrapUpstream(err error, status int) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return err
	}
	if status != 0 {
		return New(err, status, UpstreamErrorMessage)
	}
	if IsNetwork(err) {
		return &AppError{Err: err, Status: http.StatusBadGateway, Message: UpstreamErrorMessage, Kind: KindTransient}
	}
	return &AppError{Err: err, Status: http.StatusInternalServerError, Message: UpstreamErrorMessage, Kind: KindUnexpected}
}

// IsNetwork reports whether err is a timeout or connection-level failure.
func IsNetwork(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
