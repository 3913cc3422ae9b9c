// Package httperror classifies in-flight failures into HTTP statuses and
// the standard error envelope.
package httperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
)

// Error codes emitted in the error envelope.
const (
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeGatewayTimeout     = "GATEWAY_TIMEOUT"
	CodeReadTimeout        = "READ_TIMEOUT"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeRouteNotFound      = "ROUTE_NOT_FOUND"
	CodeIPBlacklisted      = "IP_BLACKLISTED"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
)

// StatusError is an error that carries an explicit HTTP status.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// NewStatusError creates a status-carrying error.
func NewStatusError(status int, code, message string) *StatusError {
	return &StatusError{Status: status, Code: code, Message: message}
}

// Classification is the result of mapping a failure to a response.
type Classification struct {
	Status    int
	ErrorCode string
	ErrorType string
	Message   string
}

// Classify maps an in-flight failure to an HTTP status, error code, error
// type, and message.
func Classify(err error) Classification {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return Classification{
			Status:    statusErr.Status,
			ErrorCode: statusErr.Code,
			ErrorType: "StatusError",
			Message:   statusErr.Message,
		}
	}

	if isConnectFailure(err) {
		return Classification{
			Status:    http.StatusServiceUnavailable,
			ErrorCode: CodeServiceUnavailable,
			ErrorType: "ConnectionError",
			Message:   "Service temporarily unavailable",
		}
	}

	if isReadTimeout(err) {
		return Classification{
			Status:    http.StatusGatewayTimeout,
			ErrorCode: CodeReadTimeout,
			ErrorType: "ReadTimeoutError",
			Message:   "Read timeout from downstream service",
		}
	}

	if isTimeout(err) {
		return Classification{
			Status:    http.StatusGatewayTimeout,
			ErrorCode: CodeGatewayTimeout,
			ErrorType: "TimeoutError",
			Message:   "Request timeout",
		}
	}

	return Classification{
		Status:    http.StatusInternalServerError,
		ErrorCode: CodeInternalError,
		ErrorType: fmt.Sprintf("%T", err),
		Message:   "Internal server error",
	}
}

// isConnectFailure reports whether the error is a failure to establish a
// connection to the upstream.
func isConnectFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// isReadTimeout reports whether the error is a timeout while reading from
// an established upstream connection.
func isReadTimeout(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "read" && opErr.Timeout()
}

// isTimeout reports whether the error is any other deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
