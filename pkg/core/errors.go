package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration error. It is returned before any
// network call is attempted.
type ConfigError struct {
	msg string
	err error
}

func (e ConfigError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e ConfigError) Unwrap() error { return e.err }

// ErrInvalidConfig creates a new configuration error
func ErrInvalidConfig(msg string) error {
	return ConfigError{msg: msg}
}

// ErrInvalidConfigf creates a new formatted configuration error
func ErrInvalidConfigf(format string, args ...interface{}) error {
	return ConfigError{msg: fmt.Sprintf(format, args...)}
}

// WrapConfig wraps err as a configuration error
func WrapConfig(err error, msg string) error {
	if err == nil {
		return nil
	}
	return ConfigError{msg: msg, err: err}
}

// NetworkError represents an unreachable endpoint, a timeout or a malformed
// RPC response.
type NetworkError struct {
	Endpoint string
	msg      string
	err      error
}

func (e NetworkError) Error() string {
	s := e.msg
	if e.Endpoint != "" {
		s = fmt.Sprintf("%s (endpoint %s)", s, e.Endpoint)
	}
	if e.err != nil {
		s += ": " + e.err.Error()
	}
	return s
}

func (e NetworkError) Unwrap() error { return e.err }

// ErrNetworkf creates a new formatted network error
func ErrNetworkf(format string, args ...interface{}) error {
	return NetworkError{msg: fmt.Sprintf(format, args...)}
}

// ErrNetworkAt creates a formatted network error attributed to endpoint
func ErrNetworkAt(endpoint, format string, args ...interface{}) error {
	return NetworkError{Endpoint: endpoint, msg: fmt.Sprintf(format, args...)}
}

// WrapNetwork wraps err as a network error against endpoint. Errors that are
// already network errors keep their endpoint.
func WrapNetwork(err error, endpoint, msg string) error {
	if err == nil {
		return nil
	}
	var ne NetworkError
	if errors.As(err, &ne) && ne.Endpoint != "" {
		endpoint = ""
	}
	return NetworkError{Endpoint: endpoint, msg: msg, err: err}
}

// ValidationError represents a result that does not satisfy the caller's
// expectations, such as a non-zero balance or a wrong account count.
type ValidationError struct {
	msg string
}

func (e ValidationError) Error() string {
	return e.msg
}

// ErrValidationf creates a new formatted validation error
func ErrValidationf(format string, args ...interface{}) error {
	return ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsConfig reports whether err is or wraps a ConfigError
func IsConfig(err error) bool {
	var ce ConfigError
	return errors.As(err, &ce)
}

// IsNetwork reports whether err is or wraps a NetworkError
func IsNetwork(err error) bool {
	var ne NetworkError
	return errors.As(err, &ne)
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
