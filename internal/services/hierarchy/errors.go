package hierarchy

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBand is returned for a band name outside excellent/good/average/poor
	ErrInvalidBand = errors.New("invalid performance band")
	// ErrInvalidFilter wraps filter validation failures
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrUnsupportedFormat is returned by exports for formats other than json and csv
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// BuildError reports a malformed row from the gateway. No tree is produced when it occurs.
type BuildError struct {
	Role   Role
	Path   string // position in the input, e.g. "leaders[0].brigadistas[2]"
	Field  string
	Reason string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("malformed %s row at %s: %s %s", e.Role, e.Path, e.Field, e.Reason)
}

// GatewayError wraps an opaque failure from the raw data gateway
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway fetch failed: %v", e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ServiceError is the only error type returned by Service operations
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidFilter
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &ServiceError{Op: op, Err: err}
}
