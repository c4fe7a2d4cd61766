// Package push delivers notification payloads to device endpoints through an
// external gateway and classifies delivery failures into a closed code set so
// callers never branch on error strings.
package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/nearlist/nearlist/internal/models"
)

// Code classifies a delivery failure.
type Code int

const (
	// CodeUnknown covers failures that fit no other class.
	CodeUnknown Code = iota
	// CodeEndpointInvalid means the endpoint token is permanently dead and
	// its registration should be pruned.
	CodeEndpointInvalid
	// CodeTransient covers temporary gateway or network failures.
	CodeTransient
	// CodeTimeout means the delivery attempt exceeded its deadline.
	CodeTimeout
	// CodePermissionDenied means the gateway rejected our credentials.
	CodePermissionDenied
)

func (c Code) String() string {
	switch c {
	case CodeEndpointInvalid:
		return "endpoint_invalid"
	case CodeTransient:
		return "transient"
	case CodeTimeout:
		return "timeout"
	case CodePermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Error is a classified delivery failure.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("push delivery failed (%s): %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the delivery code from an error, or CodeUnknown if the
// chain holds no classified delivery failure.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// Sender delivers a single notification payload to its target endpoint.
type Sender interface {
	Send(ctx context.Context, payload models.NotificationPayload) error
}
