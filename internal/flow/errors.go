// Package flow provides the building blocks shared by both power-cycle
// workflows: the typed error taxonomy and the bounded wait/retry primitive.
package flow

import (
	"errors"
	"fmt"
)

// Kind classifies a workflow failure for notification and exit reporting
type Kind string

const (
	KindNetworkUnreachable  Kind = "network_unreachable"
	KindGatewayUnavailable  Kind = "gateway_unavailable"
	KindGuestDrainTimeout   Kind = "guest_drain_timeout"
	KindNodeOfflineTimeout  Kind = "node_offline_timeout"
	KindPowerReserveUnknown Kind = "power_reserve_unknown"
	KindHealingFlagFailure  Kind = "healing_flag_failure"
	KindWaitTimeout         Kind = "wait_timeout"
)

// FlowError represents a classified workflow error
type FlowError struct {
	Kind    Kind                   `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

func (e *FlowError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *FlowError) Unwrap() error {
	return e.cause
}

// NewError creates a new FlowError
func NewError(kind Kind, message string) *FlowError {
	return &FlowError{
		Kind:    kind,
		Message: message,
	}
}

// NewErrorWithDetails creates a new FlowError with details
func NewErrorWithDetails(kind Kind, message string, details map[string]interface{}) *FlowError {
	return &FlowError{
		Kind:    kind,
		Message: message,
		Details: details,
	}
}

// WrapError creates a FlowError wrapping an underlying cause
func WrapError(kind Kind, message string, cause error) *FlowError {
	return &FlowError{
		Kind:    kind,
		Message: message,
		cause:   cause,
	}
}

// KindOf extracts the Kind from an error chain, or "" if none
func KindOf(err error) Kind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether the error chain carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
