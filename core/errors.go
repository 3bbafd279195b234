package core

import (
	"errors"
	"fmt"
)

// ErrEmptyMessage is returned when a chat message is empty or whitespace only.
var ErrEmptyMessage = errors.New("message is empty")

// ConfigurationError signals an unusable configuration. It is fatal at startup.
type ConfigurationError struct {
	Reason string
	Err    error
}

// NewConfigurationError creates a ConfigurationError with a formatted reason.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown agent or tool requested by a caller.
type NotFoundError struct {
	Kind string // "agent", "tool", ...
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// Capability names used in CapabilityError.
const (
	CapabilityModel     = "model"
	CapabilityRetrieval = "retrieval"
)

// CapabilityError wraps a failure of an external capability (language model,
// retrieval) raised during a chat turn.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s capability: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
