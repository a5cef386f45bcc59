package mcstore

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every *ConfigurationError.
	ErrConfiguration = errors.New("mcstore: invalid configuration")
	// ErrCapabilityUnsupported matches every *CapabilityUnsupportedError.
	ErrCapabilityUnsupported = errors.New("mcstore: capability not supported")
	// ErrNilClient is wrapped when a driver factory returns neither a client nor an error.
	ErrNilClient = errors.New("mcstore: driver returned a nil client")
	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("mcstore: key must not be empty")
)

// ConfigurationError reports a required construction field that is missing.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("mcstore: %s must be provided", e.Field)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// DriverConstructionError wraps the failure returned by a driver factory.
type DriverConstructionError struct {
	Err error
}

func (e *DriverConstructionError) Error() string {
	return "mcstore: construct driver: " + e.Err.Error()
}

func (e *DriverConstructionError) Unwrap() error { return e.Err }

// CapabilityUnsupportedError is returned by operations this store never supports.
// It also matches errors.ErrUnsupported.
type CapabilityUnsupportedError struct {
	Capability string
}

func (e *CapabilityUnsupportedError) Error() string {
	verb := "is"
	if e.Capability == "keys" {
		verb = "are"
	}
	return fmt.Sprintf("mcstore: %s %s not supported on this store", e.Capability, verb)
}

func (e *CapabilityUnsupportedError) Is(target error) bool {
	return target == ErrCapabilityUnsupported || target == errors.ErrUnsupported
}
