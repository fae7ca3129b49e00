package core

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for errors.Is checks across packages.
var (
	ErrCargoNotFound   = errors.New("cargo not found")
	ErrManifestInvalid = errors.New("invalid manifest")
)

// ConfigurationError reports invalid host configuration or a reference
// to a warehouse that was never configured. Never retried.
type ConfigurationError struct {
	Field  string
	Detail string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration: %s: %s", e.Field, e.Detail)
	}
	return fmt.Sprintf("configuration: %s", e.Detail)
}

// ValidationError reports a structurally invalid manifest or an executed
// module missing its declared exports. Never retried.
type ValidationError struct {
	Subject string
	Detail  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Subject, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return ErrManifestInvalid
}

// CargoNotFoundError reports a cargo name absent from a warehouse inventory.
type CargoNotFoundError struct {
	Warehouse string
	Cargo     string
}

func (e *CargoNotFoundError) Error() string {
	return fmt.Sprintf("%s: cargo %s not found in inventory", e.Warehouse, e.Cargo)
}

func (e *CargoNotFoundError) Unwrap() error {
	return ErrCargoNotFound
}

// NetworkError wraps a transport-layer failure. Retried up to the
// configured attempt count.
type NetworkError struct {
	URL   string
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.URL, e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// LoadTimeoutError reports an attempt that exceeded its deadline.
// Counted as a failed attempt and retried like a NetworkError.
type LoadTimeoutError struct {
	URL      string
	Duration time.Duration
}

func (e *LoadTimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s after %s", e.URL, e.Duration)
}

// CacheError reports a cache backend failure. Never fatal to a load:
// callers degrade to a miss on read and a no-op on write.
type CacheError struct {
	Op     string
	Detail string
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %s", e.Op, e.Detail)
}

// Retryable reports whether an error is a transport-layer failure that the
// retry controller may run again. Configuration, validation and not-found
// failures propagate on first occurrence.
func Retryable(err error) bool {
	var ne *NetworkError
	var te *LoadTimeoutError
	return errors.As(err, &ne) || errors.As(err, &te)
}
