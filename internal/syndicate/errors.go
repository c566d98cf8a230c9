package syndicate

import (
	"errors"
	"fmt"
	"strings"
)

// CredentialError is returned when a provider is missing required
// credentials or identity fields. It is detected before any network call.
type CredentialError struct {
	Provider string
	Missing  []string
}

func (e CredentialError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Missing, ", "))
}

// ValidationError captures provider-specific validation issues.
type ValidationError struct {
	Provider string
	Reason   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Provider, e.Reason)
}

// AuthError marks a failure caused by an expired or invalid bearer
// credential. It is the only error class eligible for a refresh-and-retry.
type AuthError struct {
	Provider   string
	StatusCode int
	Reason     string
}

func (e AuthError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s authorization failed (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s authorization failed: %s", e.Provider, e.Reason)
}

// ProcessingError is a terminal failure reported by the platform while
// processing uploaded media server-side. It is never retried.
type ProcessingError struct {
	Provider  string
	Container string
	Reason    string
}

func (e ProcessingError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s media processing failed (container %s)", e.Provider, e.Container)
	}
	return fmt.Sprintf("%s media processing failed: %s", e.Provider, e.Reason)
}

// TimeoutError marks a publish job that exhausted its poll attempts
// without the platform reporting a terminal state. Distinct from
// ProcessingError so callers can decide whether retrying makes sense.
type TimeoutError struct {
	Provider  string
	Container string
	Attempts  int
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("%s media processing timed out after %d status checks (container %s)", e.Provider, e.Attempts, e.Container)
}

// IsAuth reports whether err is an authorization failure.
func IsAuth(err error) bool {
	var ae AuthError
	return errors.As(err, &ae)
}

// IsPrecondition reports whether err was detected before any network call.
func IsPrecondition(err error) bool {
	var ce CredentialError
	var ve ValidationError
	return errors.As(err, &ce) || errors.As(err, &ve)
}
