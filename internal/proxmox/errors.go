package proxmox

import "fmt"

// ConfigurationError reports a missing or invalid credential field.
// It is raised before any network activity.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("proxmox configuration: %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("proxmox configuration: %s is required", e.Field)
}

// AuthenticationError reports a failed ticket exchange. Body carries the raw
// response text for diagnostics.
type AuthenticationError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("proxmox authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("proxmox authentication failed (status %d): %s", e.StatusCode, e.Body)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// CollectionError reports a fatal failure of the node listing
type CollectionError struct {
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *CollectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to get %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to get %s (status %d): %s", e.Path, e.StatusCode, e.Body)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

// statusError is returned by the transports for a non-success API answer
type statusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error on %s (status %d): %s", e.Path, e.StatusCode, e.Body)
}
