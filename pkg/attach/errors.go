package attach

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSource means the addressed payload does not exist.
	ErrMissingSource = errors.New("attach: missing source")
	// ErrInvalidSource means a URI or raw input could not be interpreted.
	ErrInvalidSource = errors.New("attach: invalid source")
	// ErrUnsupportedScheme means no backend handles the URI scheme for the operation.
	ErrUnsupportedScheme = errors.New("attach: unsupported scheme")
	// ErrStorageConflict means Store targeted a location that already holds data.
	ErrStorageConflict = errors.New("attach: storage conflict")
	// ErrTransformUnsupported means the transform is unknown or cannot handle the payload.
	ErrTransformUnsupported = errors.New("attach: transform unsupported")
	// ErrDestroyed is returned by a Source after Destroy.
	ErrDestroyed = errors.New("attach: source destroyed")
	// ErrBackendNotConfigured means the scheme is known but its collaborator was not supplied.
	ErrBackendNotConfigured = errors.New("attach: backend not configured")
)

// UnsupportedTransformError reports a transform that could not be applied.
type UnsupportedTransformError struct {
	Name     string
	MimeType string
}

func (e *UnsupportedTransformError) Error() string {
	if e.MimeType == "" {
		return fmt.Sprintf("attach: unsupported transform %q", e.Name)
	}
	return fmt.Sprintf("attach: transform %q unsupported for %s", e.Name, e.MimeType)
}

func (e *UnsupportedTransformError) Unwrap() error { return ErrTransformUnsupported }

// missing wraps ErrMissingSource with a reason and an optional cause.
func missing(reason string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrMissingSource, reason)
	}
	return fmt.Errorf("%w: %s: %w", ErrMissingSource, reason, cause)
}
