package media

import "fmt"

// ErrorKind classifies why a capture request failed. The kind is stable across
// platforms so callers can branch on it without inspecting platform error
// strings.
type ErrorKind string

const (
	// KindPermissionDenied means the user or OS refused device access.
	KindPermissionDenied ErrorKind = "permission-denied"
	// KindDeviceNotFound means no device satisfied the request.
	KindDeviceNotFound ErrorKind = "device-not-found"
	// KindDeviceBusy means the device is held by another consumer.
	KindDeviceBusy ErrorKind = "device-busy"
	// KindConstraints means the constraints cannot be satisfied by any device.
	KindConstraints ErrorKind = "constraints"
	// KindInternal covers platform failures with no more specific mapping.
	KindInternal ErrorKind = "internal"
)

// CaptureError is returned by [CaptureSource.Capture] when acquisition fails.
// It wraps the platform error and tags it with a stable [ErrorKind].
type CaptureError struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("media: capture failed (%s)", e.Kind)
	}
	return fmt.Sprintf("media: capture failed (%s): %v", e.Kind, e.Err)
}

// Unwrap returns the underlying platform error.
func (e *CaptureError) Unwrap() error { return e.Err }

// NewCaptureError wraps err with the given kind.
func NewCaptureError(kind ErrorKind, err error) *CaptureError {
	return &CaptureError{Kind: kind, Err: err}
}
