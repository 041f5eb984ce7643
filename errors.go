package comport

import (
	"errors"
	"fmt"
)

// Predefined error types for robust error handling
var (
	ErrUnsupportedPlatform = errors.New("device enumeration is only supported on Windows")
	ErrSessionClosed       = errors.New("session is closed")
	ErrSubscriberLagged    = errors.New("subscriber too slow, events dropped")
	ErrTrackingAborted     = errors.New("tracking aborted before the port was unplugged")

	// Identifier parsing errors
	ErrInvalidVendorID  = errors.New("invalid vendor id, expected up to 4 hex digits")
	ErrInvalidProductID = errors.New("invalid product id, expected up to 4 hex digits")

	// Session option errors
	ErrInvalidBufferSize = errors.New("invalid buffer size")
	ErrInvalidLogger     = errors.New("invalid logger")
	ErrInvalidRetry      = errors.New("invalid retry configuration")
)

// DiscoveryError reports a failed enumeration of the OS device tree.
// Enumeration failures are transient; callers should retry.
type DiscoveryError struct {
	Op  string // the registry key or operation that failed
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("device discovery failed (%s): %v", e.Op, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// SubscriptionError reports that an OS device-notification subscription
// failed to open or terminated unexpectedly. It is terminal for the
// session that owned the subscription; other sessions are unaffected.
type SubscriptionError struct {
	Session string
	Err     error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("device notification subscription %q failed: %v", e.Session, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
