package comport

// rawAction discriminates raw device-change notifications. The values
// mirror the wire codes of the underlying OS broadcast.
type rawAction uint32

const (
	rawArrival rawAction = 0x8000 // DBT_DEVICEARRIVAL
	rawRemoval rawAction = 0x8004 // DBT_DEVICEREMOVECOMPLETE
)

// rawNotification is one OS device-change broadcast reduced to its action
// discriminator and the port name carried by the payload. Sources forward
// only serial-port-class broadcasts; other device classes are filtered
// before they reach the normalizer.
type rawNotification struct {
	action rawAction
	port   string
}

// notificationSource is one OS device-change subscription, running on its
// own background execution context. A session owns exactly one source:
// Start opens the subscription and returns once it is confirmed (or
// failed), Events delivers raw notifications until the source stops, and
// Close releases the subscription. Close is idempotent, safe to call from
// a different goroutine than the one that opened the source, and returns
// once the subscription is released. After the events channel closes, Err
// reports the terminal failure, or nil for a clean shutdown.
type notificationSource interface {
	Start() error
	Events() <-chan rawNotification
	Err() error
	Close() error
}

// scanFunc enumerates currently attached ports.
type scanFunc func() (map[string]PortMeta, error)
