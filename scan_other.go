//go:build !windows

package comport

import "log/slog"

// The engine targets the Windows device model. Other platforms compile
// (so bindings and tests can be developed anywhere) but report
// ErrUnsupportedPlatform for every OS-facing operation.

func scanPorts() (map[string]PortMeta, error) {
	return nil, &DiscoveryError{Op: "scan", Err: ErrUnsupportedPlatform}
}

func newPlatformSource(name string, log *slog.Logger) (notificationSource, error) {
	return nil, ErrUnsupportedPlatform
}
