// Package comport provides hardware serial-port discovery and hotplug
// notification on Windows.
//
// The package answers three questions: which COM ports are attached right
// now, when does a port arrive or go away, and when is a specific device
// (identified by its USB vendor/product id) unplugged.
//
// # Scanning
//
// Scan queries the registry for currently attached ports and their
// metadata:
//
//	ports, err := comport.Scan()
//	for name, meta := range ports {
//	    fmt.Printf("%s: VID=%s PID=%s %s\n", name, meta.VendorID, meta.ProductID, meta.Description)
//	}
//
// # Listening for hotplug events
//
// Listen opens a named session backed by an OS device-change subscription
// running on its own background thread. The returned stream first replays
// Plug events for ports already attached, then delivers live events:
//
//	handle, stream, err := comport.Listen("main")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer handle.Abort()
//
//	for ev := range stream.Events() {
//	    switch ev.Type {
//	    case comport.Plug:
//	        fmt.Printf("plugged: %s (VID=%s)\n", ev.Port, ev.Meta.VendorID)
//	    case comport.Unplug:
//	        fmt.Printf("unplugged: %s\n", ev.Port)
//	    }
//	}
//	if err := stream.Err(); err != nil {
//	    log.Fatal(err) // subscription failed; a clean Abort leaves Err nil
//	}
//
// Multiple Listen calls with the same name share one subscription and fan
// events out to every subscriber. Sessions with different names are fully
// independent.
//
// # Tracking a device
//
// Track filters a session down to devices matching a set of vendor/product
// id pairs and emits a TrackedPort per match. Each tracked port exposes a
// wait that resolves when that port is unplugged:
//
//	ids, _ := comport.ParseIDs([][2]string{{"2FE3", "0100"}})
//	handle, tracked, err := comport.Track("main", ids)
//	...
//	for tp := range tracked.Ports() {
//	    go func() {
//	        if err := tp.Unplugged(ctx); err == nil {
//	            fmt.Printf("%s unplugged\n", tp.Port)
//	        }
//	    }()
//	}
//
// # Aborting
//
// Abort is idempotent and safe to call from any goroutine. After Abort
// returns, the OS subscription is closed and every subscriber stream has
// been completed; no further events are delivered.
//
// # Error Handling
//
// Enumeration failures are reported as *DiscoveryError and are retryable.
// A failed or terminated subscription is reported as *SubscriptionError
// through EventStream.Err after the stream completes. Use errors.Is and
// errors.As for error type checking:
//
//	var derr *comport.DiscoveryError
//	if errors.As(err, &derr) {
//	    // retry later
//	}
//
// # Platform Support
//
// Discovery and hotplug notification rely on the Windows device model
// (registry enumeration plus WM_DEVICECHANGE broadcasts). On other
// platforms Scan and Listen return ErrUnsupportedPlatform.
package comport
