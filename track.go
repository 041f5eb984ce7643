package comport

import (
	"context"
	"sync"
)

// TrackedPort is a device matched by Track. It is emitted when a Plug
// event carries one of the requested vendor/product id pairs and exposes
// a wait that resolves exactly once, when that port's Unplug event is
// observed on the same session.
type TrackedPort struct {
	// Port is the matched port name, e.g. "COM5"
	Port string
	// Meta is the metadata carried by the matching Plug event
	Meta PortMeta

	done    chan struct{}
	once    sync.Once
	aborted bool
}

func newTrackedPort(port string, meta PortMeta) *TrackedPort {
	return &TrackedPort{Port: port, Meta: meta, done: make(chan struct{})}
}

func (tp *TrackedPort) complete() {
	tp.once.Do(func() { close(tp.done) })
}

func (tp *TrackedPort) cancel() {
	tp.once.Do(func() {
		tp.aborted = true
		close(tp.done)
	})
}

// Done returns a channel that is closed when the port is unplugged or the
// session ends.
func (tp *TrackedPort) Done() <-chan struct{} {
	return tp.done
}

// Unplugged blocks until the port is removed. It returns nil when the
// port's Unplug event was observed, ErrTrackingAborted when the session
// ended first, and the context error when the caller gave up waiting.
func (tp *TrackedPort) Unplugged(ctx context.Context) error {
	select {
	case <-tp.done:
		if tp.aborted {
			return ErrTrackingAborted
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrackStream delivers one TrackedPort per matching device arrival.
type TrackStream struct {
	ch chan *TrackedPort
	es *EventStream
}

// Ports returns the stream's channel. It is closed when the session ends;
// use Err afterwards to distinguish a clean abort from a failure.
func (ts *TrackStream) Ports() <-chan *TrackedPort {
	return ts.ch
}

// Err reports the stream's terminal state once Ports is closed, with the
// same semantics as EventStream.Err.
func (ts *TrackStream) Err() error {
	return ts.es.Err()
}

// Track subscribes to the named session (opening it if needed, exactly
// like Listen) and filters its events down to Plug events whose
// vendor/product id pair appears in ids. Every pending unplugged-wait is
// cancelled if the session ends before the port is removed, so waits
// never hang.
func Track(name string, ids []DeviceID, opts ...SessionOption) (*AbortHandle, *TrackStream, error) {
	handle, es, err := Listen(name, opts...)
	if err != nil {
		return nil, nil, err
	}
	ts := &TrackStream{ch: make(chan *TrackedPort, es.s.cfg.BufferSize), es: es}
	go ts.run(ids)
	return handle, ts, nil
}

func (ts *TrackStream) run(ids []DeviceID) {
	log := ts.es.s.log
	active := make(map[string]*TrackedPort)

	for ev := range ts.es.Events() {
		switch ev.Type {
		case Plug:
			if ev.Meta == nil || !matchesAny(ids, *ev.Meta) {
				log.Debug("ignoring non-matching device", "port", ev.Port)
				continue
			}
			tp := newTrackedPort(ev.Port, *ev.Meta)
			active[ev.Port] = tp
			select {
			case ts.ch <- tp:
			case <-ts.es.s.closed:
				// Consumer stalled and the session ended while we were
				// blocked handing the port over; resolve it as cancelled.
				tp.cancel()
			}
		case Unplug:
			tp, ok := active[ev.Port]
			if !ok {
				continue
			}
			delete(active, ev.Port)
			tp.complete()
			log.Debug("unplugged signal sent", "port", ev.Port)
		}
	}

	// Session ended before these ports were removed; resolve their waits
	// as cancelled rather than leaving them to hang.
	for _, tp := range active {
		tp.cancel()
	}
	close(ts.ch)
}

func matchesAny(ids []DeviceID, meta PortMeta) bool {
	for _, id := range ids {
		if id.Matches(meta) {
			return true
		}
	}
	return false
}
