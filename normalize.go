package comport

import (
	"log/slog"
	"sort"
	"time"
)

// resolverFunc resolves full port metadata for a newly arrived port.
type resolverFunc func(port string) (PortMeta, error)

// normalizer converts raw device-change notifications into typed events.
// It keeps the session's set of known ports so that duplicate arrivals
// are suppressed and removals are only emitted for ports previously
// observed, preserving the guarantee that every Unplug on a session was
// preceded by a Plug for the same port. A normalizer is owned by a single
// session pump and is not safe for concurrent use.
type normalizer struct {
	resolve  resolverFunc
	known    map[string]PortMeta
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

func newNormalizer(resolve resolverFunc, attempts int, backoff time.Duration, log *slog.Logger) *normalizer {
	return &normalizer{
		resolve:  resolve,
		known:    make(map[string]PortMeta),
		attempts: attempts,
		backoff:  backoff,
		log:      log,
	}
}

// seed records ports discovered by the initial scan as known and returns
// their Plug events in deterministic (sorted) order.
func (n *normalizer) seed(ports map[string]PortMeta) []Event {
	names := make([]string, 0, len(ports))
	for name := range ports {
		names = append(names, name)
	}
	sort.Strings(names)

	events := make([]Event, 0, len(names))
	for _, name := range names {
		n.known[name] = ports[name]
		events = append(events, PlugEvent(name, ports[name]))
	}
	return events
}

// normalize returns the typed event for a raw notification, or ok=false
// when the notification must be dropped (wrong action, malformed payload,
// duplicate arrival, removal of an unknown port, or unresolvable
// metadata).
func (n *normalizer) normalize(raw rawNotification) (Event, bool) {
	if raw.port == "" {
		n.log.Debug("dropping malformed notification, empty port name")
		return Event{}, false
	}

	switch raw.action {
	case rawArrival:
		if _, dup := n.known[raw.port]; dup {
			// The OS delivers duplicate arrivals for multi-interface
			// devices; the first one wins.
			n.log.Debug("dropping duplicate arrival", "port", raw.port)
			return Event{}, false
		}
		meta, err := n.resolveMeta(raw.port)
		if err != nil {
			n.log.Warn("dropping arrival, metadata unresolved", "port", raw.port, "error", err)
			return Event{}, false
		}
		n.known[raw.port] = meta
		return PlugEvent(raw.port, meta), true

	case rawRemoval:
		if _, ok := n.known[raw.port]; !ok {
			n.log.Debug("dropping removal for untracked port", "port", raw.port)
			return Event{}, false
		}
		delete(n.known, raw.port)
		return UnplugEvent(raw.port), true
	}

	n.log.Debug("dropping notification with unknown action", "action", uint32(raw.action))
	return Event{}, false
}

// resolveMeta retries resolution a configured number of times before
// giving up. Registry updates can lag the arrival broadcast, so the first
// lookup for a genuinely present device may transiently fail. Partial
// metadata is never fabricated.
func (n *normalizer) resolveMeta(port string) (PortMeta, error) {
	var err error
	for attempt := 0; attempt < n.attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(n.backoff)
		}
		var meta PortMeta
		if meta, err = n.resolve(port); err == nil {
			return meta, nil
		}
	}
	return PortMeta{}, err
}

// reconcile compares a fresh scan against the known set: synthetic Plug
// events for newly present ports, then synthetic Unplug events for known
// ports that vanished without a removal notification ever arriving.
func (n *normalizer) reconcile(fresh map[string]PortMeta) []Event {
	var added, removed []string
	for name := range fresh {
		if _, ok := n.known[name]; !ok {
			added = append(added, name)
		}
	}
	for name := range n.known {
		if _, ok := fresh[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	events := make([]Event, 0, len(added)+len(removed))
	for _, name := range added {
		n.known[name] = fresh[name]
		events = append(events, PlugEvent(name, fresh[name]))
	}
	for _, name := range removed {
		delete(n.known, name)
		events = append(events, UnplugEvent(name))
	}
	return events
}
