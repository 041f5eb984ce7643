package comport

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Session lifecycle. A session is Created on the first Listen/Track call
// for its name, Active once the OS subscription is confirmed open,
// Aborting after the first Abort or a terminal subscription error, and
// Closed once the subscription is released and every subscriber stream
// has completed. There are no transitions out of Closed.
const (
	stateCreated int32 = iota
	stateActive
	stateAborting
	stateClosed
)

// sessions is the registry of live sessions by name. Listen calls with
// the same name share the session; sessions with different names are
// fully independent.
var sessions = struct {
	mu sync.Mutex
	m  map[string]*session
}{m: make(map[string]*session)}

// session owns one notification source and fans its events out to the
// session's subscribers. All notification work happens on the pump
// goroutine; the subscriber set is the only state touched from caller
// goroutines, guarded by mu with short critical sections.
type session struct {
	name string
	cfg  sessionConfig
	src  notificationSource
	scan scanFunc
	norm *normalizer
	log  *slog.Logger

	state    atomic.Int32
	stop     chan struct{} // closed on abort
	stopOnce sync.Once
	closed   chan struct{} // closed by the pump on exit
	rescanCh chan map[string]PortMeta

	mu       sync.Mutex
	subs     []*subscriber
	finished bool  // no further subscribers may attach
	err      error // terminal error, set before closed is closed
}

// subscriber is one EventStream's buffered view of a session. finish
// records the stream's terminal state and closes the channel exactly
// once.
type subscriber struct {
	ch   chan Event
	err  error
	once sync.Once
}

func (sub *subscriber) finish(err error) {
	sub.once.Do(func() {
		sub.err = err
		close(sub.ch)
	})
}

// Listen subscribes to hotplug events under the given session name. The
// first call for a name opens the OS device-change subscription on a
// dedicated background thread; subsequent calls attach to the running
// session and share it. The returned stream completes after Abort (clean)
// or a terminal subscription failure (EventStream.Err non-nil).
func Listen(name string, opts ...SessionOption) (*AbortHandle, *EventStream, error) {
	s, sub, err := subscribe(name, opts)
	if err != nil {
		return nil, nil, err
	}
	return &AbortHandle{s: s}, &EventStream{s: s, sub: sub}, nil
}

func subscribe(name string, opts []SessionOption) (*session, *subscriber, error) {
	sessions.mu.Lock()
	defer sessions.mu.Unlock()

	if s, ok := sessions.m[name]; ok {
		if sub, ok := s.addSubscriber(); ok {
			return s, sub, nil
		}
		// The named session is tearing down; replace it.
		delete(sessions.m, name)
	}

	s, err := newSession(name, opts)
	if err != nil {
		return nil, nil, err
	}
	sub, _ := s.addSubscriber()
	sessions.m[name] = s
	go s.pump()
	return s, sub, nil
}

func newSession(name string, opts []SessionOption) (*session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	s := &session{
		name:     name,
		cfg:      cfg,
		log:      cfg.Logger.With("session", name),
		stop:     make(chan struct{}),
		closed:   make(chan struct{}),
		rescanCh: make(chan map[string]PortMeta),
	}

	s.scan = cfg.scanner
	if s.scan == nil {
		s.scan = scanPorts
	}
	s.norm = newNormalizer(s.resolvePort, cfg.ResolveAttempts, cfg.ResolveBackoff, s.log)

	s.src = cfg.source
	if s.src == nil {
		src, err := newPlatformSource(name, s.log)
		if err != nil {
			return nil, &SubscriptionError{Session: name, Err: err}
		}
		s.src = src
	}
	if err := s.src.Start(); err != nil {
		return nil, &SubscriptionError{Session: name, Err: err}
	}
	s.state.Store(stateActive)
	return s, nil
}

// resolvePort is the default arrival resolver: re-enumerate and look the
// port up, the registry being authoritative for its metadata.
func (s *session) resolvePort(port string) (PortMeta, error) {
	ports, err := s.scan()
	if err != nil {
		return PortMeta{}, err
	}
	meta, ok := ports[port]
	if !ok {
		return PortMeta{}, fmt.Errorf("port %s missing from device registry", port)
	}
	return meta, nil
}

// addSubscriber attaches a new buffered subscriber. Reports false when
// the session is already tearing down.
func (s *session) addSubscriber() (*subscriber, bool) {
	sub := &subscriber{ch: make(chan Event, s.cfg.BufferSize)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.state.Load() >= stateAborting {
		return nil, false
	}
	s.subs = append(s.subs, sub)
	return sub, true
}

// pump is the session's dispatch loop. It runs on its own goroutine,
// seeds the stream from the initial scan, then translates raw
// notifications into events until the source stops or the session is
// aborted.
func (s *session) pump() {
	defer s.finish()

	if s.cfg.InitialScan {
		if ports, err := s.scan(); err != nil {
			s.log.Warn("initial scan failed", "error", err)
		} else {
			for _, ev := range s.norm.seed(ports) {
				s.deliver(ev)
			}
		}
	}

	events := s.src.Events()
	for {
		select {
		case <-s.stop:
			return
		case fresh := <-s.rescanCh:
			for _, ev := range s.norm.reconcile(fresh) {
				s.deliver(ev)
			}
		case raw, ok := <-events:
			if !ok {
				if err := s.src.Err(); err != nil {
					s.setErr(&SubscriptionError{Session: s.name, Err: err})
				}
				return
			}
			if ev, ok := s.norm.normalize(raw); ok {
				s.deliver(ev)
			}
		}
	}
}

// deliver fans one event out to all current subscribers in order. A
// subscriber whose buffer is full is dropped with ErrSubscriberLagged so
// that a slow consumer never blocks the source thread or its peers.
func (s *session) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.subs[:0]
	for _, sub := range s.subs {
		select {
		case sub.ch <- ev:
			kept = append(kept, sub)
		default:
			s.log.Warn("dropping lagged subscriber", "buffer", s.cfg.BufferSize)
			sub.finish(ErrSubscriberLagged)
		}
	}
	s.subs = kept
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.log.Error("subscription terminated", "error", err)
}

// finish releases the OS subscription, completes every subscriber stream
// with the session's terminal state, and unregisters the session.
func (s *session) finish() {
	s.state.Store(stateAborting)
	_ = s.src.Close()

	s.mu.Lock()
	err := s.err
	subs := s.subs
	s.subs = nil
	s.finished = true
	s.mu.Unlock()
	for _, sub := range subs {
		sub.finish(err)
	}

	sessions.mu.Lock()
	if sessions.m[s.name] == s {
		delete(sessions.m, s.name)
	}
	sessions.mu.Unlock()

	s.state.Store(stateClosed)
	close(s.closed)
}

// abort tears the session down. Idempotent and safe to call concurrently
// with event delivery; returns once the pump has completed all subscriber
// streams, after which no new events are observable.
func (s *session) abort() {
	if s.state.CompareAndSwap(stateActive, stateAborting) ||
		s.state.CompareAndSwap(stateCreated, stateAborting) {
		s.stopOnce.Do(func() { close(s.stop) })
		// Unblocks a pump waiting on the source.
		_ = s.src.Close()
	}
	<-s.closed
}

// Scan queries the OS device tree for currently attached serial ports,
// keyed by port name. It never mutates session state and may be called
// at any time. Failures are *DiscoveryError and retryable.
func Scan() (map[string]PortMeta, error) {
	return scanPorts()
}

// Rescan re-enumerates attached ports and re-synchronizes the named
// session's view: ports unknown to the session are delivered as synthetic
// Plug events, and ports the session knows that are no longer attached
// are delivered as synthetic Unplug events, ordered after everything the
// session has already delivered. A no-op when no such session exists.
// The enumeration itself runs on the caller's goroutine and its failure
// is returned as *DiscoveryError.
func Rescan(name string) error {
	sessions.mu.Lock()
	s, ok := sessions.m[name]
	sessions.mu.Unlock()
	if !ok {
		return nil
	}

	fresh, err := s.scan()
	if err != nil {
		return err
	}
	select {
	case s.rescanCh <- fresh:
	case <-s.closed:
	}
	return nil
}
