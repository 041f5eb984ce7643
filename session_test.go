package comport

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSource stands in for the platform notification window in tests.
// Notifications are injected with emit; fail simulates a terminal OS
// failure of the subscription.
type fakeSource struct {
	ch       chan rawNotification
	startErr error
	err      error
	once     sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan rawNotification, 16)}
}

func (f *fakeSource) Start() error                   { return f.startErr }
func (f *fakeSource) Events() <-chan rawNotification { return f.ch }
func (f *fakeSource) Err() error                     { return f.err }

func (f *fakeSource) Close() error {
	f.once.Do(func() { close(f.ch) })
	return nil
}

func (f *fakeSource) emit(action rawAction, port string) {
	f.ch <- rawNotification{action: action, port: port}
}

func (f *fakeSource) fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.ch)
	})
}

// fakeRegistry is a mutable stand-in for the registry enumeration.
type fakeRegistry struct {
	mu    sync.Mutex
	ports map[string]PortMeta
	err   error
}

func newFakeRegistry(ports map[string]PortMeta) *fakeRegistry {
	if ports == nil {
		ports = make(map[string]PortMeta)
	}
	return &fakeRegistry{ports: ports}
}

func (r *fakeRegistry) scan() (map[string]PortMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[string]PortMeta, len(r.ports))
	for k, v := range r.ports {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRegistry) set(ports map[string]PortMeta) {
	r.mu.Lock()
	r.ports = ports
	r.mu.Unlock()
}

func (r *fakeRegistry) attach(port string, meta PortMeta) {
	r.mu.Lock()
	r.ports[port] = meta
	r.mu.Unlock()
}

func (r *fakeRegistry) detach(port string) {
	r.mu.Lock()
	delete(r.ports, port)
	r.mu.Unlock()
}

func recvEvent(t *testing.T, es *EventStream) Event {
	t.Helper()
	select {
	case ev, ok := <-es.Events():
		if !ok {
			t.Fatalf("stream closed, err = %v", es.Err())
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func waitClosed(t *testing.T, es *EventStream) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-es.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestListenInitialScan(t *testing.T) {
	src := newFakeSource()
	reg := newFakeRegistry(map[string]PortMeta{
		"COM7": {VendorID: "0403", ProductID: "6001"},
		"COM3": {VendorID: "2fe3", ProductID: "0100"},
	})

	handle, es, err := Listen(t.Name(), withSource(src), withScanner(reg.scan))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer handle.Abort()

	first := recvEvent(t, es)
	second := recvEvent(t, es)
	if first.Type != Plug || first.Port != "COM3" {
		t.Errorf("first event = %s %s, want Plug COM3", first.Type, first.Port)
	}
	if second.Type != Plug || second.Port != "COM7" {
		t.Errorf("second event = %s %s, want Plug COM7", second.Type, second.Port)
	}
	if first.Meta == nil || first.Meta.VendorID != "2fe3" {
		t.Errorf("initial Plug missing metadata: %+v", first.Meta)
	}
}

func TestListenHotplug(t *testing.T) {
	src := newFakeSource()
	reg := newFakeRegistry(nil)

	handle, es, err := Listen(t.Name(),
		withSource(src), withScanner(reg.scan), WithInitialScan(false))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer handle.Abort()

	reg.attach("COM5", PortMeta{VendorID: "2fe3", ProductID: "0100", SerialNumber: "SER42"})
	src.emit(rawArrival, "COM5")
	ev := recvEvent(t, es)
	if ev.Type != Plug || ev.Port != "COM5" {
		t.Fatalf("event = %s %s, want Plug COM5", ev.Type, ev.Port)
	}
	if ev.Meta == nil || ev.Meta.SerialNumber != "SER42" {
		t.Errorf("Plug metadata = %+v, want resolved serial SER42", ev.Meta)
	}

	// Duplicate arrival and unknown removal are suppressed; the next
	// delivered event is the real removal.
	src.emit(rawArrival, "COM5")
	src.emit(rawRemoval, "COM9")
	reg.detach("COM5")
	src.emit(rawRemoval, "COM5")

	ev = recvEvent(t, es)
	if ev.Type != Unplug || ev.Port != "COM5" || ev.Meta != nil {
		t.Errorf("event = %+v, want bare Unplug COM5", ev)
	}
}

func TestListenFanOut(t *testing.T) {
	src := newFakeSource()
	reg := newFakeRegistry(nil)

	handle, es1, err := Listen(t.Name(),
		withSource(src), withScanner(reg.scan), WithInitialScan(false))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	_, es2, err := Listen(t.Name())
	if err != nil {
		t.Fatalf("second Listen() error = %v", err)
	}
	if es1.s != es2.s {
		t.Fatal("second Listen did not attach to the existing session")
	}

	reg.attach("COM5", PortMeta{VendorID: "2fe3", ProductID: "0100"})
	src.emit(rawArrival, "COM5")
	reg.detach("COM5")
	src.emit(rawRemoval, "COM5")

	for _, es := range []*EventStream{es1, es2} {
		if ev := recvEvent(t, es); ev.Type != Plug || ev.Port != "COM5" {
			t.Errorf("event = %s %s, want Plug COM5", ev.Type, ev.Port)
		}
		if ev := recvEvent(t, es); ev.Type != Unplug || ev.Port != "COM5" {
			t.Errorf("event = %s %s, want Unplug COM5", ev.Type, ev.Port)
		}
	}

	handle.Abort()
	waitClosed(t, es1)
	waitClosed(t, es2)
	if es1.Err() != nil || es2.Err() != nil {
		t.Errorf("stream errors after clean abort = %v, %v, want nil", es1.Err(), es2.Err())
	}
}

func TestSessionIsolation(t *testing.T) {
	srcA, srcB := newFakeSource(), newFakeSource()
	reg := newFakeRegistry(nil)

	handleA, esA, err := Listen(t.Name()+"/a",
		withSource(srcA), withScanner(reg.scan), WithInitialScan(false))
	if err != nil {
		t.Fatalf("Listen(a) error = %v", err)
	}
	handleB, esB, err := Listen(t.Name()+"/b",
		withSource(srcB), withScanner(reg.scan), WithInitialScan(false))
	if err != nil {
		t.Fatalf("Listen(b) error = %v", err)
	}
	defer handleB.Abort()

	handleA.Abort()
	waitClosed(t, esA)

	// Session B is unaffected by A's teardown.
	reg.attach("COM5", PortMeta{VendorID: "2fe3", ProductID: "0100"})
	srcB.emit(rawArrival, "COM5")
	if ev := recvEvent(t, esB); ev.Type != Plug || ev.Port != "COM5" {
		t.Errorf("session b event = %s %s, want Plug COM5", ev.Type, ev.Port)
	}
}

func TestAbortIdempotent(t *testing.T) {
	src := newFakeSource()
	reg := newFakeRegistry(nil)

	handle, es, err := Listen(t.Name(),
		withSource(src), withScanner(reg.scan), WithInitialScan(false))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	handle2, es2, err := Listen(t.Name())
	if err != nil {
		t.Fatalf("second Listen() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		// Concurrent aborts from several goroutines and both handles.
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				handle.Abort()
				handle2.Abort()
			}()
		}
		wg.Wait()
		close(done)
	}()

	waitClosed(t, es)
	waitClosed(t, es2)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Abort did not return")
	}
	if es.Err() != nil {
		t.Errorf("Err() after clean abort = %v, want nil", es.Err())
	}
}

func TestListenAfterAbort(t *testing.T) {
	name := t.Name()
	reg := newFakeRegistry(nil)

	handle, es, err := Listen(name,
		withSource(newFakeSource()), withScanner(reg.scan), WithInitialScan(false))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	handle.Abort()
	waitClosed(t, es)

	// The name is free again; a new session opens.
	src := newFakeSource()
	handle2, es2, err := Listen(name,
		withSource(src), withScanner(reg.scan), WithInitialScan(false))
	if err != nil {
		t.Fatalf("Listen() after abort error = %v", err)
	}
	defer handle2.Abort()

	reg.attach("COM5", PortMeta{VendorID: "2fe3", ProductID: "0100"})
	src.emit(rawArrival, "COM5")
	if ev := recvEvent(t, es2); ev.Port != "COM5" {
		t.Errorf("event port = %s, want COM5", ev.Port)
	}
}

func TestSubscriberLagged(t *testing.T) {
	src := newFakeSource()
	reg := newFakeRegistry(nil)

	handle, es, err := Listen(t.Name(),
		withSource(src), withScanner(reg.scan), WithInitialScan(false), WithBufferSize(1))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer handle.Abort()

	// Two events against a buffer of one, with nobody reading: the first
	// fills the buffer, the second drops the subscriber.
	reg.attach("COM1", PortMeta{VendorID: "2fe3", ProductID: "0100"})
	src.emit(rawArrival, "COM1")
	reg.attach("COM2", PortMeta{VendorID: "2fe3", ProductID: "0100"})
	src.emit(rawArrival, "COM2")

	var received []Event
	deadline := time.After(2 * time.Second)
drain:
	for {
		select {
		case ev, ok := <-es.Events():
			if !ok {
				break drain
			}
			received = append(received, ev)
		case <-deadline:
			t.Fatal("lagged stream never closed")
		}
	}

	if len(received) != 1 || received[0].Port != "COM1" {
		t.Errorf("received %+v, want only the buffered Plug COM1", received)
	}
	if !errors.Is(es.Err(), ErrSubscriberLagged) {
		t.Errorf("Err() = %v, want ErrSubscriberLagged", es.Err())
	}
}

func TestSourceFailure(t *testing.T) {
	src := newFakeSource()
	reg := newFakeRegistry(nil)

	_, es, err := Listen(t.Name(),
		withSource(src), withScanner(reg.scan), WithInitialScan(false))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	cause := errors.New("message loop died")
	src.fail(cause)
	waitClosed(t, es)

	var subErr *SubscriptionError
	if !errors.As(es.Err(), &subErr) {
		t.Fatalf("Err() = %v, want *SubscriptionError", es.Err())
	}
	if !errors.Is(es.Err(), cause) {
		t.Errorf("Err() does not wrap the loop error: %v", es.Err())
	}
}

func TestListenStartFailure(t *testing.T) {
	src := newFakeSource()
	src.startErr = errors.New("window creation failed")

	_, _, err := Listen(t.Name(), withSource(src))
	var subErr *SubscriptionError
	if !errors.As(err, &subErr) {
		t.Fatalf("Listen() error = %v, want *SubscriptionError", err)
	}

	// The failed session must not occupy the name.
	sessions.mu.Lock()
	_, occupied := sessions.m[t.Name()]
	sessions.mu.Unlock()
	if occupied {
		t.Error("failed Listen left a session registered")
	}
}

func TestListenOptionValidation(t *testing.T) {
	tests := []struct {
		name    string
		opt     SessionOption
		wantErr error
	}{
		{"zero buffer", WithBufferSize(0), ErrInvalidBufferSize},
		{"negative buffer", WithBufferSize(-1), ErrInvalidBufferSize},
		{"nil logger", WithLogger(nil), ErrInvalidLogger},
		{"zero attempts", WithResolveRetry(0, time.Millisecond), ErrInvalidRetry},
		{"negative backoff", WithResolveRetry(1, -time.Millisecond), ErrInvalidRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Listen(t.Name(), withSource(newFakeSource()), tt.opt)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Listen() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRescan(t *testing.T) {
	src := newFakeSource()
	reg := newFakeRegistry(map[string]PortMeta{
		"COM3": {VendorID: "2fe3", ProductID: "0100"},
	})

	handle, es, err := Listen(t.Name(), withSource(src), withScanner(reg.scan))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer handle.Abort()

	if ev := recvEvent(t, es); ev.Port != "COM3" {
		t.Fatalf("initial event port = %s, want COM3", ev.Port)
	}

	// COM3 vanished and COM4 appeared without any notification; Rescan
	// delivers the difference as synthetic events, Plugs first.
	reg.set(map[string]PortMeta{
		"COM4": {VendorID: "0403", ProductID: "6001"},
	})
	if err := Rescan(t.Name()); err != nil {
		t.Fatalf("Rescan() error = %v", err)
	}

	if ev := recvEvent(t, es); ev.Type != Plug || ev.Port != "COM4" {
		t.Errorf("event = %s %s, want synthetic Plug COM4", ev.Type, ev.Port)
	}
	if ev := recvEvent(t, es); ev.Type != Unplug || ev.Port != "COM3" {
		t.Errorf("event = %s %s, want synthetic Unplug COM3", ev.Type, ev.Port)
	}
}

func TestRescanFailure(t *testing.T) {
	src := newFakeSource()
	reg := newFakeRegistry(nil)

	handle, _, err := Listen(t.Name(),
		withSource(src), withScanner(reg.scan), WithInitialScan(false))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer handle.Abort()

	reg.err = &DiscoveryError{Op: "scan", Err: errors.New("registry unavailable")}
	var discErr *DiscoveryError
	if err := Rescan(t.Name()); !errors.As(err, &discErr) {
		t.Errorf("Rescan() error = %v, want *DiscoveryError", err)
	}
}

func TestRescanWithoutSession(t *testing.T) {
	if err := Rescan(t.Name()); err != nil {
		t.Errorf("Rescan() without a session = %v, want nil", err)
	}
}
