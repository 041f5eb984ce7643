package models

import (
	"context"
	"sync"

	"github.com/allbin/go-comport"
)

// StreamClosedMsg reports that the session's event stream completed.
// Err is nil after a clean abort.
type StreamClosedMsg struct {
	Err error
}

// RescanMsg reports the outcome of an on-demand rescan
type RescanMsg struct {
	Err error
}

type WatchModel struct {
	// Hotplug subscription
	session string
	handle  *comport.AbortHandle
	stream  *comport.EventStream

	// State
	watching bool
	err      error
	ready    bool

	// Cancellation and synchronization
	cancel context.CancelFunc
	ctx    context.Context
	mu     sync.RWMutex
}

func NewWatchModel(session string, handle *comport.AbortHandle, stream *comport.EventStream) *WatchModel {
	ctx, cancel := context.WithCancel(context.Background())

	return &WatchModel{
		session:  session,
		handle:   handle,
		stream:   stream,
		watching: true,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *WatchModel) GetSession() string {
	return m.session
}

func (m *WatchModel) GetStream() *comport.EventStream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stream
}

func (m *WatchModel) IsWatching() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watching
}

func (m *WatchModel) SetStopped(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watching = false
	m.err = err
}

func (m *WatchModel) GetError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

func (m *WatchModel) IsReady() bool {
	return m.ready
}

func (m *WatchModel) SetReady(ready bool) {
	m.ready = ready
}

func (m *WatchModel) GetContext() context.Context {
	return m.ctx
}

func (m *WatchModel) Cancel() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *WatchModel) Cleanup() {
	// Cancel context to stop pending commands
	if m.cancel != nil {
		m.cancel()
	}

	// Abort the session; idempotent, completes every stream
	m.mu.Lock()
	handle := m.handle
	m.handle = nil
	m.mu.Unlock()
	if handle != nil {
		handle.Abort()
	}
}
