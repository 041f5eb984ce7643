package comport

// EventStream is one subscriber's ordered view of a session's hotplug
// events. Events are delivered in the order the session produced them;
// the channel closes when the session is aborted, the subscription fails
// terminally, or this subscriber lagged too far behind.
type EventStream struct {
	s   *session
	sub *subscriber
}

// Events returns the stream's channel. It is closed on completion; use
// Err afterwards to distinguish a clean abort from a failure.
func (st *EventStream) Events() <-chan Event {
	return st.sub.ch
}

// Err reports the stream's terminal state once Events is closed: nil
// after a clean abort, *SubscriptionError when the OS subscription failed
// terminally, or ErrSubscriberLagged when this subscriber's buffer
// overflowed. Streams never stall silently.
func (st *EventStream) Err() error {
	return st.sub.err
}

// AbortHandle terminates a session. It is the sole cancellation
// primitive: aborting completes every subscriber stream of the session
// and releases the underlying OS subscription exactly once.
type AbortHandle struct {
	s *session
}

// Abort tears the session down. Idempotent: the first call releases the
// OS subscription and completes all subscriber streams; subsequent calls
// (from any goroutine, on any handle of the session) are no-ops that
// return once teardown has finished. After Abort returns no new events
// are observable by any subscriber.
func (h *AbortHandle) Abort() {
	h.s.abort()
}
