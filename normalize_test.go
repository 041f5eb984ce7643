package comport

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticResolver(ports map[string]PortMeta) resolverFunc {
	return func(port string) (PortMeta, error) {
		meta, ok := ports[port]
		if !ok {
			return PortMeta{}, errors.New("not in registry")
		}
		return meta, nil
	}
}

func TestNormalizerSeed(t *testing.T) {
	n := newNormalizer(staticResolver(nil), 1, 0, discardLogger())
	events := n.seed(map[string]PortMeta{
		"COM7": {VendorID: "0403", ProductID: "6001"},
		"COM3": {VendorID: "2fe3", ProductID: "0100"},
	})

	if len(events) != 2 {
		t.Fatalf("seed() produced %d events, want 2", len(events))
	}
	// Deterministic order regardless of map iteration.
	if events[0].Port != "COM3" || events[1].Port != "COM7" {
		t.Errorf("seed() order = %s, %s, want COM3, COM7", events[0].Port, events[1].Port)
	}
	for _, ev := range events {
		if ev.Type != Plug {
			t.Errorf("seed() event for %s type = %s, want Plug", ev.Port, ev.Type)
		}
		if ev.Meta == nil || ev.Meta.Name != ev.Port {
			t.Errorf("seed() event for %s missing named metadata", ev.Port)
		}
	}
}

func TestNormalizerArrivalAndRemoval(t *testing.T) {
	registry := map[string]PortMeta{"COM5": {VendorID: "2fe3", ProductID: "0100"}}
	n := newNormalizer(staticResolver(registry), 1, 0, discardLogger())

	ev, ok := n.normalize(rawNotification{action: rawArrival, port: "COM5"})
	if !ok {
		t.Fatal("arrival for resolvable port was dropped")
	}
	if ev.Type != Plug || ev.Port != "COM5" || ev.Meta == nil || ev.Meta.VendorID != "2fe3" {
		t.Errorf("arrival event = %+v, want Plug COM5 with metadata", ev)
	}

	ev, ok = n.normalize(rawNotification{action: rawRemoval, port: "COM5"})
	if !ok {
		t.Fatal("removal of known port was dropped")
	}
	if ev.Type != Unplug || ev.Port != "COM5" || ev.Meta != nil {
		t.Errorf("removal event = %+v, want bare Unplug COM5", ev)
	}
}

func TestNormalizerDrops(t *testing.T) {
	registry := map[string]PortMeta{"COM5": {VendorID: "2fe3", ProductID: "0100"}}

	tests := []struct {
		name string
		prep []rawNotification // applied first, results discarded
		raw  rawNotification
	}{
		{"empty port name", nil, rawNotification{action: rawArrival, port: ""}},
		{"unknown action", nil, rawNotification{action: 0x8001, port: "COM5"}},
		{
			"duplicate arrival",
			[]rawNotification{{action: rawArrival, port: "COM5"}},
			rawNotification{action: rawArrival, port: "COM5"},
		},
		{"removal of untracked port", nil, rawNotification{action: rawRemoval, port: "COM9"}},
		{"unresolvable metadata", nil, rawNotification{action: rawArrival, port: "COM9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newNormalizer(staticResolver(registry), 1, 0, discardLogger())
			for _, raw := range tt.prep {
				n.normalize(raw)
			}
			if ev, ok := n.normalize(tt.raw); ok {
				t.Errorf("normalize(%+v) = %+v, want drop", tt.raw, ev)
			}
		})
	}
}

func TestNormalizerReplugAfterRemoval(t *testing.T) {
	registry := map[string]PortMeta{"COM5": {VendorID: "2fe3", ProductID: "0100"}}
	n := newNormalizer(staticResolver(registry), 1, 0, discardLogger())

	sequence := []struct {
		raw  rawNotification
		ok   bool
		kind EventType
	}{
		{rawNotification{action: rawArrival, port: "COM5"}, true, Plug},
		{rawNotification{action: rawArrival, port: "COM5"}, false, ""},
		{rawNotification{action: rawRemoval, port: "COM5"}, true, Unplug},
		{rawNotification{action: rawRemoval, port: "COM5"}, false, ""},
		{rawNotification{action: rawArrival, port: "COM5"}, true, Plug},
	}
	for i, step := range sequence {
		ev, ok := n.normalize(step.raw)
		if ok != step.ok {
			t.Fatalf("step %d: normalize(%+v) ok = %v, want %v", i, step.raw, ok, step.ok)
		}
		if ok && ev.Type != step.kind {
			t.Errorf("step %d: event type = %s, want %s", i, ev.Type, step.kind)
		}
	}
}

func TestResolveMetaRetries(t *testing.T) {
	var calls int
	resolve := func(port string) (PortMeta, error) {
		calls++
		if calls < 3 {
			return PortMeta{}, errors.New("registry not updated yet")
		}
		return PortMeta{VendorID: "2fe3", ProductID: "0100"}, nil
	}

	n := newNormalizer(resolve, 3, time.Millisecond, discardLogger())
	ev, ok := n.normalize(rawNotification{action: rawArrival, port: "COM5"})
	if !ok {
		t.Fatal("arrival dropped despite resolution succeeding within the attempt limit")
	}
	if calls != 3 {
		t.Errorf("resolver called %d times, want 3", calls)
	}
	if ev.Meta == nil || ev.Meta.VendorID != "2fe3" {
		t.Errorf("event metadata = %+v, want resolved vendor 2fe3", ev.Meta)
	}
}

func TestResolveMetaGivesUp(t *testing.T) {
	var calls int
	resolve := func(port string) (PortMeta, error) {
		calls++
		return PortMeta{}, errors.New("never resolves")
	}

	n := newNormalizer(resolve, 3, time.Millisecond, discardLogger())
	if _, ok := n.normalize(rawNotification{action: rawArrival, port: "COM5"}); ok {
		t.Fatal("arrival with unresolvable metadata was not dropped")
	}
	if calls != 3 {
		t.Errorf("resolver called %d times, want 3", calls)
	}

	// The failed arrival must not poison the known set.
	registry := map[string]PortMeta{"COM5": {VendorID: "2fe3", ProductID: "0100"}}
	n.resolve = staticResolver(registry)
	if _, ok := n.normalize(rawNotification{action: rawArrival, port: "COM5"}); !ok {
		t.Error("arrival after failed resolution was treated as duplicate")
	}
}

func TestNormalizerReconcile(t *testing.T) {
	n := newNormalizer(staticResolver(nil), 1, 0, discardLogger())
	n.seed(map[string]PortMeta{
		"COM3": {VendorID: "2fe3", ProductID: "0100"},
		"COM5": {VendorID: "2fe3", ProductID: "0100"},
	})

	events := n.reconcile(map[string]PortMeta{
		"COM3": {VendorID: "2fe3", ProductID: "0100"},
		"COM7": {VendorID: "0403", ProductID: "6001"},
		"COM8": {VendorID: "0403", ProductID: "6001"},
	})

	want := []struct {
		kind EventType
		port string
	}{
		{Plug, "COM7"},
		{Plug, "COM8"},
		{Unplug, "COM5"},
	}
	if len(events) != len(want) {
		t.Fatalf("reconcile() produced %d events, want %d", len(events), len(want))
	}
	for i, w := range want {
		if events[i].Type != w.kind || events[i].Port != w.port {
			t.Errorf("events[%d] = %s %s, want %s %s", i, events[i].Type, events[i].Port, w.kind, w.port)
		}
	}

	// Unchanged view produces nothing.
	if events := n.reconcile(map[string]PortMeta{
		"COM3": {VendorID: "2fe3", ProductID: "0100"},
		"COM7": {VendorID: "0403", ProductID: "6001"},
		"COM8": {VendorID: "0403", ProductID: "6001"},
	}); len(events) != 0 {
		t.Errorf("reconcile() of identical view produced %d events, want 0", len(events))
	}
}
