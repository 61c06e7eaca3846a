package connectivity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMonitorStartsOffline(t *testing.T) {
	m := NewMonitor(nil, time.Second)
	if m.Online() {
		t.Fatal("monitor must start offline")
	}
}

func TestCallbacksFireOnlyOnTransitions(t *testing.T) {
	m := NewMonitor(nil, time.Second)

	var onlineFired, offlineFired int
	m.OnOnline(func() { onlineFired++ })
	m.OnOffline(func() { offlineFired++ })

	m.SetOnline(true)
	m.SetOnline(true)
	if onlineFired != 1 {
		t.Fatalf("expected 1 online callback, got %d", onlineFired)
	}

	m.SetOnline(false)
	m.SetOnline(false)
	if offlineFired != 1 {
		t.Fatalf("expected 1 offline callback, got %d", offlineFired)
	}

	m.SetOnline(true)
	if onlineFired != 2 {
		t.Fatalf("expected a second online callback, got %d", onlineFired)
	}
}

func TestProbeDrivesState(t *testing.T) {
	var failing bool
	m := NewMonitor(func(context.Context) error {
		if failing {
			return errors.New("unreachable")
		}
		return nil
	}, time.Second)

	m.probeOnce(context.Background())
	if !m.Online() {
		t.Fatal("successful probe must bring the monitor online")
	}

	failing = true
	m.probeOnce(context.Background())
	if m.Online() {
		t.Fatal("failed probe must take the monitor offline")
	}
}
