package connectivity

import (
	"testing"
	"time"
)

func waitTransition(t *testing.T, ch <-chan Transition, timeout time.Duration) (Transition, bool) {
	t.Helper()
	select {
	case tr := <-ch:
		return tr, true
	case <-time.After(timeout):
		return Transition{}, false
	}
}

func TestSettledTransitionDeliveredOnce(t *testing.T) {
	m := NewMonitor(Config{Debounce: 20 * time.Millisecond, InitialOnline: false})
	ch := m.Subscribe()

	m.SetOnline(true)

	tr, ok := waitTransition(t, ch, time.Second)
	if !ok {
		t.Fatal("expected a settled transition")
	}
	if !tr.Online {
		t.Error("transition should report online")
	}
	if !m.IsOnline() {
		t.Error("settled state should be online")
	}

	if _, ok := waitTransition(t, ch, 100*time.Millisecond); ok {
		t.Error("a single observation must settle exactly once")
	}
}

func TestFlapInsideDebounceWindowIsSuppressed(t *testing.T) {
	m := NewMonitor(Config{Debounce: 50 * time.Millisecond, InitialOnline: true})
	ch := m.Subscribe()

	// Blips offline and recovers before the window elapses
	m.SetOnline(false)
	time.Sleep(10 * time.Millisecond)
	m.SetOnline(true)

	if _, ok := waitTransition(t, ch, 150*time.Millisecond); ok {
		t.Error("a flap shorter than the debounce must not publish")
	}
	if !m.IsOnline() {
		t.Error("settled state must be unchanged")
	}
}

func TestRepeatedObservationsSettleOnce(t *testing.T) {
	m := NewMonitor(Config{Debounce: 20 * time.Millisecond, InitialOnline: false})
	ch := m.Subscribe()

	// A burst of identical observations, as a recovering link produces
	for i := 0; i < 5; i++ {
		m.SetOnline(true)
		time.Sleep(2 * time.Millisecond)
	}

	if _, ok := waitTransition(t, ch, time.Second); !ok {
		t.Fatal("expected one settled transition")
	}
	if _, ok := waitTransition(t, ch, 100*time.Millisecond); ok {
		t.Error("the burst must collapse into a single transition")
	}
}

func TestOfflineTransitionSettles(t *testing.T) {
	m := NewMonitor(Config{Debounce: 20 * time.Millisecond, InitialOnline: true})
	ch := m.Subscribe()

	m.SetOnline(false)

	tr, ok := waitTransition(t, ch, time.Second)
	if !ok {
		t.Fatal("expected a settled transition")
	}
	if tr.Online {
		t.Error("transition should report offline")
	}
	if m.IsOnline() {
		t.Error("settled state should be offline")
	}
}

func TestMultipleSubscribersAllNotified(t *testing.T) {
	m := NewMonitor(Config{Debounce: 20 * time.Millisecond, InitialOnline: false})
	a := m.Subscribe()
	b := m.Subscribe()

	m.SetOnline(true)

	if _, ok := waitTransition(t, a, time.Second); !ok {
		t.Error("first subscriber missed the transition")
	}
	if _, ok := waitTransition(t, b, time.Second); !ok {
		t.Error("second subscriber missed the transition")
	}
}
