package scheduler

import (
	"runtime"
	"testing"
	"time"
)

func waitFire(t *testing.T, s *Scheduler, want string) {
	t.Helper()
	select {
	case got := <-s.Fires():
		if got != want {
			t.Fatalf("fired %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestScheduler_ScheduleFiresOnce(t *testing.T) {
	s := New(4, nil)
	defer s.Shutdown()

	if !s.Schedule("ping", 5*time.Millisecond) {
		t.Fatal("Schedule returned false")
	}
	waitFire(t, s, "ping")

	select {
	case got := <-s.Fires():
		t.Fatalf("unexpected second firing %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduler_NeverDoubleSchedules(t *testing.T) {
	s := New(4, nil)
	defer s.Shutdown()

	if !s.Schedule("reconnect", 5*time.Millisecond) {
		t.Fatal("first Schedule returned false")
	}
	if s.Schedule("reconnect", 5*time.Millisecond) {
		t.Error("second Schedule returned true, want no-op")
	}

	waitFire(t, s, "reconnect")

	select {
	case got := <-s.Fires():
		t.Fatalf("double-scheduled action fired twice: %q", got)
	case <-time.After(50 * time.Millisecond):
	}

	// After the firing, the name is free again.
	if !s.Schedule("reconnect", time.Millisecond) {
		t.Error("Schedule after firing returned false")
	}
	waitFire(t, s, "reconnect")
}

func TestScheduler_Cancel(t *testing.T) {
	s := New(4, nil)
	defer s.Shutdown()

	s.Schedule("waitForPong", 20*time.Millisecond)
	s.Cancel("waitForPong")

	select {
	case got := <-s.Fires():
		t.Fatalf("cancelled action fired: %q", got)
	case <-time.After(60 * time.Millisecond):
	}

	if !s.Schedule("waitForPong", time.Millisecond) {
		t.Error("Schedule after Cancel returned false")
	}
}

func TestScheduler_IntervalRepeats(t *testing.T) {
	s := New(8, nil)
	defer s.Shutdown()

	if !s.StartInterval("staleSweep", 10*time.Millisecond) {
		t.Fatal("StartInterval returned false")
	}
	if s.StartInterval("staleSweep", 10*time.Millisecond) {
		t.Error("second StartInterval returned true, want no-op")
	}

	waitFire(t, s, "staleSweep")
	waitFire(t, s, "staleSweep")

	s.StopInterval("staleSweep")

	// Drain anything queued before the stop, then expect silence.
	deadline := time.After(80 * time.Millisecond)
	for {
		select {
		case <-s.Fires():
		case <-deadline:
			return
		}
	}
}

func TestScheduler_ShutdownReleasesUndeliveredFiring(t *testing.T) {
	// An unbuffered fires channel with no reader leaves the timer goroutine
	// blocked on the send; Shutdown must release it.
	before := runtime.NumGoroutine()

	s := New(0, nil)
	s.Schedule("staleSweep", time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	s.Shutdown()
	s.Shutdown() // must not panic

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d after Shutdown, want <= %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduler_ShutdownStopsEverything(t *testing.T) {
	s := New(4, nil)

	s.Schedule("ping", 10*time.Millisecond)
	s.StartInterval("staleSweep", 10*time.Millisecond)
	s.Shutdown()

	if s.Schedule("ping", time.Millisecond) {
		t.Error("Schedule after Shutdown returned true")
	}

	select {
	case got := <-s.Fires():
		t.Fatalf("action fired after Shutdown: %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}
