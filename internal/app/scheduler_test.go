package app

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleFiresOnce(t *testing.T) {
	scheduler := NewTransitionScheduler()

	var fired atomic.Int32
	done := make(chan struct{})
	scheduler.Schedule("c1", time.Now().Add(10*time.Millisecond), "u1", func() {
		fired.Add(1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("scheduled action never fired")
	}
	if fired.Load() != 1 {
		t.Fatalf("expected exactly one fire, got %d", fired.Load())
	}
	if _, ok := scheduler.Pending("c1"); ok {
		t.Fatalf("expected registry entry removed after firing")
	}
}

func TestScheduleReplacesPendingTransition(t *testing.T) {
	scheduler := NewTransitionScheduler()

	firstFired := make(chan struct{}, 1)
	secondFired := make(chan struct{}, 1)
	scheduler.Schedule("c1", time.Now().Add(time.Hour), "u1", func() {
		firstFired <- struct{}{}
	})
	scheduler.Schedule("c1", time.Now().Add(10*time.Millisecond), "u2", func() {
		secondFired <- struct{}{}
	})

	if userID, ok := scheduler.Pending("c1"); !ok || userID != "u2" {
		t.Fatalf("expected the replacement to own the entry, got %q %v", userID, ok)
	}

	select {
	case <-secondFired:
	case <-time.After(time.Second):
		t.Fatalf("replacement action never fired")
	}
	select {
	case <-firstFired:
		t.Fatalf("superseded action must not fire")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	scheduler := NewTransitionScheduler()

	fired := make(chan struct{}, 1)
	scheduler.Schedule("c1", time.Now().Add(20*time.Millisecond), "u1", func() {
		fired <- struct{}{}
	})
	scheduler.Cancel("c1")
	scheduler.Cancel("c1")
	scheduler.Cancel("never-scheduled")

	select {
	case <-fired:
		t.Fatalf("cancelled action must not fire")
	case <-time.After(100 * time.Millisecond):
	}
	if _, ok := scheduler.Pending("c1"); ok {
		t.Fatalf("expected no pending entry after cancel")
	}
}
