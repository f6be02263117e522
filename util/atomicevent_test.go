package util

import (
	"sync"
	"testing"
)

func TestAtomicEventSendAndValue(t *testing.T) {
	ae := NewAtomicEvent[int]()

	ae.Send(1)
	ae.Send(2)
	ae.Send(3)

	if got := ae.Value(); got != 3 {
		t.Errorf("Value() = %d, want the latest value 3", got)
	}
}

func TestAtomicEventNotificationCoalesces(t *testing.T) {
	ae := NewAtomicEvent[string]()

	ae.Send("a")
	ae.Send("b")

	// Multiple sends collapse into a single pending notification.
	<-ae.Channel()
	if ae.HasPending() {
		t.Error("expected exactly one pending notification for two sends")
	}
	if got := ae.Value(); got != "b" {
		t.Errorf("Value() = %q, want %q", got, "b")
	}
}

func TestAtomicEventSendNeverBlocks(t *testing.T) {
	ae := NewAtomicEvent[int]()

	// No consumer: a burst of sends must complete anyway.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			ae.Send(i)
		}
		close(done)
	}()
	<-done

	if got := ae.Value(); got != 999 {
		t.Errorf("Value() = %d, want 999", got)
	}
}

func TestAtomicEventConcurrentAccess(t *testing.T) {
	ae := NewAtomicEvent[int]()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ae.Send(base + j)
				_ = ae.Value()
			}
		}(i * 1000)
	}
	wg.Wait()
}
