package keymutex

import (
	"sync"
	"testing"
	"time"
)

func TestKeyMutex_SerializesSameKey(t *testing.T) {
	km := New()

	const workers = 50
	counter := 0

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			km.Lock("booking:b1")
			defer km.Unlock("booking:b1")
			counter++
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("expected counter %d, got %d", workers, counter)
	}
}

func TestKeyMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := New()
	km.Lock("a")
	defer km.Unlock("a")

	done := make(chan struct{})
	go func() {
		km.Lock("b")
		km.Unlock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyMutex_TryLock(t *testing.T) {
	km := New()

	if !km.TryLock("k") {
		t.Fatal("expected first TryLock to succeed")
	}
	if km.TryLock("k") {
		t.Fatal("expected second TryLock to fail while held")
	}
	km.Unlock("k")
	if !km.TryLock("k") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	km.Unlock("k")
}

func TestKeyMutex_EntriesAreReclaimed(t *testing.T) {
	km := New()

	km.Lock("k")
	km.Unlock("k")

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.entries) != 0 {
		t.Errorf("expected entry map to be empty, got %d entries", len(km.entries))
	}
}

func TestKeyMutex_UnlockUnheldPanics(t *testing.T) {
	km := New()

	defer func() {
		if recover() == nil {
			t.Error("expected panic on unlock of unheld key")
		}
	}()
	km.Unlock("never-locked")
}
