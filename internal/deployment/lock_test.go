package deployment

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockManager_BasicLocking(t *testing.T) {
	lm := NewLockManager()

	// First lock should succeed
	if !lm.TryLock("kryonix-web") {
		t.Fatal("First TryLock should succeed")
	}

	// Second lock on same target should fail
	if lm.TryLock("kryonix-web") {
		t.Error("Second TryLock on same target should fail")
	}

	// Unlock
	lm.Unlock("kryonix-web")

	// Lock should succeed again after unlock
	if !lm.TryLock("kryonix-web") {
		t.Error("TryLock should succeed after unlock")
	}

	lm.Unlock("kryonix-web")
}

func TestLockManager_MultipleTargets(t *testing.T) {
	lm := NewLockManager()

	// Different targets lock independently
	if !lm.TryLock("kryonix-web") {
		t.Error("kryonix-web lock should succeed")
	}

	if !lm.TryLock("kryonix-api") {
		t.Error("kryonix-api lock should succeed")
	}

	if !lm.TryLock("kryonix-docs") {
		t.Error("kryonix-docs lock should succeed")
	}

		if lm.TryLock("kryonix-web") {
		t.Error("Second lock on kryonix-web should fail")
	}

	if lm.TryLock("kryonix-api") {
		t.Error("Second lock on kryonix-api should fail")
	}

	// Unlock all
	lm.Unlock("kryonix-web")
	lm.Unlock("kryonix-api")
	lm.Unlock("kryonix-docs")

	// All should be lockable again
	if !lm.TryLock("kryonix-web") {
		t.Error("kryonix-web should be lockable after unlock")
	}
	lm.Unlock("kryonix-web")
}

func TestLockManager_UnlockNonExistent(t *testing.T) {
	lm := NewLockManager()

	// Unlocking a non-existent lock should not panic
	lm.Unlock("nonexistent")

	// Should still be able to lock it afterwards
	if !lm.TryLock("nonexistent") {
		t.Error("Should be able to lock after unlocking non-existent")
	}

	lm.Unlock("nonexistent")
}

func TestLockManager_ConcurrentLockAttempts(t *testing.T) {
	lm := NewLockManager()

	target := "kryonix"
	successCount := int32(0)
	failureCount := int32(0)

	const goroutineCount = 100
	var wg sync.WaitGroup
	wg.Add(goroutineCount)

	for i := 0; i < goroutineCount; i++ {
		go func() {
			defer wg.Done()

			if lm.TryLock(target) {
				atomic.AddInt32(&successCount, 1)
				// Hold lock briefly
				time.Sleep(10 * time.Millisecond)
				lm.Unlock(target)
			} else {
				atomic.AddInt32(&failureCount, 1)
			}
		}()
	}

	wg.Wait()

	if failureCount == 0 {
		t.Error("Expected at least some lock attempts to fail due to concurrency")
	}

	if successCount == 0 {
		t.Error("Expected at least one lock attempt to succeed")
	}

	// Total should equal goroutineCount
	if int(successCount+failureCount) != goroutineCount {
		t.Errorf("Success + failure count (%d + %d = %d) should equal goroutine count (%d)",
			successCount, failureCount, successCount+failureCount, goroutineCount)
	}

	t.Logf("Concurrent lock test: %d succeeded, %d failed", successCount, failureCount)
}

// Benchmark tests

func BenchmarkLockManager_TryLock(b *testing.B) {
	lm := NewLockManager()
	target := "kryonix"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lm.TryLock(target)
		lm.Unlock(target)
	}
}

func BenchmarkLockManager_ConcurrentLocks(b *testing.B) {
	lm := NewLockManager()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			target := string(rune('0' + (i % 10)))
			if lm.TryLock(target) {
				lm.Unlock(target)
			}
			i++
		}
	})
}
