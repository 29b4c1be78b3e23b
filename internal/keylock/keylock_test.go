package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	table := New()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := table.Lock(context.Background(), "cancha_1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxInside)
	}
	if table.Len() != 0 {
		t.Fatalf("expected idle keys to be released, %d remain", table.Len())
	}
}

func TestLockDifferentKeysDoNotBlock(t *testing.T) {
	table := New()
	release, err := table.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	other, err := table.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock b should not wait on a: %v", err)
	}
	other()
}

func TestLockHonorsContext(t *testing.T) {
	table := New()
	release, _ := table.Lock(context.Background(), "k")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := table.Lock(ctx, "k"); err == nil {
		t.Fatalf("expected context error while key is held")
	}

	release()
	release()
	if table.Len() != 0 {
		t.Fatalf("expected table to be empty after release, got %d", table.Len())
	}
}

func TestTryLock(t *testing.T) {
	table := New()
	release, ok := table.TryLock("k")
	if !ok {
		t.Fatalf("expected free key to be taken")
	}
	if _, ok := table.TryLock("k"); ok {
		t.Fatalf("expected held key to be refused")
	}
	release()
	again, ok := table.TryLock("k")
	if !ok {
		t.Fatalf("expected key to be free after release")
	}
	again()
}
