package clitool

import (
	"sync"
	"testing"
)

func TestDisposable_ReleasesOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	d := NewDisposable(func() { calls++ })
	d.Dispose()
	d.Dispose()

	if calls != 1 {
		t.Errorf("release called %d times, want 1", calls)
	}
}

func TestDisposable_Concurrent(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	d := NewDisposable(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispose()
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("release called %d times, want 1", calls)
	}
}

func TestDisposable_NilSafe(t *testing.T) {
	t.Parallel()

	var d *Disposable
	d.Dispose()
	NewDisposable(nil).Dispose()
}
