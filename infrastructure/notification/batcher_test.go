package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/clitool-registry/domain/notification"
)

// batchRecorder collects flushed batches.
type batchRecorder struct {
	mu      sync.Mutex
	batches [][]*notification.Notification
}

func (r *batchRecorder) onBatch(_ context.Context, batch []*notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return nil
}

func (r *batchRecorder) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.batches))
	for i, b := range r.batches {
		out[i] = len(b)
	}
	return out
}

func newNotification(toolID string) *notification.Notification {
	return notification.New("n", notification.EventToolChanged, toolID)
}

func TestBatcher_FlushesOnSize(t *testing.T) {
	t.Parallel()

	rec := &batchRecorder{}
	b := NewBatcher(BatcherConfig{MaxBatchSize: 3, MaxWait: time.Hour, OnBatch: rec.onBatch})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := b.Add(ctx, newNotification("kube.kind")); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if got := rec.sizes(); len(got) != 0 {
		t.Fatalf("flushed early: %v", got)
	}
	if b.PendingCount() != 2 {
		t.Errorf("PendingCount() = %d, want 2", b.PendingCount())
	}

	_ = b.Add(ctx, newNotification("kube.kind"))
	if got := rec.sizes(); len(got) != 1 || got[0] != 3 {
		t.Errorf("batches = %v, want [3]", got)
	}
	if b.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", b.PendingCount())
	}
}

func TestBatcher_FlushesOnTimer(t *testing.T) {
	t.Parallel()

	rec := &batchRecorder{}
	b := NewBatcher(BatcherConfig{MaxBatchSize: 100, MaxWait: 20 * time.Millisecond, OnBatch: rec.onBatch})

	_ = b.Add(context.Background(), newNotification("kube.kind"))

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.sizes()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.sizes(); len(got) != 1 || got[0] != 1 {
		t.Errorf("batches = %v, want [1]", got)
	}
}

func TestBatcher_Close(t *testing.T) {
	t.Parallel()

	rec := &batchRecorder{}
	b := NewBatcher(BatcherConfig{MaxBatchSize: 10, MaxWait: time.Hour, OnBatch: rec.onBatch})
	ctx := context.Background()

	_ = b.Add(ctx, newNotification("a"))
	_ = b.Add(ctx, newNotification("b"))

	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := rec.sizes(); len(got) != 1 || got[0] != 2 {
		t.Errorf("batches = %v, want [2]", got)
	}
	if err := b.Add(ctx, newNotification("c")); !errors.Is(err, notification.ErrNotifierClosed) {
		t.Errorf("Add() after close error = %v, want ErrNotifierClosed", err)
	}
}

func TestBatcher_FlushEmpty(t *testing.T) {
	t.Parallel()

	rec := &batchRecorder{}
	b := NewBatcher(BatcherConfig{OnBatch: rec.onBatch})
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(rec.sizes()) != 0 {
		t.Error("empty flush should not call OnBatch")
	}
}
