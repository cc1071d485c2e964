package runqueue

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueClaimFIFO(t *testing.T) {
	q := openTestQueue(t)

	id1, err := q.Enqueue("MarigoldDepthEstimation", map[string]any{"n_repeat": 10})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	id2, err := q.Enqueue("ColorizeDepthmap", map[string]any{"colorize_method": "Spectral"})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	j1, err := q.Claim()
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if j1.ID != id1 {
		t.Errorf("first claim = %s; want oldest %s", j1.ID, id1)
	}
	if j1.State != StateRunning {
		t.Errorf("claimed state = %s; want running", j1.State)
	}
	if v, ok := j1.Params["n_repeat"]; !ok || v != float64(10) {
		t.Errorf("params round-trip = %v", j1.Params)
	}

	j2, err := q.Claim()
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if j2.ID != id2 {
		t.Errorf("second claim = %s; want %s", j2.ID, id2)
	}
}

func TestClaimEmpty(t *testing.T) {
	q := openTestQueue(t)
	if _, err := q.Claim(); !errors.Is(err, ErrEmpty) {
		t.Errorf("Claim() on empty queue = %v; want ErrEmpty", err)
	}
}

func TestStateTransitions(t *testing.T) {
	q := openTestQueue(t)
	id, _ := q.Enqueue("RemapDepth", nil)

	j, err := q.Claim()
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if err := q.Done(j.ID, "ok"); err != nil {
		t.Fatalf("Done() error: %v", err)
	}
	got, err := q.Get(id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != StateDone || got.Message != "ok" {
		t.Errorf("job = %s %q; want done ok", got.State, got.Message)
	}

	// A finished job is not claimable again.
	if _, err := q.Claim(); !errors.Is(err, ErrEmpty) {
		t.Errorf("Claim() after drain = %v; want ErrEmpty", err)
	}
}

func TestFail(t *testing.T) {
	q := openTestQueue(t)
	id, _ := q.Enqueue("SaveImageOpenEXR", map[string]any{"filename_prefix": "x"})
	j, _ := q.Claim()
	if err := q.Fail(j.ID, "no writer"); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}
	got, _ := q.Get(id)
	if got.State != StateFailed || got.Message != "no writer" {
		t.Errorf("job = %s %q; want failed", got.State, got.Message)
	}
}

func TestFinishUnknownJob(t *testing.T) {
	q := openTestQueue(t)
	if err := q.Done("missing", ""); err == nil {
		t.Error("Done(missing) should fail")
	}
}

func TestPending(t *testing.T) {
	q := openTestQueue(t)
	for i := 0; i < 3; i++ {
		q.Enqueue("RemapDepth", nil)
	}
	n, err := q.Pending()
	if err != nil {
		t.Fatalf("Pending() error: %v", err)
	}
	if n != 3 {
		t.Errorf("Pending() = %d; want 3", n)
	}
	q.Claim()
	if n, _ = q.Pending(); n != 2 {
		t.Errorf("Pending() after claim = %d; want 2", n)
	}
}
