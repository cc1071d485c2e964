package pipeline

import (
	"context"
	"testing"

	"github.com/vesselworks/tagetes/node"
	"github.com/vesselworks/tagetes/tensor"
)

func TestLatentsDeterministic(t *testing.T) {
	a := Latents(123, 4, 64)
	b := Latents(123, 4, 64)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("latents differ at %d for identical (seed, index)", i)
		}
	}
}

func TestLatentsIndependentPerIndex(t *testing.T) {
	a := Latents(123, 0, 256)
	b := Latents(123, 1, 256)
	same := 0
	for i := range a {
		if a[i] == b[i] {
			same++
		}
	}
	if same == len(a) {
		t.Fatal("adjacent sample indices produced identical noise")
	}
}

func TestLatentSize(t *testing.T) {
	if got := latentSize(64, 48); got != 4*8*6 {
		t.Errorf("latentSize(64, 48) = %d; want %d", got, 4*8*6)
	}
}

func TestNormalizeDepthClipsAndMaps(t *testing.T) {
	raw := []float32{-2, -1, 0, 1, 2, 0.5}
	m := normalizeDepth(raw, 3, 2)
	want := []float64{0, 0, 0.5, 1, 1, 0.75}
	for i, v := range m.Pix {
		if v != want[i] {
			t.Errorf("pixel %d = %g; want %g", i, v, want[i])
		}
	}
}

func TestPrepareInputAlignsToEight(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{64, 48, 64, 48},
		{65, 48, 64, 48},
		{70, 50, 64, 48},
		{5, 5, 8, 8},
	}
	for _, tt := range tests {
		im := tensor.NewImage(1, tt.h, tt.w, 3)
		got := PrepareInput(im)
		if got.W != tt.wantW || got.H != tt.wantH {
			t.Errorf("PrepareInput(%dx%d) = %dx%d; want %dx%d",
				tt.w, tt.h, got.W, got.H, tt.wantW, tt.wantH)
		}
	}
}

func TestValidateBatch(t *testing.T) {
	if err := validateBatch(tensor.NewImage(2, 48, 64, 3)); err != nil {
		t.Errorf("aligned batch rejected: %v", err)
	}
	if err := validateBatch(tensor.NewImage(2, 50, 64, 3)); err == nil {
		t.Error("unaligned height accepted")
	}
	if err := validateBatch(tensor.NewImage(2, 48, 64, 1)); err == nil {
		t.Error("single-channel batch accepted")
	}
}

type fakeSampler struct {
	id     string
	closed bool
}

func (f *fakeSampler) Reset(seed int64, progress node.Progress) {}

func (f *fakeSampler) Sample(ctx context.Context, batch *tensor.Image, steps int) ([]*tensor.Map, error) {
	return nil, nil
}
func (f *fakeSampler) Close() error {
	f.closed = true
	return nil
}

func TestCacheReusesMatchingSession(t *testing.T) {
	loads := 0
	c := NewCache()
	c.loader = func(opts Options) (DepthSampler, error) {
		loads++
		return &fakeSampler{id: string(opts.Precision)}, nil
	}

	opts := DefaultOptions()
	opts.CheckpointDir = "/ckpt"
	opts.Precision = FP16

	s1, err := c.Get(opts)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	s2, err := c.Get(opts)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if s1 != s2 {
		t.Error("matching options should reuse the cached session")
	}
	if loads != 1 {
		t.Errorf("loader ran %d times; want 1", loads)
	}
}

func TestCacheReloadsOnPrecisionChange(t *testing.T) {
	c := NewCache()
	c.loader = func(opts Options) (DepthSampler, error) {
		return &fakeSampler{id: string(opts.Precision)}, nil
	}

	opts := DefaultOptions()
	opts.CheckpointDir = "/ckpt"
	opts.Precision = FP16
	s1, _ := c.Get(opts)

	opts.Precision = FP32
	s2, err := c.Get(opts)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if s1 == s2 {
		t.Error("precision change must force a reload")
	}
	if !s1.(*fakeSampler).closed {
		t.Error("old session not torn down on reload")
	}
}

func TestCacheRelease(t *testing.T) {
	c := NewCache()
	c.loader = func(opts Options) (DepthSampler, error) {
		return &fakeSampler{}, nil
	}
	s, _ := c.Get(DefaultOptions())
	if !c.Loaded() {
		t.Fatal("cache should be loaded")
	}
	if err := c.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if c.Loaded() {
		t.Error("cache still loaded after Release")
	}
	if !s.(*fakeSampler).closed {
		t.Error("Release did not close the session")
	}
	if err := c.Release(); err != nil {
		t.Errorf("second Release() error: %v", err)
	}
}
