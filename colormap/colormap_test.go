package colormap

import (
	"math"
	"testing"

	"github.com/vesselworks/tagetes/tensor"
)

func TestAllNamesRegistered(t *testing.T) {
	got := Names()
	if len(got) != 19 {
		t.Fatalf("Names() has %d entries; want 19", len(got))
	}
	if got[0] != "Spectral" {
		t.Errorf("Names()[0] = %q; want Spectral", got[0])
	}
	for _, name := range got {
		if _, ok := Lookup(name); !ok {
			t.Errorf("Lookup(%q) not found", name)
		}
	}
	if _, ok := Lookup("nonexistent"); ok {
		t.Error("Lookup(nonexistent) should fail")
	}
}

func TestRampAtRangeAndQuantization(t *testing.T) {
	for _, name := range Names() {
		rm, _ := Lookup(name)
		for _, x := range []float64{-0.5, 0, 0.1, 0.33, 0.5, 0.77, 1, 1.5} {
			r, g, b := rm.At(x)
			for _, v := range []float64{r, g, b} {
				if v < 0 || v > 1 {
					t.Fatalf("%s.At(%g) = %g outside [0, 1]", name, x, v)
				}
				// Byte-quantized values land exactly on 255ths.
				q := math.Round(v*255) / 255
				if math.Abs(v-q) > 1e-12 {
					t.Fatalf("%s.At(%g) = %g not byte-quantized", name, x, v)
				}
			}
		}
	}
}

func TestRampAtClampsEnds(t *testing.T) {
	rm, _ := Lookup("brg")
	r0, g0, b0 := rm.At(-1)
	if r0 != 0 || g0 != 0 || b0 != 1 {
		t.Errorf("brg.At(-1) = (%g, %g, %g); want (0, 0, 1)", r0, g0, b0)
	}
	r1, g1, b1 := rm.At(2)
	if r1 != 0 || g1 != 1 || b1 != 0 {
		t.Errorf("brg.At(2) = (%g, %g, %g); want (0, 1, 0)", r1, g1, b1)
	}
}

func TestPercentile(t *testing.T) {
	vals := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	tests := []struct {
		pct  float64
		want float64
	}{
		{0, 0},
		{100, 9},
		{50, 4.5},
		{25, 2.25},
	}
	for _, tt := range tests {
		if got := Percentile(vals, tt.pct); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Percentile(%g) = %g; want %g", tt.pct, got, tt.want)
		}
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("Percentile(empty) = %g; want 0", got)
	}
}

func TestRenderShapeAndRange(t *testing.T) {
	depth := tensor.NewMap(8, 6)
	for i := range depth.Pix {
		depth.Pix[i] = float64(i) / float64(len(depth.Pix)-1)
	}
	for _, name := range []string{"Spectral", "viridis", "jet"} {
		rm, _ := Lookup(name)
		img := Render(depth, rm)
		if img.B != 1 || img.H != 6 || img.W != 8 || img.C != 3 {
			t.Fatalf("%s: Render shape %dx%dx%dx%d", name, img.B, img.H, img.W, img.C)
		}
		for p, v := range img.Pix {
			if v < 0 || v > 1 {
				t.Fatalf("%s: pixel %d = %g outside [0, 1]", name, p, v)
			}
		}
	}
}

func TestRenderConstantInput(t *testing.T) {
	depth := tensor.NewMap(4, 4)
	for i := range depth.Pix {
		depth.Pix[i] = 0.5
	}
	rm, _ := Lookup("Spectral")
	img := Render(depth, rm)
	// A constant map has a degenerate percentile range; every pixel should
	// still be a valid color, identical across the image.
	first := [3]float32{img.Pix[0], img.Pix[1], img.Pix[2]}
	for p := 0; p < len(img.Pix); p += 3 {
		if img.Pix[p] != first[0] || img.Pix[p+1] != first[1] || img.Pix[p+2] != first[2] {
			t.Fatalf("pixel %d differs on constant input", p/3)
		}
	}
}
