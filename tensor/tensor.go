// Package tensor provides the dense numeric containers passed between nodes:
// batched channel-interleaved image tensors and single-plane depth maps.
package tensor

import (
	"fmt"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/floats"
)

// Image is a batched image tensor in B×H×W×C layout. Values are unit-range
// floats by convention. Exactly one of Pix or Half is populated: Pix for
// single precision, Half for half precision (upcast with ToFloat32 before
// doing arithmetic).
type Image struct {
	B, H, W, C int
	Pix        []float32
	Half       []float16.Float16
}

// NewImage allocates a zeroed single-precision image tensor.
func NewImage(b, h, w, c int) *Image {
	return &Image{B: b, H: h, W: w, C: c, Pix: make([]float32, b*h*w*c)}
}

// NewHalfImage allocates a zeroed half-precision image tensor.
func NewHalfImage(b, h, w, c int) *Image {
	return &Image{B: b, H: h, W: w, C: c, Half: make([]float16.Float16, b*h*w*c)}
}

// Len returns the total element count B*H*W*C.
func (im *Image) Len() int { return im.B * im.H * im.W * im.C }

// IsHalf reports whether the tensor carries half-precision samples.
func (im *Image) IsHalf() bool { return im.Half != nil }

// Index returns the flat offset of element (b, y, x, c).
func (im *Image) Index(b, y, x, c int) int {
	return ((b*im.H+y)*im.W+x)*im.C + c
}

// At returns the element at (b, y, x, c), upcasting half precision.
func (im *Image) At(b, y, x, c int) float32 {
	i := im.Index(b, y, x, c)
	if im.Half != nil {
		return im.Half[i].Float32()
	}
	return im.Pix[i]
}

// Set stores v at (b, y, x, c) in the tensor's own precision.
func (im *Image) Set(b, y, x, c int, v float32) {
	i := im.Index(b, y, x, c)
	if im.Half != nil {
		im.Half[i] = float16.Fromfloat32(v)
		return
	}
	im.Pix[i] = v
}

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	out := &Image{B: im.B, H: im.H, W: im.W, C: im.C}
	if im.Half != nil {
		out.Half = make([]float16.Float16, len(im.Half))
		copy(out.Half, im.Half)
		return out
	}
	out.Pix = make([]float32, len(im.Pix))
	copy(out.Pix, im.Pix)
	return out
}

// ToFloat32 returns the tensor in single precision. Half-precision input is
// upcast into a new tensor; single-precision input is returned as-is.
func (im *Image) ToFloat32() *Image {
	if im.Half == nil {
		return im
	}
	out := NewImage(im.B, im.H, im.W, im.C)
	for i, h := range im.Half {
		out.Pix[i] = h.Float32()
	}
	return out
}

// ToHalf returns the tensor in half precision. Single-precision input is
// converted into a new tensor; half-precision input is returned as-is.
func (im *Image) ToHalf() *Image {
	if im.Half != nil {
		return im
	}
	out := NewHalfImage(im.B, im.H, im.W, im.C)
	for i, v := range im.Pix {
		out.Half[i] = float16.Fromfloat32(v)
	}
	return out
}

// Item copies batch element b into a new tensor with B == 1.
func (im *Image) Item(b int) *Image {
	n := im.H * im.W * im.C
	out := &Image{B: 1, H: im.H, W: im.W, C: im.C}
	if im.Half != nil {
		out.Half = make([]float16.Float16, n)
		copy(out.Half, im.Half[b*n:(b+1)*n])
		return out
	}
	out.Pix = make([]float32, n)
	copy(out.Pix, im.Pix[b*n:(b+1)*n])
	return out
}

// Repeat tiles a single-element tensor n times along the batch axis.
func (im *Image) Repeat(n int) (*Image, error) {
	if im.B != 1 {
		return nil, fmt.Errorf("repeat expects a single-element batch, got %d", im.B)
	}
	src := im.ToFloat32()
	out := NewImage(n, im.H, im.W, im.C)
	stride := im.H * im.W * im.C
	for i := 0; i < n; i++ {
		copy(out.Pix[i*stride:(i+1)*stride], src.Pix)
	}
	return out, nil
}

// Map is a single dense H×W plane of float64 values, row-major.
type Map struct {
	W, H int
	Pix  []float64
}

// NewMap allocates a zeroed W×H map.
func NewMap(w, h int) *Map {
	return &Map{W: w, H: h, Pix: make([]float64, w*h)}
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	out := &Map{W: m.W, H: m.H, Pix: make([]float64, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// At returns the value at (x, y).
func (m *Map) At(x, y int) float64 { return m.Pix[y*m.W+x] }

// Set stores v at (x, y).
func (m *Map) Set(x, y int, v float64) { m.Pix[y*m.W+x] = v }

// Range returns the minimum and maximum pixel values. An empty map yields
// (0, 0).
func (m *Map) Range() (min, max float64) {
	if len(m.Pix) == 0 {
		return 0, 0
	}
	return floats.Min(m.Pix), floats.Max(m.Pix)
}

// Channel extracts channel c of batch element b as a float64 map.
func (im *Image) Channel(b, c int) *Map {
	m := NewMap(im.W, im.H)
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			m.Pix[y*im.W+x] = float64(im.At(b, y, x, c))
		}
	}
	return m
}

// ReplicateGray expands a single plane into a 1×H×W×3 image tensor by
// copying the plane into all three channels.
func ReplicateGray(m *Map) *Image {
	im := NewImage(1, m.H, m.W, 3)
	for i, v := range m.Pix {
		f := float32(v)
		im.Pix[i*3+0] = f
		im.Pix[i*3+1] = f
		im.Pix[i*3+2] = f
	}
	return im
}

// Stack concatenates single-element tensors along the batch axis. All items
// must share H×W×C.
func Stack(items []*Image) (*Image, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("stack of zero tensors")
	}
	first := items[0]
	out := NewImage(len(items), first.H, first.W, first.C)
	stride := first.H * first.W * first.C
	for i, it := range items {
		if it.B != 1 || it.H != first.H || it.W != first.W || it.C != first.C {
			return nil, fmt.Errorf("stack item %d has shape %dx%dx%dx%d, want 1x%dx%dx%d",
				i, it.B, it.H, it.W, it.C, first.H, first.W, first.C)
		}
		src := it.ToFloat32()
		copy(out.Pix[i*stride:(i+1)*stride], src.Pix)
	}
	return out, nil
}
