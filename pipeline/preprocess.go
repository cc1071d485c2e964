package pipeline

import (
	resize "github.com/nfnt/resize"

	"github.com/vesselworks/tagetes/tensor"
)

// PrepareInput resizes a single source image so both dimensions are
// multiples of 8, as required by the latent-space downsampling factor.
// Images already aligned are returned unchanged.
func PrepareInput(im *tensor.Image) *tensor.Image {
	w := im.W / 8 * 8
	h := im.H / 8 * 8
	if w < 8 {
		w = 8
	}
	if h < 8 {
		h = 8
	}
	if w == im.W && h == im.H {
		return im
	}
	scaled := resize.Resize(uint(w), uint(h), im.GoImage(0), resize.Bilinear)
	return tensor.FromImage(scaled)
}

// toNCHW lays a B×H×W×C tensor out as the B×3×H×W float32 buffer the model
// expects.
func toNCHW(im *tensor.Image) []float32 {
	out := make([]float32, im.B*3*im.H*im.W)
	plane := im.H * im.W
	for b := 0; b < im.B; b++ {
		base := b * 3 * plane
		for y := 0; y < im.H; y++ {
			for x := 0; x < im.W; x++ {
				p := y*im.W + x
				out[base+p] = im.At(b, y, x, 0)
				out[base+plane+p] = im.At(b, y, x, 1)
				out[base+2*plane+p] = im.At(b, y, x, 2)
			}
		}
	}
	return out
}
