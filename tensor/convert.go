package tensor

import (
	"image"
	"image/color"
)

// FromImage converts a decoded image into a 1×H×W×3 unit-range tensor.
func FromImage(img image.Image) *Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := NewImage(1, h, w, 3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out.Pix[i+0] = float32(r) / 65535.0
			out.Pix[i+1] = float32(g) / 65535.0
			out.Pix[i+2] = float32(bl) / 65535.0
			i += 3
		}
	}
	return out
}

// GoImage renders batch element b as an 8-bit NRGBA image, clamping values
// to [0,1]. Single-channel tensors render as grayscale.
func (im *Image) GoImage(b int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, im.W, im.H))
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			var r, g, bl float32
			if im.C >= 3 {
				r = im.At(b, y, x, 0)
				g = im.At(b, y, x, 1)
				bl = im.At(b, y, x, 2)
			} else {
				v := im.At(b, y, x, 0)
				r, g, bl = v, v, v
			}
			dst.SetNRGBA(x, y, color.NRGBA{
				R: clampByte(r),
				G: clampByte(g),
				B: clampByte(bl),
				A: 255,
			})
		}
	}
	return dst
}

func clampByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
