//go:build cgo && gocv
// +build cgo,gocv

package exr

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"github.com/vesselworks/tagetes/tensor"
)

// cvWriter persists EXR files through OpenCV's imwrite. It registers above
// the pure-Go encoder when the gocv build tag is set, matching the reference
// node's preference for a native HDR codec when one is present.
type cvWriter struct{}

func init() { RegisterWriter(cvWriter{}, 10) }

func (cvWriter) Name() string { return "gocv" }

func (cvWriter) Write(path string, im *tensor.Image, batch int) error {
	if batch < 0 || batch >= im.B {
		return fmt.Errorf("exr: batch index %d out of range [0, %d)", batch, im.B)
	}
	// OpenCV expects BGR interleaved float32.
	data := make([]byte, 0, im.H*im.W*3*4)
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			for _, c := range [3]string{"B", "G", "R"} {
				v := im.At(batch, y, x, channelIndex(c, im.C))
				data = appendFloat32(data, v)
			}
		}
	}
	mat, err := gocv.NewMatFromBytes(im.H, im.W, gocv.MatTypeCV32FC3, data)
	if err != nil {
		return err
	}
	defer mat.Close()
	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("exr: imwrite %s failed", path)
	}
	return nil
}

func appendFloat32(b []byte, v float32) []byte {
	bits := math.Float32bits(v)
	return append(b, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
}
