package exr

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/vesselworks/tagetes/tensor"
)

// goWriter is the pure-Go backend: OpenEXR 2.0 scanline files with
// uncompressed FLOAT channels. It has no external dependencies and registers
// unconditionally at lowest priority.
type goWriter struct{}

func init() { RegisterWriter(goWriter{}, 0) }

func (goWriter) Name() string { return "go-scanline" }

const (
	pixelTypeFloat = 2
	compressionNo  = 0
	lineOrderIncY  = 0
)

// channelNames in file order. OpenEXR requires channels sorted by name, so
// the planes are stored B, G, R.
var channelNames = [3]string{"B", "G", "R"}

func (goWriter) Write(path string, im *tensor.Image, batch int) error {
	if batch < 0 || batch >= im.B {
		return fmt.Errorf("exr: batch index %d out of range [0, %d)", batch, im.B)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := encodeEXR(w, im, batch); err != nil {
		return err
	}
	return w.Flush()
}

func encodeEXR(w *bufio.Writer, im *tensor.Image, batch int) error {
	width, height := im.W, im.H

	// Magic and version.
	le := binary.LittleEndian
	var buf [8]byte
	w.Write([]byte{0x76, 0x2f, 0x31, 0x01})
	le.PutUint32(buf[:4], 2)
	w.Write(buf[:4])

	writeAttr := func(name, typ string, value []byte) {
		w.WriteString(name)
		w.WriteByte(0)
		w.WriteString(typ)
		w.WriteByte(0)
		le.PutUint32(buf[:4], uint32(len(value)))
		w.Write(buf[:4])
		w.Write(value)
	}

	// channels: per channel name\0, pixel type, pLinear+reserved, x/y sampling.
	var chlist []byte
	for _, name := range channelNames {
		chlist = append(chlist, name...)
		chlist = append(chlist, 0)
		chlist = le.AppendUint32(chlist, pixelTypeFloat)
		chlist = append(chlist, 0, 0, 0, 0)
		chlist = le.AppendUint32(chlist, 1)
		chlist = le.AppendUint32(chlist, 1)
	}
	chlist = append(chlist, 0)
	writeAttr("channels", "chlist", chlist)

	writeAttr("compression", "compression", []byte{compressionNo})

	var box [16]byte
	le.PutUint32(box[8:12], uint32(width-1))
	le.PutUint32(box[12:16], uint32(height-1))
	writeAttr("dataWindow", "box2i", box[:])
	writeAttr("displayWindow", "box2i", box[:])

	writeAttr("lineOrder", "lineOrder", []byte{lineOrderIncY})

	le.PutUint32(buf[:4], math.Float32bits(1))
	writeAttr("pixelAspectRatio", "float", append([]byte(nil), buf[:4]...))

	writeAttr("screenWindowCenter", "v2f", make([]byte, 8))

	le.PutUint32(buf[:4], math.Float32bits(1))
	writeAttr("screenWindowWidth", "float", append([]byte(nil), buf[:4]...))

	// End of header.
	w.WriteByte(0)

	// Scanline offset table. Header size must be known, so compute offsets
	// relative to the current position: table itself, then the chunks.
	headerEnd := int64(4+4) + headerSize(width, height)
	tableSize := int64(height * 8)
	chunkSize := int64(4 + 4 + width*4*len(channelNames))
	for y := 0; y < height; y++ {
		le.PutUint64(buf[:8], uint64(headerEnd+tableSize+int64(y)*chunkSize))
		w.Write(buf[:8])
	}

	// Scanline chunks: y, payload size, then each channel's row of floats.
	dataSize := uint32(width * 4 * len(channelNames))
	row := make([]byte, width*4)
	for y := 0; y < height; y++ {
		le.PutUint32(buf[:4], uint32(y))
		w.Write(buf[:4])
		le.PutUint32(buf[:4], dataSize)
		w.Write(buf[:4])
		for _, name := range channelNames {
			c := channelIndex(name, im.C)
			for x := 0; x < width; x++ {
				le.PutUint32(row[x*4:], math.Float32bits(im.At(batch, y, x, c)))
			}
			if _, err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// channelIndex maps a file channel name to a tensor channel, replicating a
// single-channel tensor across R, G and B.
func channelIndex(name string, channels int) int {
	if channels < 3 {
		return 0
	}
	switch name {
	case "R":
		return 0
	case "G":
		return 1
	default:
		return 2
	}
}

// headerSize returns the byte length of the attribute block written by
// encodeEXR, up to and including the terminating null.
func headerSize(width, height int) int64 {
	attr := func(name, typ string, valueLen int) int64 {
		return int64(len(name) + 1 + len(typ) + 1 + 4 + valueLen)
	}
	n := attr("channels", "chlist", 3*(2+4+4+4+4)+1)
	n += attr("compression", "compression", 1)
	n += attr("dataWindow", "box2i", 16)
	n += attr("displayWindow", "box2i", 16)
	n += attr("lineOrder", "lineOrder", 1)
	n += attr("pixelAspectRatio", "float", 4)
	n += attr("screenWindowCenter", "v2f", 8)
	n += attr("screenWindowWidth", "float", 4)
	return n + 1
}
