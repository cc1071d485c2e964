package exr

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/vesselworks/tagetes/tensor"
)

// Decode reads a scanline EXR written by this package's encoder back into a
// 1×H×W×3 tensor. It understands only the subset the encoder emits:
// uncompressed FLOAT channels in increasing line order. It exists so exports
// can be verified without an external EXR toolchain.
func Decode(path string) (*tensor.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeEXR(bufio.NewReader(f))
}

func decodeEXR(r *bufio.Reader) (*tensor.Image, error) {
	le := binary.LittleEndian
	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	if !bytes.Equal(head[:4], []byte{0x76, 0x2f, 0x31, 0x01}) {
		return nil, fmt.Errorf("exr: bad magic %x", head[:4])
	}
	if v := le.Uint32(head[4:]); v&0xff != 2 {
		return nil, fmt.Errorf("exr: unsupported version %d", v)
	}

	readString := func() (string, error) {
		s, err := r.ReadString(0)
		if err != nil {
			return "", err
		}
		return s[:len(s)-1], nil
	}

	var (
		width, height int
		compression   = -1
	)
	for {
		name, err := readString()
		if err != nil {
			return nil, err
		}
		if name == "" {
			break // end of header
		}
		typ, err := readString()
		if err != nil {
			return nil, err
		}
		var sz uint32
		if err := binary.Read(r, le, &sz); err != nil {
			return nil, err
		}
		value := make([]byte, sz)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, err
		}

		switch {
		case name == "dataWindow" && typ == "box2i" && sz == 16:
			xMin := int32(le.Uint32(value[0:]))
			yMin := int32(le.Uint32(value[4:]))
			xMax := int32(le.Uint32(value[8:]))
			yMax := int32(le.Uint32(value[12:]))
			width = int(xMax-xMin) + 1
			height = int(yMax-yMin) + 1
		case name == "compression" && sz == 1:
			compression = int(value[0])
		case name == "channels" && typ == "chlist":
			rest := value
			for len(rest) > 1 {
				i := bytes.IndexByte(rest, 0)
				if i <= 0 {
					break
				}
				if pt := le.Uint32(rest[i+1:]); pt != pixelTypeFloat {
					return nil, fmt.Errorf("exr: channel %q has pixel type %d; only FLOAT supported",
						rest[:i], pt)
				}
				rest = rest[i+1+16:]
			}
		}
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("exr: missing or empty dataWindow")
	}
	if compression != compressionNo {
		return nil, fmt.Errorf("exr: compression %d not supported", compression)
	}

	// Skip the scanline offset table; chunks follow in line order.
	if _, err := io.CopyN(io.Discard, r, int64(height)*8); err != nil {
		return nil, err
	}

	out := tensor.NewImage(1, height, width, 3)
	row := make([]byte, width*4)
	for i := 0; i < height; i++ {
		var y, sz uint32
		if err := binary.Read(r, le, &y); err != nil {
			return nil, err
		}
		if err := binary.Read(r, le, &sz); err != nil {
			return nil, err
		}
		if int(sz) != width*4*len(channelNames) {
			return nil, fmt.Errorf("exr: scanline %d has %d bytes; want %d", y, sz, width*4*len(channelNames))
		}
		for _, name := range channelNames {
			if _, err := io.ReadFull(r, row); err != nil {
				return nil, err
			}
			c := channelIndex(name, 3)
			for x := 0; x < width; x++ {
				out.Set(0, int(y), x, c, math.Float32frombits(le.Uint32(row[x*4:])))
			}
		}
	}
	return out, nil
}
