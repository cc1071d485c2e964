// Package exr persists image tensors as 32-bit floating-point, 3-channel
// OpenEXR files. Writer backends self-register; the pure-Go scanline encoder
// is always available, and a gocv-backed writer takes precedence when built
// in. Output files are numbered sequentially after the existing files that
// match the configured prefix.
package exr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/vesselworks/tagetes/tensor"
)

// ErrNoWriter is returned when no EXR backend registered, which is fatal at
// node construction time.
var ErrNoWriter = errors.New("exr: no writer backend available")

// Writer persists one batch element of an image tensor as an EXR file.
type Writer interface {
	Name() string
	Write(path string, im *tensor.Image, batch int) error
}

type registered struct {
	writer   Writer
	priority int
}

var (
	regMu   sync.RWMutex
	writers []registered
)

// RegisterWriter adds a backend. Higher priority wins in Default.
func RegisterWriter(w Writer, priority int) {
	regMu.Lock()
	defer regMu.Unlock()
	writers = append(writers, registered{w, priority})
	sort.SliceStable(writers, func(i, j int) bool {
		return writers[i].priority > writers[j].priority
	})
}

// Default returns the highest-priority registered writer.
func Default() (Writer, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	if len(writers) == 0 {
		return nil, ErrNoWriter
	}
	return writers[0].writer, nil
}

// NextCounter scans dir for files named {prefix}_{N}[_].{ext} and returns the
// largest N found plus one. An empty or missing directory yields 1.
func NextCounter(dir, prefix string) (int, error) {
	pattern, err := regexp.Compile("^" + regexp.QuoteMeta(prefix) + `_(\d+)_?\.[A-Za-z0-9]+$`)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, err
	}
	max := 0
	for _, e := range entries {
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// SequencePath returns the next free output path for prefix in dir,
// formatted {prefix}_{counter:05d}.exr.
func SequencePath(dir, prefix string) (string, error) {
	counter, err := NextCounter(dir, prefix)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%05d.exr", prefix, counter)), nil
}
