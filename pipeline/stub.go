//go:build !cgo
// +build !cgo

package pipeline

func newSampler(opts Options) (DepthSampler, error) {
	return nil, ErrCGORequired
}
