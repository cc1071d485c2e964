package nodes

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/vesselworks/tagetes/exr"
	"github.com/vesselworks/tagetes/node"
)

func init() {
	node.Register(node.Definition{
		Type:        "SaveImageOpenEXR",
		DisplayName: "Save Image (OpenEXR)",
		Category:    categoryDepth,
		New:         func() (node.Node, error) { return NewSaveImageOpenEXR() },
	})
}

// SaveImageOpenEXR writes each batch item as 32-bit float RGB EXR files with
// an auto-incrementing filename counter.
type SaveImageOpenEXR struct {
	writer exr.Writer
}

// NewSaveImageOpenEXR selects the highest-priority EXR writer backend. It
// fails with exr.ErrNoWriter when no backend is compiled in.
func NewSaveImageOpenEXR() (*SaveImageOpenEXR, error) {
	w, err := exr.Default()
	if err != nil {
		return nil, err
	}
	return &SaveImageOpenEXR{writer: w}, nil
}

func (n *SaveImageOpenEXR) Spec() node.Spec {
	return node.Spec{
		Type:        "SaveImageOpenEXR",
		DisplayName: "Save Image (OpenEXR)",
		Category:    categoryDepth,
		Inputs: []node.InputSpec{
			{Name: "image", Type: node.TypeImage},
			{Name: "filename_prefix", Type: node.TypeString, Default: "tagetes_exr"},
		},
		Outputs: []node.OutputSpec{{Name: "file_url", Type: node.TypeString}},
	}
}

func (n *SaveImageOpenEXR) Run(ctx context.Context, rt *node.Runtime, args node.Args) ([]any, error) {
	args, err := node.Validate(n.Spec(), args)
	if err != nil {
		return nil, err
	}
	image, _ := args.Image("image")
	prefix, _ := args.String("filename_prefix")

	var last string
	src := image.ToFloat32()
	for b := 0; b < image.B; b++ {
		// Counter is re-derived per file so the sequence stays dense even
		// when other writers target the same directory mid-batch.
		path, err := exr.SequencePath(rt.OutputDir, prefix)
		if err != nil {
			return nil, err
		}
		if err := n.writer.Write(path, src, b); err != nil {
			return nil, fmt.Errorf("exr export (%s): %w", filepath.Base(path), err)
		}
		log.Debug().Str("file", filepath.Base(path)).Str("backend", n.writer.Name()).Msg("exr: wrote image")
		last = filepath.Base(path)
	}

	u := url.URL{Path: "/view"}
	q := u.Query()
	q.Set("filename", last)
	q.Set("subfolder", "")
	q.Set("type", "output")
	u.RawQuery = q.Encode()
	return []any{u.String()}, nil
}
