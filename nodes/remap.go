package nodes

import (
	"context"

	"github.com/vesselworks/tagetes/node"
)

func init() {
	node.Register(node.Definition{
		Type:        "RemapDepth",
		DisplayName: "Remap Depth",
		Category:    categoryDepth,
		New:         func() (node.Node, error) { return &RemapDepth{}, nil },
	})
}

// RemapDepth rescales unit-range depth into an arbitrary [min, max] interval,
// optionally clamping the result back to [0, 1].
type RemapDepth struct{}

func (n *RemapDepth) Spec() node.Spec {
	return node.Spec{
		Type:        "RemapDepth",
		DisplayName: "Remap Depth",
		Category:    categoryDepth,
		Inputs: []node.InputSpec{
			{Name: "image", Type: node.TypeImage},
			{Name: "min", Type: node.TypeFloat, Default: 0.0, Min: -10, Max: 1, Step: 0.01},
			{Name: "max", Type: node.TypeFloat, Default: 1.0, Min: 0, Max: 10, Step: 0.01},
			{Name: "clamp", Type: node.TypeBoolean, Default: true},
		},
		Outputs: []node.OutputSpec{{Name: "image", Type: node.TypeImage}},
	}
}

func (n *RemapDepth) Run(ctx context.Context, rt *node.Runtime, args node.Args) ([]any, error) {
	args, err := node.Validate(n.Spec(), args)
	if err != nil {
		return nil, err
	}
	image, _ := args.Image("image")
	lo, _ := args.Float("min")
	hi, _ := args.Float("max")
	clamp, _ := args.Bool("clamp")

	out := image.ToFloat32().Clone()
	span := float32(hi - lo)
	base := float32(lo)
	for i, v := range out.Pix {
		v = base + v*span
		if clamp {
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
		}
		out.Pix[i] = v
	}
	return []any{out}, nil
}
