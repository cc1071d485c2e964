package nodes

import (
	"context"
	"fmt"

	"github.com/vesselworks/tagetes/colormap"
	"github.com/vesselworks/tagetes/node"
	"github.com/vesselworks/tagetes/tensor"
)

func init() {
	node.Register(node.Definition{
		Type:        "ColorizeDepthmap",
		DisplayName: "Colorize Depthmap",
		Category:    categoryDepth,
		New:         func() (node.Node, error) { return &ColorizeDepthmap{}, nil },
	})
}

// ColorizeDepthmap maps single-channel depth to an RGB visualization using a
// named color ramp, after clipping outliers to the inner percentile range.
type ColorizeDepthmap struct{}

func (n *ColorizeDepthmap) Spec() node.Spec {
	return node.Spec{
		Type:        "ColorizeDepthmap",
		DisplayName: "Colorize Depthmap",
		Category:    categoryDepth,
		Inputs: []node.InputSpec{
			{Name: "image", Type: node.TypeImage},
			{Name: "colorize_method", Type: node.TypeEnum, Default: "Spectral", Choices: colormap.Names()},
		},
		Outputs: []node.OutputSpec{{Name: "image", Type: node.TypeImage}},
	}
}

func (n *ColorizeDepthmap) Run(ctx context.Context, rt *node.Runtime, args node.Args) ([]any, error) {
	args, err := node.Validate(n.Spec(), args)
	if err != nil {
		return nil, err
	}
	image, _ := args.Image("image")
	method, _ := args.String("colorize_method")

	ramp, ok := colormap.Lookup(method)
	if !ok {
		return nil, fmt.Errorf("colorize: unknown colormap %q", method)
	}

	out := make([]*tensor.Image, 0, image.B)
	for b := 0; b < image.B; b++ {
		out = append(out, colormap.Render(image.Channel(b, 0), ramp))
	}
	stacked, err := tensor.Stack(out)
	if err != nil {
		return nil, err
	}
	return []any{stacked}, nil
}
