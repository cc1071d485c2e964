package node

import (
	"context"
	"testing"

	"github.com/vesselworks/tagetes/tensor"
)

func testSpec() Spec {
	return Spec{
		Type:     "TestNode",
		Category: "test",
		Inputs: []InputSpec{
			{Name: "image", Type: TypeImage},
			{Name: "steps", Type: TypeInt, Default: 10, Min: 1, Max: 4096},
			{Name: "strength", Type: TypeFloat, Default: 0.02, Min: 0.001, Max: 4096},
			{Name: "mode", Type: TypeEnum, Default: "median", Choices: []string{"median", "mean"}},
			{Name: "invert", Type: TypeBoolean, Default: true},
			{Name: "prefix", Type: TypeString, Default: "out"},
		},
		Outputs: []OutputSpec{{Name: "image", Type: TypeImage}},
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	args, err := Validate(testSpec(), Args{"image": tensor.NewImage(1, 2, 2, 3)})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	if n, _ := args.Int("steps"); n != 10 {
		t.Errorf("steps = %d; want default 10", n)
	}
	if f, _ := args.Float("strength"); f != 0.02 {
		t.Errorf("strength = %g; want default 0.02", f)
	}
	if s, _ := args.String("mode"); s != "median" {
		t.Errorf("mode = %q; want default median", s)
	}
	if b, _ := args.Bool("invert"); !b {
		t.Error("invert = false; want default true")
	}
}

func TestValidateMissingRequired(t *testing.T) {
	if _, err := Validate(testSpec(), Args{}); err == nil {
		t.Fatal("Validate() with missing image should fail")
	}
}

func TestValidateRangeAndEnum(t *testing.T) {
	img := tensor.NewImage(1, 2, 2, 3)
	tests := []struct {
		name    string
		args    Args
		wantErr bool
	}{
		{"in range", Args{"image": img, "steps": 50}, false},
		{"int below min", Args{"image": img, "steps": 0}, true},
		{"int above max", Args{"image": img, "steps": 5000}, true},
		{"float below min", Args{"image": img, "strength": 0.0001}, true},
		{"valid enum", Args{"image": img, "mode": "mean"}, false},
		{"unknown enum", Args{"image": img, "mode": "mode"}, true},
		{"wrong type", Args{"image": img, "invert": "yes"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(testSpec(), tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAcceptsJSONNumbers(t *testing.T) {
	// Hosts that round-trip arguments through JSON deliver ints as float64.
	args, err := Validate(testSpec(), Args{
		"image": tensor.NewImage(1, 2, 2, 3),
		"steps": float64(20),
	})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	n, err := args.Int("steps")
	if err != nil {
		t.Fatalf("Int(steps) error: %v", err)
	}
	if n != 20 {
		t.Errorf("steps = %d; want 20", n)
	}
}

type stubNode struct{ spec Spec }

func (n stubNode) Spec() Spec { return n.spec }
func (n stubNode) Run(ctx context.Context, rt *Runtime, args Args) ([]any, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	Register(Definition{
		Type: "RegistryProbe",
		New:  func() (Node, error) { return stubNode{testSpec()}, nil },
	})

	def, ok := Lookup("RegistryProbe")
	if !ok {
		t.Fatal("Lookup(RegistryProbe) not found")
	}
	if def.Type != "RegistryProbe" {
		t.Errorf("def.Type = %q", def.Type)
	}

	found := false
	for _, d := range Definitions() {
		if d.Type == "RegistryProbe" {
			found = true
		}
	}
	if !found {
		t.Error("Definitions() missing RegistryProbe")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register should panic")
		}
	}()
	ctor := func() (Node, error) { return stubNode{}, nil }
	Register(Definition{Type: "DupProbe", New: ctor})
	Register(Definition{Type: "DupProbe", New: ctor})
}

func TestSpecInput(t *testing.T) {
	spec := testSpec()
	if in, ok := spec.Input("steps"); !ok || in.Type != TypeInt {
		t.Errorf("Input(steps) = %+v, %v", in, ok)
	}
	if _, ok := spec.Input("nope"); ok {
		t.Error("Input(nope) should not be found")
	}
}
