package node

import (
	"fmt"

	"github.com/vesselworks/tagetes/tensor"
)

// Args is the keyword-argument map a node is invoked with. Keys match the
// declared input names; values are the Go representations of the declared
// types (int, float64, bool, string, *tensor.Image).
type Args map[string]any

// Int returns the named argument as an int, accepting int, int64 and float64
// encodings (hosts that round-trip arguments through JSON deliver float64).
func (a Args) Int(name string) (int, error) {
	v, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", name)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("argument %q: want int, got %T", name, v)
}

// Float returns the named argument as a float64.
func (a Args) Float(name string) (float64, error) {
	v, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("argument %q: want float, got %T", name, v)
}

// Bool returns the named argument as a bool.
func (a Args) Bool(name string) (bool, error) {
	v, ok := a[name]
	if !ok {
		return false, fmt.Errorf("missing argument %q", name)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q: want bool, got %T", name, v)
	}
	return b, nil
}

// String returns the named argument as a string.
func (a Args) String(name string) (string, error) {
	v, ok := a[name]
	if !ok {
		return "", fmt.Errorf("missing argument %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: want string, got %T", name, v)
	}
	return s, nil
}

// Image returns the named argument as an image tensor.
func (a Args) Image(name string) (*tensor.Image, error) {
	v, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", name)
	}
	im, ok := v.(*tensor.Image)
	if !ok {
		return nil, fmt.Errorf("argument %q: want image tensor, got %T", name, v)
	}
	return im, nil
}

// Validate checks args against the spec's declared inputs: missing arguments
// take the declared default (an input with no default is required), numeric
// arguments are range-checked, and enum arguments must be one of the declared
// choices. The returned map is a completed copy; the input map is unchanged.
func Validate(spec Spec, args Args) (Args, error) {
	out := make(Args, len(spec.Inputs))
	for _, in := range spec.Inputs {
		v, ok := args[in.Name]
		if !ok {
			if in.Default == nil {
				return nil, fmt.Errorf("node %s: missing required argument %q", spec.Type, in.Name)
			}
			out[in.Name] = in.Default
			continue
		}
		out[in.Name] = v

		switch in.Type {
		case TypeInt:
			n, err := out.Int(in.Name)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", spec.Type, err)
			}
			if in.Min != 0 || in.Max != 0 {
				if f := float64(n); f < in.Min || f > in.Max {
					return nil, fmt.Errorf("node %s: argument %q = %d outside [%g, %g]",
						spec.Type, in.Name, n, in.Min, in.Max)
				}
			}
			out[in.Name] = n
		case TypeFloat:
			f, err := out.Float(in.Name)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", spec.Type, err)
			}
			if in.Min != 0 || in.Max != 0 {
				if f < in.Min || f > in.Max {
					return nil, fmt.Errorf("node %s: argument %q = %g outside [%g, %g]",
						spec.Type, in.Name, f, in.Min, in.Max)
				}
			}
			out[in.Name] = f
		case TypeBoolean:
			if _, err := out.Bool(in.Name); err != nil {
				return nil, fmt.Errorf("node %s: %w", spec.Type, err)
			}
		case TypeEnum:
			s, err := out.String(in.Name)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", spec.Type, err)
			}
			found := false
			for _, c := range in.Choices {
				if c == s {
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("node %s: argument %q = %q is not one of %v",
					spec.Type, in.Name, s, in.Choices)
			}
		case TypeString:
			if _, err := out.String(in.Name); err != nil {
				return nil, fmt.Errorf("node %s: %w", spec.Type, err)
			}
		case TypeImage:
			if _, err := out.Image(in.Name); err != nil {
				return nil, fmt.Errorf("node %s: %w", spec.Type, err)
			}
		}
	}
	return out, nil
}
