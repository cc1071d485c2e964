// Package colormap renders single-channel depth maps as RGB visualizations
// using named color ramps. Each ramp is a table of anchor colors at fixed
// positions; lookups interpolate linearly between anchors and quantize to
// byte range, matching the byte-quantized output of the reference renderer.
package colormap

import (
	"math"
	"sort"
)

type stop struct {
	pos     float64
	r, g, b float64
}

// Ramp is one named color transfer function.
type Ramp struct {
	name  string
	stops []stop
}

// Name returns the ramp's registered name.
func (rm *Ramp) Name() string { return rm.name }

// At evaluates the ramp at x in [0, 1], clamping out-of-range input. The
// result is quantized to 8-bit steps and returned as unit-range floats.
func (rm *Ramp) At(x float64) (r, g, b float64) {
	if x <= rm.stops[0].pos {
		s := rm.stops[0]
		return quant(s.r), quant(s.g), quant(s.b)
	}
	last := rm.stops[len(rm.stops)-1]
	if x >= last.pos {
		return quant(last.r), quant(last.g), quant(last.b)
	}
	i := sort.Search(len(rm.stops), func(i int) bool { return rm.stops[i].pos >= x }) - 1
	lo, hi := rm.stops[i], rm.stops[i+1]
	t := (x - lo.pos) / (hi.pos - lo.pos)
	return quant(lo.r + t*(hi.r-lo.r)),
		quant(lo.g + t*(hi.g-lo.g)),
		quant(lo.b + t*(hi.b-lo.b))
}

func quant(v float64) float64 {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return math.Round(v*255) / 255
}

// even builds a ramp whose anchors are evenly spaced over [0, 1].
func even(name string, colors ...[3]float64) *Ramp {
	stops := make([]stop, len(colors))
	for i, c := range colors {
		stops[i] = stop{float64(i) / float64(len(colors)-1), c[0], c[1], c[2]}
	}
	return &Ramp{name: name, stops: stops}
}

// at builds a ramp from explicit (position, color) anchors.
func at(name string, anchors ...stop) *Ramp {
	return &Ramp{name: name, stops: anchors}
}

var ramps = map[string]*Ramp{}

// names preserves the reference node's enum order.
var names = []string{
	"Spectral", "terrain", "viridis", "plasma", "inferno", "magma", "cividis",
	"twilight", "rainbow", "gist_rainbow", "gist_ncar", "gist_earth", "turbo",
	"jet", "afmhot", "copper", "seismic", "hsv", "brg",
}

func register(rm *Ramp) { ramps[rm.name] = rm }

func init() {
	register(even("Spectral",
		[3]float64{0.6196, 0.0039, 0.2588}, [3]float64{0.8353, 0.2431, 0.3098},
		[3]float64{0.9569, 0.4275, 0.2627}, [3]float64{0.9922, 0.6824, 0.3804},
		[3]float64{0.9961, 0.8784, 0.5451}, [3]float64{1.0000, 1.0000, 0.7490},
		[3]float64{0.9020, 0.9608, 0.5961}, [3]float64{0.6706, 0.8667, 0.6431},
		[3]float64{0.4000, 0.7608, 0.6471}, [3]float64{0.1961, 0.5333, 0.7412},
		[3]float64{0.3686, 0.3098, 0.6353}))
	register(at("terrain",
		stop{0.00, 0.2, 0.2, 0.6}, stop{0.15, 0.0, 0.6, 1.0},
		stop{0.25, 0.0, 0.8, 0.4}, stop{0.50, 1.0, 1.0, 0.6},
		stop{0.75, 0.5, 0.36, 0.33}, stop{1.00, 1.0, 1.0, 1.0}))
	register(even("viridis",
		[3]float64{0.267, 0.005, 0.329}, [3]float64{0.283, 0.141, 0.458},
		[3]float64{0.254, 0.265, 0.530}, [3]float64{0.207, 0.372, 0.553},
		[3]float64{0.164, 0.471, 0.558}, [3]float64{0.128, 0.567, 0.551},
		[3]float64{0.135, 0.659, 0.518}, [3]float64{0.267, 0.749, 0.441},
		[3]float64{0.478, 0.821, 0.318}, [3]float64{0.741, 0.873, 0.150},
		[3]float64{0.993, 0.906, 0.144}))
	register(even("plasma",
		[3]float64{0.050, 0.030, 0.528}, [3]float64{0.294, 0.011, 0.631},
		[3]float64{0.492, 0.012, 0.658}, [3]float64{0.658, 0.134, 0.588},
		[3]float64{0.798, 0.280, 0.470}, [3]float64{0.899, 0.422, 0.361},
		[3]float64{0.973, 0.585, 0.252}, [3]float64{0.996, 0.766, 0.157},
		[3]float64{0.940, 0.975, 0.131}))
	register(even("inferno",
		[3]float64{0.001, 0.000, 0.014}, [3]float64{0.133, 0.047, 0.291},
		[3]float64{0.341, 0.062, 0.429}, [3]float64{0.527, 0.126, 0.441},
		[3]float64{0.716, 0.215, 0.367}, [3]float64{0.866, 0.316, 0.226},
		[3]float64{0.967, 0.490, 0.084}, [3]float64{0.988, 0.702, 0.107},
		[3]float64{0.988, 0.998, 0.645}))
	register(even("magma",
		[3]float64{0.001, 0.000, 0.014}, [3]float64{0.114, 0.065, 0.277},
		[3]float64{0.317, 0.071, 0.485}, [3]float64{0.516, 0.127, 0.509},
		[3]float64{0.716, 0.215, 0.475}, [3]float64{0.892, 0.351, 0.401},
		[3]float64{0.987, 0.536, 0.382}, [3]float64{0.997, 0.770, 0.550},
		[3]float64{0.987, 0.991, 0.750}))
	register(even("cividis",
		[3]float64{0.000, 0.135, 0.305}, [3]float64{0.087, 0.243, 0.432},
		[3]float64{0.282, 0.345, 0.424}, [3]float64{0.421, 0.441, 0.426},
		[3]float64{0.560, 0.545, 0.413}, [3]float64{0.721, 0.659, 0.358},
		[3]float64{0.888, 0.780, 0.249}, [3]float64{0.995, 0.909, 0.218}))
	register(even("twilight",
		[3]float64{0.886, 0.850, 0.888}, [3]float64{0.555, 0.690, 0.804},
		[3]float64{0.288, 0.450, 0.700}, [3]float64{0.263, 0.204, 0.501},
		[3]float64{0.186, 0.072, 0.216}, [3]float64{0.482, 0.174, 0.296},
		[3]float64{0.686, 0.375, 0.377}, [3]float64{0.886, 0.850, 0.888}))
	register(even("rainbow",
		[3]float64{0.500, 0.000, 1.000}, [3]float64{0.250, 0.707, 0.924},
		[3]float64{0.000, 1.000, 0.707}, [3]float64{0.250, 0.924, 0.383},
		[3]float64{0.500, 0.707, 0.000}, [3]float64{0.750, 0.383, 0.000},
		[3]float64{1.000, 0.000, 0.000}))
	register(even("gist_rainbow",
		[3]float64{1.00, 0.00, 0.16}, [3]float64{1.00, 0.60, 0.00},
		[3]float64{0.80, 1.00, 0.00}, [3]float64{0.00, 1.00, 0.30},
		[3]float64{0.00, 1.00, 1.00}, [3]float64{0.00, 0.35, 1.00},
		[3]float64{0.60, 0.00, 1.00}, [3]float64{1.00, 0.00, 0.75}))
	register(even("gist_ncar",
		[3]float64{0.00, 0.00, 0.50}, [3]float64{0.00, 0.75, 1.00},
		[3]float64{0.00, 1.00, 0.30}, [3]float64{0.70, 1.00, 0.00},
		[3]float64{1.00, 0.90, 0.00}, [3]float64{1.00, 0.30, 0.00},
		[3]float64{1.00, 0.00, 0.60}, [3]float64{0.80, 0.30, 1.00},
		[3]float64{0.96, 0.90, 0.96}))
	register(even("gist_earth",
		[3]float64{0.00, 0.00, 0.00}, [3]float64{0.09, 0.16, 0.42},
		[3]float64{0.18, 0.40, 0.47}, [3]float64{0.26, 0.53, 0.33},
		[3]float64{0.45, 0.57, 0.29}, [3]float64{0.66, 0.58, 0.34},
		[3]float64{0.84, 0.70, 0.55}, [3]float64{0.99, 0.98, 0.98}))
	register(even("turbo",
		[3]float64{0.190, 0.072, 0.232}, [3]float64{0.276, 0.490, 0.980},
		[3]float64{0.110, 0.850, 0.730}, [3]float64{0.470, 0.990, 0.370},
		[3]float64{0.870, 0.870, 0.220}, [3]float64{0.990, 0.560, 0.110},
		[3]float64{0.900, 0.240, 0.050}, [3]float64{0.480, 0.020, 0.010}))
	register(at("jet",
		stop{0.000, 0.0, 0.0, 0.5}, stop{0.110, 0.0, 0.0, 1.0},
		stop{0.375, 0.0, 1.0, 1.0}, stop{0.625, 1.0, 1.0, 0.0},
		stop{0.890, 1.0, 0.0, 0.0}, stop{1.000, 0.5, 0.0, 0.0}))
	register(at("afmhot",
		stop{0.00, 0.0, 0.0, 0.0}, stop{0.25, 0.5, 0.0, 0.0},
		stop{0.50, 1.0, 0.5, 0.0}, stop{0.75, 1.0, 1.0, 0.5},
		stop{1.00, 1.0, 1.0, 1.0}))
	register(at("copper",
		stop{0.00, 0.0, 0.0, 0.0},
		stop{0.81, 1.0, 0.6328, 0.4030},
		stop{1.00, 1.0, 0.7812, 0.4975}))
	register(at("seismic",
		stop{0.00, 0.0, 0.0, 0.3}, stop{0.25, 0.0, 0.0, 1.0},
		stop{0.50, 1.0, 1.0, 1.0}, stop{0.75, 1.0, 0.0, 0.0},
		stop{1.00, 0.5, 0.0, 0.0}))
	register(even("hsv",
		[3]float64{1, 0, 0}, [3]float64{1, 1, 0}, [3]float64{0, 1, 0},
		[3]float64{0, 1, 1}, [3]float64{0, 0, 1}, [3]float64{1, 0, 1},
		[3]float64{1, 0, 0}))
	register(even("brg",
		[3]float64{0, 0, 1}, [3]float64{1, 0, 0}, [3]float64{0, 1, 0}))
}

// Names returns the ramp names in the reference enum order.
func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Lookup returns the ramp registered under name.
func Lookup(name string) (*Ramp, bool) {
	rm, ok := ramps[name]
	return rm, ok
}
