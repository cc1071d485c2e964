package pipeline

import (
	"math/rand"
)

// latentChannels is the latent-space channel count of the diffusion model;
// latents are generated at 1/8 of the image resolution.
const latentChannels = 4

// Latents draws standard-normal latent noise for one sample. The generator
// is seeded seed+index, so each duplicated batch element gets its own
// deterministic, independent noise; without per-element seeding all N
// "independent" repeats would collapse to identical outputs.
func Latents(seed, index int64, n int) []float32 {
	rng := rand.New(rand.NewSource(seed + index))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.NormFloat64())
	}
	return out
}

// latentSize returns the per-sample latent element count for an H×W image.
func latentSize(w, h int) int {
	return latentChannels * (h / 8) * (w / 8)
}
