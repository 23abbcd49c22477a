package watermark

import (
	"image"
	"math"
	"math/rand/v2"
)

// perturbAmplitude is the upper bound of the additive noise, 2% of full scale.
const perturbAmplitude = 0.02 * 255

// Source supplies uniform floats in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultSource draws from the process-wide generator.
var DefaultSource Source = globalSource{}

// Perturb adds independent uniform noise in [0, 5.1) to every color sample,
// rounding and clamping back to [0, 255]. A nil src uses DefaultSource.
func Perturb(img *image.RGBA, src Source) {
	if src == nil {
		src = DefaultSource
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		offset := img.PixOffset(bounds.Min.X, y)
		for x := 0; x < bounds.Dx(); x++ {
			for c := 0; c < 3; c++ {
				v := float64(img.Pix[offset+c]) + src.Float64()*perturbAmplitude
				img.Pix[offset+c] = clampByte(v)
			}
			offset += 4
		}
	}
}

// clampByte rounds v and clamps it to the 8-bit sample range.
func clampByte(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
