package audio

import "math"

// Half-width of the sinc kernel in output-rate zero crossings. 16 taps per
// side keeps the passband flat while staying cheap enough for request-path
// use.
const kernelHalfWidth = 16

// Resample converts mono PCM-16 samples from srcRate to dstRate using a
// Hann-windowed sinc kernel. When downsampling the kernel cutoff is lowered
// to the destination Nyquist so high frequencies are filtered out instead of
// aliasing, which naive decimation would cause.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || len(samples) == 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(dstRate) / float64(srcRate)
	outLen := int(math.Round(float64(len(samples)) * ratio))
	if outLen == 0 {
		return []int16{}
	}
	out := make([]int16, outLen)

	cutoff := 1.0
	if ratio < 1 {
		cutoff = ratio
	}
	halfWidth := float64(kernelHalfWidth) / cutoff

	for i := 0; i < outLen; i++ {
		center := float64(i) / ratio
		left := int(math.Floor(center - halfWidth))
		right := int(math.Ceil(center + halfWidth))

		var acc, norm float64
		for j := left; j <= right; j++ {
			if j < 0 || j >= len(samples) {
				continue
			}
			offset := float64(j) - center
			w := kernelWeight(offset, cutoff, halfWidth)
			acc += float64(samples[j]) * w
			norm += w
		}
		// Normalizing by the weight sum keeps amplitude stable at the
		// buffer edges where the kernel is clipped.
		if norm != 0 {
			acc /= norm
		}
		out[i] = clampInt16(acc)
	}

	return out
}

func kernelWeight(offset, cutoff, halfWidth float64) float64 {
	if math.Abs(offset) >= halfWidth {
		return 0
	}
	window := 0.5 + 0.5*math.Cos(math.Pi*offset/halfWidth)
	return sinc(offset*cutoff) * window
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func clampInt16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(math.Round(v))
}
