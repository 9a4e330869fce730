package audio

import "math"

// DownmixMono averages interleaved multi-channel samples into mono.
// A mono input is returned unchanged.
func DownmixMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels
		for ch := 0; ch < channels; ch++ {
			sum += samples[base+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// softClip maps a sample through tanh so summed sources saturate smoothly
// instead of wrapping at the 16-bit conversion.
func softClip(s float32) float32 {
	if s >= -1.0 && s <= 1.0 {
		return s
	}
	return float32(math.Tanh(float64(s)))
}

// Resampler converts a mono sample stream from one rate to another using
// linear interpolation. It keeps the fractional read position and the last
// input sample across calls so chunk boundaries do not introduce clicks.
type Resampler struct {
	srcRate int
	dstRate int
	ratio   float64 // source samples consumed per output sample

	pos  float64 // fractional position into the virtual source stream
	last float32 // final sample of the previous input block
	have bool
}

// NewResampler creates a streaming resampler between the given rates
func NewResampler(srcRate, dstRate int) *Resampler {
	return &Resampler{
		srcRate: srcRate,
		dstRate: dstRate,
		ratio:   float64(srcRate) / float64(dstRate),
	}
}

// Process resamples one block of mono input and returns the converted
// samples. The returned slice is freshly allocated each call.
func (r *Resampler) Process(input []float32) []float32 {
	if r.srcRate == r.dstRate {
		out := make([]float32, len(input))
		copy(out, input)
		return out
	}

	if len(input) == 0 {
		return nil
	}

	// Prepend the carried sample so interpolation can cross block edges.
	src := input
	if r.have {
		src = make([]float32, 0, len(input)+1)
		src = append(src, r.last)
		src = append(src, input...)
	}

	out := make([]float32, 0, int(float64(len(input))/r.ratio)+1)
	for {
		idx := int(r.pos)
		if idx >= len(src)-1 {
			break
		}
		frac := float32(r.pos - float64(idx))
		out = append(out, src[idx]+(src[idx+1]-src[idx])*frac)
		r.pos += r.ratio
	}

	// Rebase the position onto the next block, keeping the last sample
	// as the new interpolation anchor.
	r.pos -= float64(len(src) - 1)
	r.last = src[len(src)-1]
	r.have = true

	return out
}

// Reset clears the carried interpolation state
func (r *Resampler) Reset() {
	r.pos = 0
	r.last = 0
	r.have = false
}
