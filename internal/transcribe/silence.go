package transcribe

import "math"

// rms computes the root-mean-square energy of a sample window. Speech at
// normal capture levels sits well above 0.001; pure digital silence is 0.
func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
