package audio

import (
	"math"
	"time"
)

// Sine generates a mono float32 sine tone: freq in Hz, dur at the given
// sample rate, scaled by volume and clipped to [-1, 1]. Used for the
// satellite's audible cues (checkpoint and closing beeps).
func Sine(freq float64, dur time.Duration, volume float64, rate int) []float32 {
	n := int(float64(rate) * dur.Seconds())
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	step := 2 * math.Pi * freq / float64(rate)
	for i := range out {
		v := math.Sin(step*float64(i)) * volume
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = float32(v)
	}
	return out
}
