// Package audio provides the PCM plumbing shared by the capture and playback
// paths: int16 wire format conversion, sample-rate conversion, loudness
// normalization and tone generation.
//
// The satellite protocol carries int16 little-endian mono PCM at 16 kHz.
// Internally everything is mono float32 in [-1, 1]; capture converts on the
// way in, playback converts on the way out.
package audio

import "math"

// WireRate is the sample rate of protocol audio in Hz, both directions.
const WireRate = 16000

// BytesToFloat32 converts int16 little-endian PCM bytes to float32 samples
// in [-1, 1) by dividing by 32768. A trailing odd byte is ignored.
func BytesToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768
	}
	return out
}

// Float32ToBytes converts float32 samples to int16 little-endian PCM bytes.
// Samples are clamped to [-1, 1] before scaling by 32767, so out-of-range
// input cannot wrap.
func Float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		s := int16(f * 32767)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Resample converts mono float32 samples from srcRate to dstRate using
// linear interpolation. If the rates match, or either rate is not positive,
// the input is returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// RMS returns the root-mean-square level of samples, 0 for empty input.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// NormalizeRMS scales samples so their RMS level matches target, returning a
// new slice. Silent input (RMS 0) is returned unchanged since no finite gain
// can reach the target.
func NormalizeRMS(samples []float32, target float64) []float32 {
	rms := RMS(samples)
	if rms == 0 {
		return samples
	}
	gain := float32(target / rms)
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s * gain
	}
	return out
}

// Gain scales samples by factor and clips the result to [-1, 1],
// returning a new slice.
func Gain(samples []float32, factor float32) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		v := s * factor
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}

// RMSInt16 returns the normalized RMS level of int16 little-endian PCM
// bytes, in [0, 1]. Used by energy-based voice activity detection, which
// works on the wire format directly.
func RMSInt16(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768
}
