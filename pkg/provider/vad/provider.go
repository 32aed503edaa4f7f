// Package vad defines the Engine interface for voice-activity detection
// backends.
//
// A VAD engine wraps a frame-level speech detector (an energy threshold, a
// WebRTC-style classifier, or a model) and surfaces it as a stateful
// per-stream detector. Each detector keeps its own smoothing state so that
// concurrent audio streams are judged independently.
//
// Detection is synchronous by design: IsSpeech returns immediately, making
// it suitable for the capture loop that gates STT input frame by frame.
//
// Engines must be safe for concurrent use. A single Detector is owned by
// one connection and must not be shared across goroutines.
package vad

// Config holds the parameters for a detector instance.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to
	// IsSpeech. The satellite protocol delivers 16000.
	SampleRate int

	// Threshold is the speech score above which a frame counts as speech.
	// Range [0, 1]; scale is engine-specific (energy engines compare the
	// normalized RMS level, model engines a probability). Zero selects the
	// engine's default for its scale.
	Threshold float64
}

// Detector judges successive PCM frames of a single audio stream. Detectors
// are stateful: hysteresis over recent frames smooths flickering at word
// boundaries. Not safe for concurrent use.
type Detector interface {
	// IsSpeech reports whether the frame contains speech. Frames are mono
	// float32 PCM in [-1, 1] and may vary in length; the detector must not
	// block.
	IsSpeech(frame []float32) bool

	// Reset clears accumulated smoothing state. Called when the stream is
	// interrupted so a previous segment cannot bleed into the next.
	Reset()
}

// Engine is the factory for detectors, implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: every accepted
// connection creates its own detector.
type Engine interface {
	// NewDetector creates a detector with the given configuration, ready
	// for frames. Returns an error for invalid configuration (unsupported
	// sample rate, threshold out of range).
	NewDetector(cfg Config) (Detector, error)
}
