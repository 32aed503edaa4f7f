// Package energy implements vad.Engine with an RMS level detector.
//
// A frame counts as speech while its root-mean-square level exceeds the
// configured threshold. A short hangover keeps the verdict positive across
// the brief dips inside words, so the capture pipeline's silence timer only
// starts once the speaker has actually stopped. No model, no allocation per
// frame; good enough for a close-talking satellite microphone and cheap
// enough to run on every frame of every connection.
package energy

import (
	"fmt"

	"github.com/voxhollow/sibyl/pkg/audio"
	"github.com/voxhollow/sibyl/pkg/provider/vad"
)

// DefaultThreshold is the normalized RMS level above which a frame counts
// as speech when the config leaves Threshold zero. Speech on a close
// microphone sits well above this; room tone sits below.
const DefaultThreshold = 0.02

// hangoverFrames is how many consecutive quiet frames end an active speech
// run. Bridges intra-word dips without stretching the silence timeout by
// more than a few frame lengths.
const hangoverFrames = 3

// Engine creates energy detectors.
type Engine struct{}

// New returns a ready Engine.
func New() *Engine {
	return &Engine{}
}

// NewDetector validates cfg and returns a fresh detector. A zero Threshold
// selects DefaultThreshold.
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("energy: threshold %v out of range [0, 1]", cfg.Threshold)
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &detector{threshold: threshold}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

type detector struct {
	threshold float64
	quiet     int
	active    bool
}

// IsSpeech activates on the first loud frame and deactivates after
// hangoverFrames consecutive quiet ones.
func (d *detector) IsSpeech(frame []float32) bool {
	loud := audio.RMS(frame) > d.threshold
	switch {
	case loud:
		d.quiet = 0
		d.active = true
	case d.active:
		d.quiet++
		if d.quiet >= hangoverFrames {
			d.quiet = 0
			d.active = false
		}
	}
	return d.active
}

func (d *detector) Reset() {
	d.quiet = 0
	d.active = false
}

// Ensure detector implements vad.Detector at compile time.
var _ vad.Detector = (*detector)(nil)
