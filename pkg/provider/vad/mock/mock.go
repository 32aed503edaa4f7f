// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that detectors are created with the expected Config.
// Use Detector to script IsSpeech verdicts and inspect the frames that were
// judged.
//
// Example:
//
//	det := &mock.Detector{Verdicts: []bool{true, true, false}}
//	eng := &mock.Engine{Detector: det}
//	d, _ := eng.NewDetector(cfg)
package mock

import (
	"sync"

	"github.com/voxhollow/sibyl/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Detector is returned by NewDetector. If nil, NewDetector returns a
	// new default Detector.
	Detector vad.Detector

	// NewDetectorErr, if non-nil, is returned as the error from NewDetector.
	NewDetectorErr error

	// NewDetectorCalls records the Config of every NewDetector call in order.
	NewDetectorCalls []vad.Config
}

// NewDetector records the call and returns Detector, NewDetectorErr.
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewDetectorCalls = append(e.NewDetectorCalls, cfg)
	if e.NewDetectorErr != nil {
		return nil, e.NewDetectorErr
	}
	if e.Detector != nil {
		return e.Detector, nil
	}
	return &Detector{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Detector is a mock implementation of vad.Detector.
//
// Successive IsSpeech calls consume Verdicts in order; once the queue is
// exhausted every call returns Default.
type Detector struct {
	mu sync.Mutex

	// Verdicts is the queue of IsSpeech results.
	Verdicts []bool

	// Default is returned once Verdicts is exhausted.
	Default bool

	// Frames records a copy of every frame passed to IsSpeech, in order.
	Frames [][]float32

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	next int
}

// IsSpeech records the frame and returns the next scripted verdict.
func (d *Detector) IsSpeech(frame []float32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]float32, len(frame))
	copy(cp, frame)
	d.Frames = append(d.Frames, cp)
	if d.next < len(d.Verdicts) {
		v := d.Verdicts[d.next]
		d.next++
		return v
	}
	return d.Default
}

// Reset records the call by incrementing ResetCallCount.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCallCount++
}

// ResetCalls clears recorded history and rewinds the verdict queue.
// Thread-safe.
func (d *Detector) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Frames = nil
	d.ResetCallCount = 0
	d.next = 0
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
