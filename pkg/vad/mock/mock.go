// Package mock provides a test double for the vad.Detector interface.
//
// Use Detector to script per-chunk verdicts and inspect the chunks that were
// classified.
//
// Example:
//
//	det := &mock.Detector{Verdicts: []bool{false, false, true}}
//	tracker := vad.NewTracker(det, 8000)
package mock

import (
	"sync"

	"github.com/tomferreira/voise-asterisk-module/pkg/vad"
)

// ClassifyCall records a single invocation of Detector.Classify.
type ClassifyCall struct {
	// Chunk is a copy of the bytes passed to Classify.
	Chunk []byte
}

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Verdicts is consumed one entry per Classify call. When exhausted (or
	// empty), Classify returns Default.
	Verdicts []bool

	// Default is returned once Verdicts is exhausted.
	Default bool

	// ClassifyCalls records every call to Classify in order.
	ClassifyCalls []ClassifyCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	next int
}

// Classify records the call and returns the next scripted verdict.
func (d *Detector) Classify(chunk []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	d.ClassifyCalls = append(d.ClassifyCalls, ClassifyCall{Chunk: cp})
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

// ResetCalls clears all recorded call history and rewinds the verdict script.
// Thread-safe.
func (d *Detector) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ClassifyCalls = nil
	d.ResetCallCount = 0
	d.next = 0
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
