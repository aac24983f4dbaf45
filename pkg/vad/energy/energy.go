// Package energy provides the default vad.Detector: an average-amplitude
// silence classifier equivalent to the telephony DSP gate the connector
// historically relied on.
package energy

import "encoding/binary"

// DefaultThreshold is the average absolute sample amplitude below which a
// chunk counts as silence. The value matches the silence threshold telephony
// DSPs are commonly configured with for 16-bit linear audio and is treated as
// a fixed constant, not a tuning knob.
const DefaultThreshold = 2000

// Detector classifies chunks by mean absolute amplitude. The zero value is
// not usable; construct with New.
type Detector struct {
	threshold int
}

// New returns a Detector using threshold as the silence cutoff. A threshold
// of 0 or less selects DefaultThreshold.
func New(threshold int) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Classify reports whether the chunk's mean absolute amplitude falls below
// the threshold. Empty chunks count as silence. A trailing odd byte is
// ignored.
func (d *Detector) Classify(chunk []byte) bool {
	n := len(chunk) / 2
	if n == 0 {
		return true
	}
	var sum int64
	for i := 0; i < n*2; i += 2 {
		s := int16(binary.LittleEndian.Uint16(chunk[i:]))
		if s < 0 {
			// -32768 negates to itself; saturate instead.
			if s == -32768 {
				s = 32767
			} else {
				s = -s
			}
		}
		sum += int64(s)
	}
	return sum/int64(n) < int64(d.threshold)
}

// Reset is a no-op; the classifier keeps no cross-chunk state.
func (d *Detector) Reset() {}
