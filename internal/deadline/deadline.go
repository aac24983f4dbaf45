// Package deadline holds the pure threshold arithmetic behind the three
// recognition timeout policies: initial silence, trailing silence, and
// absolute timeout.
//
// All functions operate on explicit inputs and keep no state, so the session
// state machine can evaluate them on every chunk without allocation.
//
// The disable sentinels are asymmetric on purpose and must stay that way: the
// silence policies are disabled by a negative threshold only, while the
// absolute timeout is additionally disabled at zero. This mirrors the
// recognizer product's documented behavior.
package deadline

import "time"

// InitialSilenceExceeded reports whether the initial-silence policy has
// tripped: speech has never been heard and the accumulated silence has reached
// the threshold. A negative threshold disables the policy.
func InitialSilenceExceeded(threshold, silence time.Duration, heardSpeech bool) bool {
	return !heardSpeech && threshold >= 0 && silence >= threshold
}

// TrailingSilenceExceeded reports whether the trailing-silence policy has
// tripped: speech has been heard and the accumulated silence has reached the
// threshold. A negative threshold disables the policy.
func TrailingSilenceExceeded(threshold, silence time.Duration, heardSpeech bool) bool {
	return heardSpeech && threshold >= 0 && silence >= threshold
}

// AbsoluteTimeoutExceeded reports whether the recognition attempt has lived
// past its hard ceiling. A threshold of zero or less disables the policy.
func AbsoluteTimeoutExceeded(threshold, elapsed time.Duration) bool {
	return threshold > 0 && elapsed >= threshold
}
