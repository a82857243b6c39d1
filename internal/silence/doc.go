// Package silence decides when a speaker has stopped talking and a recording
// should be submitted automatically. It tracks the time since the last
// above-floor loudness sample and fires a stop callback exactly once after a
// fixed quiet duration.
package silence
