// Package audio handles PCM accumulation, loudness metering, and encoding.
// It buffers capture frames for one recording, exposes a normalized loudness
// level for silence detection and waveform display, and encodes finalized
// audio to WAV for submission.
package audio
