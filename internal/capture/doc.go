// Package capture owns the microphone lifecycle. It provides the Device
// abstraction over the platform audio input, and the Recorder state machine
// which buffers captured frames, feeds the level meter and silence detector,
// and produces one finalized encoded payload per recording.
package capture
