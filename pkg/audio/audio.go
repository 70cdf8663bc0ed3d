// Package audio provides the capture-side audio primitives: fixed-size
// sample blocks, float to PCM16 conversion, resampling, and a level/spectrum
// analyzer tap.
//
// All sample data flows as float32 slices in the range [-1, 1] at a fixed
// mono rate until the moment it is encoded for the wire.
package audio

import "time"

// Block is one fixed-size chunk of captured audio.
type Block struct {
	// Samples are mono float32 samples in [-1, 1].
	Samples []float32

	// SampleRate is the capture rate in Hz.
	SampleRate int

	// Timestamp is when the block was captured.
	Timestamp time.Time
}

// BlockFunc is invoked by a capture device once per captured block. The
// callback runs on the device's audio thread and must return quickly;
// implementations hand the block off and never block on I/O.
type BlockFunc func(Block)

// CaptureDevice is a microphone (or equivalent) source of audio blocks.
//
// The device is opened by its constructor and begins invoking the callback
// only after Start. Close stops the stream and releases the device;
// calling Close more than once is safe.
type CaptureDevice interface {
	// Start begins capture. The callback set at construction receives one
	// Block per period until Close.
	Start() error

	// Close stops capture and releases the underlying device. Idempotent.
	Close() error
}
