// Package mock provides a test double for the audio.CaptureDevice interface.
//
// Tests construct a Device, hand its callback to the code under test, then
// call Emit to simulate captured blocks.
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/sprachcoach/pkg/audio"
)

// Device is a mock implementation of audio.CaptureDevice.
type Device struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	onBlock audio.BlockFunc
	rate    int

	// StartCallCount is the number of times Start was called.
	StartCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	started bool
	closed  bool
}

// New creates a mock Device that will deliver blocks at the given sample
// rate to onBlock.
func New(sampleRate int, onBlock audio.BlockFunc) *Device {
	return &Device{onBlock: onBlock, rate: sampleRate}
}

// Start records the call and returns StartErr.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StartCallCount++
	if d.StartErr != nil {
		return d.StartErr
	}
	d.started = true
	return nil
}

// Close records the call and returns CloseErr.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCallCount++
	d.closed = true
	d.started = false
	return d.CloseErr
}

// Emit synchronously invokes the block callback with the given samples, as
// the real device would from its audio thread. Blocks emitted before Start
// or after Close are dropped, matching real device behavior.
func (d *Device) Emit(samples []float32) {
	d.mu.Lock()
	ok := d.started && !d.closed
	onBlock := d.onBlock
	rate := d.rate
	d.mu.Unlock()

	if !ok || onBlock == nil {
		return
	}
	cp := make([]float32, len(samples))
	copy(cp, samples)
	onBlock(audio.Block{Samples: cp, SampleRate: rate, Timestamp: time.Now()})
}

// Started reports whether the device is currently capturing.
func (d *Device) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started && !d.closed
}

// Ensure Device implements audio.CaptureDevice at compile time.
var _ audio.CaptureDevice = (*Device)(nil)
