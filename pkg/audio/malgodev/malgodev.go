// Package malgodev implements audio.CaptureDevice on top of the malgo
// (miniaudio) bindings. It captures mono float32 blocks from the default
// system microphone and invokes the caller's BlockFunc once per device
// period.
package malgodev

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/sprachcoach/pkg/audio"
)

var _ audio.CaptureDevice = (*Device)(nil)

// Config holds the capture parameters.
type Config struct {
	// SampleRate in Hz. Defaults to 16000.
	SampleRate int

	// BlockSize is the number of samples delivered per Block. Defaults to
	// 2048. The device accumulates periods until a full block is ready.
	BlockSize int
}

// Device captures microphone audio via malgo.
type Device struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	rate      int
	blockSize int
	onBlock   audio.BlockFunc

	mu      sync.Mutex
	pending []float32
	closed  bool
}

// Open initialises the malgo context and default capture device. The device
// does not produce blocks until Start is called.
func Open(cfg Config, onBlock audio.BlockFunc) (*Device, error) {
	if onBlock == nil {
		return nil, fmt.Errorf("malgodev: onBlock must not be nil")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 2048
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	mctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("malgodev: init context: %w", err)
	}

	d := &Device{
		ctx:       mctx,
		rate:      cfg.SampleRate,
		blockSize: cfg.BlockSize,
		onBlock:   onBlock,
		pending:   make([]float32, 0, cfg.BlockSize),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			d.feed(pInputSamples)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		mctx.Uninit()
		return nil, fmt.Errorf("malgodev: init device: %w", err)
	}
	d.device = device

	return d, nil
}

// Start begins capture.
func (d *Device) Start() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("malgodev: device closed")
	}
	d.mu.Unlock()

	if err := d.device.Start(); err != nil {
		return fmt.Errorf("malgodev: start: %w", err)
	}
	return nil
}

// feed converts the raw f32le device bytes, accumulates them, and emits
// fixed-size blocks. Runs on the malgo audio thread.
func (d *Device) feed(raw []byte) {
	samples := bytesToFloat32(raw)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.pending = append(d.pending, samples...)

	var blocks [][]float32
	for len(d.pending) >= d.blockSize {
		block := make([]float32, d.blockSize)
		copy(block, d.pending[:d.blockSize])
		d.pending = d.pending[d.blockSize:]
		blocks = append(blocks, block)
	}
	onBlock := d.onBlock
	rate := d.rate
	d.mu.Unlock()

	for _, b := range blocks {
		onBlock(audio.Block{Samples: b, SampleRate: rate, Timestamp: time.Now()})
	}
}

// Close stops capture and releases the device and context. Idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.device != nil {
		_ = d.device.Stop()
		d.device.Uninit()
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
	}
	return nil
}

// bytesToFloat32 reinterprets little-endian f32 PCM bytes as samples.
func bytesToFloat32(raw []byte) []float32 {
	n := len(raw) / 4
	out := make([]float32, n)
	for i := range n {
		bits := uint32(raw[i*4]) |
			uint32(raw[i*4+1])<<8 |
			uint32(raw[i*4+2])<<16 |
			uint32(raw[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
