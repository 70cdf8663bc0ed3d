// Package controller owns the session lifecycle: the capture device, the
// analysis tap, the live session handle, and the connection state machine.
//
// It is the only component allowed to create or destroy those resources.
// Every asynchronous path (block dispatch, fragment delivery, remote close)
// carries the session generation it was started under and becomes a no-op
// the moment the generation is invalidated by teardown.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/sprachcoach/internal/feedback"
	"github.com/MrWong99/sprachcoach/internal/observe"
	"github.com/MrWong99/sprachcoach/internal/turn"
	"github.com/MrWong99/sprachcoach/pkg/audio"
	"github.com/MrWong99/sprachcoach/pkg/provider/live"
)

// ConnState is the connection lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the state name for logging and the UI protocol.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// PassiveTranscriberDirective tells the remote model to act as a silent
// transcriber: it must not originate spoken replies of its own.
const PassiveTranscriberDirective = "You are a passive transcriber. Listen to the audio and do not respond, comment, or speak. Never originate a spoken reply."

// DeviceFactory opens a capture device delivering blocks to onBlock. The
// controller calls it once per connect so each session gets a fresh device.
type DeviceFactory func(onBlock audio.BlockFunc) (audio.CaptureDevice, error)

// StateFunc receives connection state changes.
type StateFunc func(ConnState)

// Config carries the controller's tunables.
type Config struct {
	// SampleRate is the fixed mono capture rate in Hz.
	SampleRate int

	// SilenceWindow is the debounce pause that finalizes a turn.
	SilenceWindow time.Duration

	// Instructions overrides PassiveTranscriberDirective when non-empty.
	Instructions string
}

// Controller supervises the capture-to-session pipeline.
type Controller struct {
	provider  live.Provider
	devices   DeviceFactory
	store     *turn.Store
	segmenter *turn.Segmenter
	analyzer  *audio.Analyzer
	metrics   *observe.Metrics
	logger    *slog.Logger
	cfg       Config

	// credCheck, when set, runs before any state change in Connect and
	// fails the call fast when credentials are absent.
	credCheck func() error

	mu        sync.Mutex
	state     ConnState
	gen       uint64
	session   live.SessionHandle
	device    audio.CaptureDevice
	blocks    chan []byte
	done      chan struct{}
	stateSubs []StateFunc

	// pending queues state notifications so subscribers observe transitions
	// in the order they happened; notifying marks an active drain goroutine.
	pending   []ConnState
	notifying bool
}

// Option is a functional option for the Controller.
type Option func(*Controller)

// WithCredentialCheck installs a pre-connect credential probe. When it
// returns an error, Connect reports it without touching connection state.
func WithCredentialCheck(fn func() error) Option {
	return func(c *Controller) { c.credCheck = fn }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a Controller. The segmenter and dispatcher are wired here so
// finalized turns flow straight into analysis.
func New(provider live.Provider, devices DeviceFactory, store *turn.Store, dispatcher *feedback.Dispatcher, analyzer *audio.Analyzer, cfg Config, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Instructions == "" {
		cfg.Instructions = PassiveTranscriberDirective
	}

	c := &Controller{
		provider: provider,
		devices:  devices,
		store:    store,
		analyzer: analyzer,
		logger:   logger,
		cfg:      cfg,
		state:    StateDisconnected,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}

	c.segmenter = turn.NewSegmenter(store, cfg.SilenceWindow, func(turnID, transcript string) {
		c.metrics.TurnsFinalized.Add(context.Background(), 1)
		dispatcher.Analyze(context.Background(), transcript, turnID)
	}, logger)

	return c
}

// State returns the current connection state.
func (c *Controller) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Store returns the turn store shared with the UI bridge.
func (c *Controller) Store() *turn.Store { return c.store }

// Analyzer returns the read-only acoustic analysis tap.
func (c *Controller) Analyzer() *audio.Analyzer { return c.analyzer }

// SubscribeState registers fn to receive every state change. Handlers are
// invoked from a dedicated goroutine in transition order and must not call
// back into the controller.
func (c *Controller) SubscribeState(fn StateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateSubs = append(c.stateSubs, fn)
}

// Connect acquires the capture device and opens a live session. On success
// the state is CONNECTED and audio flows; on any acquisition failure a full
// teardown runs and the state is ERROR.
//
// Fails fast without a state change when the credential check rejects or
// when a session is already active or being established.
func (c *Controller) Connect(ctx context.Context) error {
	if c.credCheck != nil {
		if err := c.credCheck(); err != nil {
			return fmt.Errorf("controller: connect: %w", err)
		}
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return fmt.Errorf("controller: connect: already %s", c.state)
	}
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "controller.Connect")
	defer span.End()

	device, sess, err := c.acquire(ctx, gen)
	if err != nil {
		c.metrics.RecordConnect(ctx, "error")
		c.teardown(gen, StateError)
		return fmt.Errorf("controller: connect: %w", err)
	}

	blocks := make(chan []byte, 64)
	done := make(chan struct{})

	c.mu.Lock()
	if c.gen != gen {
		// Disconnect won the race; release what we just acquired.
		c.mu.Unlock()
		_ = sess.Close()
		_ = device.Close()
		return fmt.Errorf("controller: connect: cancelled by disconnect")
	}
	c.session = sess
	c.device = device
	c.blocks = blocks
	c.done = done
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	go c.sendLoop(gen, sess, blocks, done)

	if err := device.Start(); err != nil {
		c.metrics.RecordConnect(ctx, "error")
		c.teardown(gen, StateError)
		return fmt.Errorf("controller: connect: start capture: %w", err)
	}

	go c.readFragments(gen, sess)

	c.metrics.RecordConnect(ctx, "ok")
	c.metrics.ActiveSessions.Add(ctx, 1)
	c.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds())
	c.logger.Info("connected", "generation", gen, "sampleRate", c.cfg.SampleRate)
	return nil
}

// acquire opens the capture device and the live session, in that order.
func (c *Controller) acquire(ctx context.Context, gen uint64) (audio.CaptureDevice, live.SessionHandle, error) {
	device, err := c.devices(func(block audio.Block) {
		c.handleBlock(gen, block)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("acquire device: %w", err)
	}

	sess, err := c.provider.Connect(ctx, live.SessionConfig{
		Instructions: c.cfg.Instructions,
		SampleRate:   c.cfg.SampleRate,
	})
	if err != nil {
		_ = device.Close()
		return nil, nil, fmt.Errorf("open session: %w", err)
	}

	return device, sess, nil
}

// Disconnect tears the pipeline down and resets the state to DISCONNECTED.
// Safe to call repeatedly and concurrently, including while Connect is still
// in flight.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.teardown(gen, StateDisconnected)
}

// handleBlock runs on the device's audio thread once per captured block.
// It feeds the analysis tap and forwards the encoded payload unless the
// block's generation has gone stale.
func (c *Controller) handleBlock(gen uint64, block audio.Block) {
	if c.analyzer != nil {
		c.analyzer.Feed(block.Samples)
	}

	c.mu.Lock()
	blocks := c.blocks
	stale := c.gen != gen || blocks == nil
	c.mu.Unlock()

	if stale {
		c.metrics.BlocksDroppedStale.Add(context.Background(), 1)
		return
	}

	pcm := audio.Float32ToPCM16(block.Samples)

	// Hand off to the send pump without blocking the audio thread. There is
	// no backpressure: when the pump falls behind, the block is dropped.
	select {
	case blocks <- pcm:
	default:
		c.logger.Debug("block dropped, send queue full", "generation", gen)
	}
}

// sendLoop forwards queued blocks to the session in capture order. A failed
// send is advisory: the block is not retried and capture cadence is
// unaffected.
func (c *Controller) sendLoop(gen uint64, sess live.SessionHandle, blocks <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case pcm := <-blocks:
			if err := sess.SendAudio(pcm); err != nil {
				c.logger.Debug("block send failed", "generation", gen, "error", err)
				continue
			}
			c.metrics.BlocksSent.Add(context.Background(), 1)
		}
	}
}

// readFragments consumes the session's transcript channel until it closes.
// Input-direction fragments drive the segmenter; a remote-initiated close
// routes through teardown exactly once.
func (c *Controller) readFragments(gen uint64, sess live.SessionHandle) {
	for frag := range sess.Transcripts() {
		// The staleness check and the push share one critical section with
		// teardown's generation bump, so a fragment can never open a turn
		// after its session was torn down. The segmenter never calls back
		// into the controller.
		c.mu.Lock()
		stale := c.gen != gen
		if !stale && frag.Direction == live.DirectionInput {
			c.segmenter.Push(frag.Text)
		}
		c.mu.Unlock()
		if stale {
			continue
		}

		c.metrics.RecordFragment(context.Background(), frag.Direction.String())
	}

	// Channel closed. If our generation is still active this is a
	// remote-initiated close; if not, local teardown already ran and closing
	// the session was its doing.
	c.mu.Lock()
	stale := c.gen != gen
	c.mu.Unlock()
	if stale {
		return
	}

	if err := sess.Err(); err != nil {
		c.logger.Warn("session closed by remote", "generation", gen, "error", err)
		c.teardown(gen, StateError)
		return
	}
	c.logger.Info("session closed by remote", "generation", gen)
	c.teardown(gen, StateDisconnected)
}

// teardown releases all pipeline resources in a fixed order with per-step
// fault isolation: silence timer, session, device, references, state. It is
// idempotent per generation; a second call for the same generation finds the
// generation already invalidated and only normalises the state.
func (c *Controller) teardown(gen uint64, final ConnState) {
	c.mu.Lock()
	if c.gen != gen {
		// Already torn down by a newer action; still honour an explicit
		// disconnect landing after the fact.
		if final == StateDisconnected && c.state != StateDisconnected && c.session == nil {
			c.setStateLocked(StateDisconnected)
		}
		c.mu.Unlock()
		return
	}
	c.gen++ // invalidate every async path started under gen
	sess := c.session
	device := c.device
	done := c.done
	c.session = nil
	c.device = nil
	c.blocks = nil
	c.done = nil

	// Step 1: silence timer and open-turn buffer. Runs in the same critical
	// section as the generation bump so an in-flight fragment cannot reopen
	// a turn between the two.
	c.segmenter.Reset()
	c.mu.Unlock()

	// Step 2: stop the send pump, then the session.
	if done != nil {
		close(done)
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			c.logger.Warn("teardown: close session", "error", err)
		}
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	// Step 3: capture device.
	if device != nil {
		if err := device.Close(); err != nil {
			c.logger.Warn("teardown: close device", "error", err)
		}
	}

	// Step 4: state reset.
	c.mu.Lock()
	c.setStateLocked(final)
	c.mu.Unlock()

	c.logger.Info("teardown complete", "generation", gen, "state", final)
}

// setStateLocked updates the state and queues a notification. Caller holds mu.
func (c *Controller) setStateLocked(s ConnState) {
	if c.state == s {
		return
	}
	c.state = s
	c.pending = append(c.pending, s)
	if !c.notifying {
		c.notifying = true
		go c.notifyLoop()
	}
}

// notifyLoop drains queued state changes and delivers them to subscribers in
// order, without holding the lock during callbacks.
func (c *Controller) notifyLoop() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.notifying = false
			c.mu.Unlock()
			return
		}
		s := c.pending[0]
		c.pending = c.pending[1:]
		subs := make([]StateFunc, len(c.stateSubs))
		copy(subs, c.stateSubs)
		c.mu.Unlock()

		for _, fn := range subs {
			fn(s)
		}
	}
}
