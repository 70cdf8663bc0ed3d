// Package ui exposes the controller to rendering front ends over a WebSocket
// bridge.
//
// Clients connect to /ws and receive JSON events: "state" for connection
// state changes, "turn" for turn record creates/updates (full record,
// by-id update semantics; a record with "deleted" set removes the turn), and
// "spectrum" for periodic level/spectrum frames from the acoustic analysis
// tap. Clients send "connect" and "disconnect" commands to drive the session
// lifecycle.
package ui

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/sprachcoach/internal/controller"
	"github.com/MrWong99/sprachcoach/internal/observe"
	"github.com/MrWong99/sprachcoach/internal/turn"
)

const (
	spectrumInterval = 100 * time.Millisecond
	spectrumBins     = 32

	clientQueueSize = 32
	writeTimeout    = 5 * time.Second
)

// Event is one outbound bridge message.
type Event struct {
	Type     string     `json:"type"`
	State    string     `json:"state,omitempty"`
	Turn     *turn.Turn `json:"turn,omitempty"`
	RMS      float64    `json:"rms,omitempty"`
	Spectrum []float64  `json:"spectrum,omitempty"`
}

// Command is one inbound client message.
type Command struct {
	Type string `json:"type"`
}

// Bridge fans controller state, turn updates, and spectrum frames out to
// connected WebSocket clients.
type Bridge struct {
	ctrl    *controller.Controller
	logger  *slog.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	send chan Event
}

// New creates a Bridge and subscribes it to the controller's state changes
// and the store's turn updates.
func New(ctrl *controller.Controller, metrics *observe.Metrics, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	b := &Bridge{
		ctrl:    ctrl,
		logger:  logger,
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}

	ctrl.SubscribeState(func(s controller.ConnState) {
		b.broadcast(Event{Type: "state", State: s.String()})
	})
	ctrl.Store().Subscribe(func(t turn.Turn) {
		b.broadcast(Event{Type: "turn", Turn: &t})
	})

	return b
}

// Register adds the /ws route to mux.
func (b *Bridge) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", b.handleWS)
}

// Run broadcasts spectrum frames until ctx is cancelled. Frames are only
// produced while at least one client is connected.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(spectrumInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.mu.Lock()
			idle := len(b.clients) == 0
			b.mu.Unlock()
			if idle {
				continue
			}

			tap := b.ctrl.Analyzer()
			if tap == nil {
				continue
			}
			b.broadcast(Event{
				Type:     "spectrum",
				RMS:      tap.RMS(),
				Spectrum: tap.Spectrum(spectrumBins),
			})
		}
	}
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.logger.Warn("ui: accept websocket", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ctx := r.Context()
	cl := &client{send: make(chan Event, clientQueueSize)}

	b.mu.Lock()
	b.clients[cl] = struct{}{}
	b.mu.Unlock()
	b.metrics.UIClients.Add(ctx, 1)
	defer b.removeClient(cl)

	// Snapshot: current state, then the full turn sequence in order. Written
	// synchronously before the writer starts so the bounded queue can never
	// truncate it, no matter how many turns the session has accumulated.
	if err := b.writeEvent(ctx, conn, Event{Type: "state", State: b.ctrl.State().String()}); err != nil {
		return
	}
	for _, t := range b.ctrl.Store().List() {
		if err := b.writeEvent(ctx, conn, Event{Type: "turn", Turn: &t}); err != nil {
			return
		}
	}

	// Writer.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-cl.send:
				if !ok {
					return
				}
				if err := b.writeEvent(ctx, conn, ev); err != nil {
					return
				}
			}
		}
	}()

	// Reader: commands only.
	for {
		var cmd Command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			break
		}
		switch cmd.Type {
		case "connect":
			go func() {
				if err := b.ctrl.Connect(context.Background()); err != nil {
					b.logger.Warn("ui: connect command failed", "error", err)
				}
			}()
		case "disconnect":
			b.ctrl.Disconnect()
		default:
			b.logger.Debug("ui: unknown command", "type", cmd.Type)
		}
	}

	// Unregister before closing the queue so a concurrent broadcast can
	// never hit a closed channel.
	b.removeClient(cl)
	close(cl.send)
	<-writeDone
}

// removeClient unregisters cl. Safe to call more than once.
func (b *Bridge) removeClient(cl *client) {
	b.mu.Lock()
	_, ok := b.clients[cl]
	delete(b.clients, cl)
	b.mu.Unlock()
	if ok {
		b.metrics.UIClients.Add(context.Background(), -1)
	}
}

// broadcast enqueues ev for every connected client. Slow clients drop
// events rather than stalling the pipeline.
func (b *Bridge) broadcast(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for cl := range b.clients {
		select {
		case cl.send <- ev:
		default:
		}
	}
}

// writeEvent writes one event to conn with a per-write deadline.
func (b *Bridge) writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, ev)
}
