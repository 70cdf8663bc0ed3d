// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and feed controlled sessions. Use
// Session to drive the transcript stream and inspect which methods the
// controller invoked.
//
// Example:
//
//	sess := &mock.Session{
//	    TranscriptsCh: make(chan live.Fragment, 8),
//	}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sprachcoach/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect
	// returns a new default Session with a buffered transcript channel.
	Session live.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{
		TranscriptsCh: make(chan live.Fragment, 32),
	}, nil
}

// Calls returns a snapshot of recorded Connect calls. Thread-safe.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
}

// Ensure Provider implements live.Provider at compile time.
var _ live.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// Session is a mock implementation of live.SessionHandle.
// Callers should pre-populate TranscriptsCh, then close it to signal
// end-of-session.
type Session struct {
	mu sync.Mutex

	// TranscriptsCh is the channel returned by Transcripts(). Callers own
	// this channel and are responsible for closing it.
	TranscriptsCh chan live.Fragment

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SessionErr is returned by Err.
	SessionErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// CloseFunc, if non-nil, runs on the first Close call. Useful to close
	// TranscriptsCh from the session itself like a real implementation.
	CloseFunc func()

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Transcripts returns TranscriptsCh.
func (s *Session) Transcripts() <-chan live.Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TranscriptsCh
}

// Err returns SessionErr.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SessionErr
}

// Close records the call, runs CloseFunc once, and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	first := s.CloseCallCount == 1
	fn := s.CloseFunc
	err := s.CloseErr
	s.mu.Unlock()

	if first && fn != nil {
		fn()
	}
	return err
}

// SentChunks returns a snapshot of all audio chunks passed to SendAudio.
func (s *Session) SentChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.SendAudioCalls))
	for i, c := range s.SendAudioCalls {
		out[i] = c.Chunk
	}
	return out
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.CloseCallCount = 0
}

// Ensure Session implements live.SessionHandle at compile time.
var _ live.SessionHandle = (*Session)(nil)
