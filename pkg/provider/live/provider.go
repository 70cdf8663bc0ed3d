// Package live defines the Provider interface for real-time transcription
// backends.
//
// A live provider wraps a bidirectional streaming voice service that accepts
// raw audio input and returns incremental transcription text in a single,
// stateful session. Examples include the Gemini Live API and similar
// low-latency streaming models.
//
// The central abstraction is SessionHandle: a long-lived session that carries
// outbound audio and inbound transcript fragments concurrently. Sessions live
// for seconds to minutes and end either on a local Close or on a
// remote-initiated close, which is signalled by the Transcripts channel
// closing.
//
// All implementations must be safe for concurrent use.
package live

import "context"

// Direction tags a transcript fragment with its origin.
type Direction int

const (
	// DirectionInput marks a fragment transcribed from the user's audio.
	DirectionInput Direction = iota

	// DirectionOutput marks a fragment of the model's own spoken response.
	DirectionOutput
)

// String returns a human-readable direction name for logging.
func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Fragment is one incremental piece of transcription text. Fragments are
// partial by design: the service emits them as recognition progresses, and
// consumers concatenate them in receipt order to reconstruct an utterance.
type Fragment struct {
	// Direction indicates whether the text transcribes user audio or model
	// speech output.
	Direction Direction

	// Text is the fragment content. May be a single word, part of a word, or
	// several words; never reordered relative to other fragments of the same
	// direction.
	Text string
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Instructions is the system-level directive sent at session setup.
	// For transcription-only use this tells the model to listen without
	// responding conversationally.
	Instructions string

	// SampleRate is the PCM sample rate in Hz of the audio the caller will
	// push via SendAudio. The session embeds it in the wire MIME type.
	SampleRate int
}

// SessionHandle represents an open live transcription session. It is an
// interface so that test code can supply mock implementations without a
// network connection.
//
// The session is the hot path of the capture pipeline. SendAudio is called
// once per capture block and must return quickly; transcript delivery is
// channel-based so the device callback never blocks on the network.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers one block of little-endian 16-bit PCM audio to the
	// service. The session performs wire framing (base64 plus MIME type)
	// internally. Returns an error if the session is closed or the write
	// fails; callers treat send failures as advisory and do not retry the
	// block.
	SendAudio(chunk []byte) error

	// Transcripts returns a read-only channel emitting transcript fragments
	// in receipt order. The channel is closed when the session ends, whether
	// by local Close, remote close, or a transport error. After the channel
	// closes, call Err to distinguish a clean shutdown from a failure.
	Transcripts() <-chan Fragment

	// Err returns the error that caused the Transcripts channel to close
	// prematurely, or nil if the session ended cleanly.
	Err() error

	// Close terminates the session, releases its resources, and closes the
	// Transcripts channel. Calling Close more than once is safe and returns
	// nil.
	Close() error
}

// Provider is the abstraction over any live transcription backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Connect establishes a new live session with the given configuration.
	// The returned SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the session cannot be established (authentication
	// failure, unreachable service, or ctx already cancelled). The caller
	// owns the SessionHandle and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
