// Package speechtotext defines the streaming transcription boundary used by
// the session orchestrator.
package speechtotext

import (
	"context"

	"github.com/jennalabs/voicecart/core/audio"
)

// Transcriber is one live transcription link. Implementations deliver
// transcripts through the callbacks configured at Transcribe time.
type Transcriber interface {
	// Transcribe opens the link and starts delivering callbacks. It fails if
	// the upstream service cannot be reached within the implementation's
	// init timeout.
	Transcribe(ctx context.Context, opts ...TranscriptionOption) error
	// SendAudio pushes one raw audio frame. Fire-and-forget; frames sent
	// while the link is down are dropped.
	SendAudio(audio []byte) error
	Close() error
}

type TranscriptionOptions struct {
	// InterimTranscriptionCallback receives low-latency partial transcripts
	// that may be revised.
	InterimTranscriptionCallback func(transcript string)
	// TranscriptionCallback receives the finalized transcript of one
	// complete utterance.
	TranscriptionCallback func(transcript string)

	SpeechStartedCallback func()

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptionCallback = callback
	}
}

func WithInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptionCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}
