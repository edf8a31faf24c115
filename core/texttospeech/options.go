// Package texttospeech defines the speech synthesis boundary: one text
// segment in, raw audio bytes out.
package texttospeech

import (
	"context"

	"github.com/jennalabs/voicecart/core/audio"
)

// Synthesizer renders text segments to raw PCM. Calls block until the
// audio for the whole segment is available; callers that need ordered
// output issue them sequentially.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	EncodingInfo() audio.EncodingInfo
}

type SynthesisOptions struct {
	Voice        string
	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.Voice = voice
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}

		o.EncodingInfo = encodingInfo
	}
}
