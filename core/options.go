package orchestration

import (
	"log/slog"

	"github.com/jennalabs/voicecart/core/audio"
	"github.com/jennalabs/voicecart/core/speechtotext"
	"github.com/jennalabs/voicecart/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

func WithLLM(llm LLM) OrchestratorOption {
	return func(o *Orchestrator) {
		o.llm = llm
	}
}

func WithSynthesizer(synthesizer texttospeech.Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.synthesizer = synthesizer
	}
}

// WithTranscriberFactory sets the constructor for per-session transcription
// links.
func WithTranscriberFactory(factory func() speechtotext.Transcriber) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newTranscriber = factory
	}
}

func WithIntentExtractor(extractor IntentExtractor) OrchestratorOption {
	return func(o *Orchestrator) {
		o.extractor = extractor
	}
}

func WithInstructions(instructions string) OrchestratorOption {
	return func(o *Orchestrator) {
		if instructions != "" {
			o.instructions = instructions
		}
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) OrchestratorOption {
	return func(o *Orchestrator) {
		if encodingInfo.IsZero() {
			return
		}
		o.encodingInfo = encodingInfo
	}
}

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}
