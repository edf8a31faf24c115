// Package orchestration runs one voice shopping session per live
// connection: streaming transcription in, ordered text and audio events
// out, with interruption and catalog intent derivation on the side.
package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jennalabs/voicecart/core/audio"
	"github.com/jennalabs/voicecart/core/intent"
	"github.com/jennalabs/voicecart/core/llms"
	"github.com/jennalabs/voicecart/core/speechtotext"
	"github.com/jennalabs/voicecart/core/texttospeech"
)

// LLM is the generation capability consumed by turn processing.
type LLM interface {
	PromptWithStream(ctx context.Context, prompt *string, opts ...llms.PromptOption) llms.Stream
}

// IntentExtractor derives an optional catalog query from a finished turn.
type IntentExtractor interface {
	Extract(ctx context.Context, userText, assistantText string) (*intent.SearchIntent, error)
}

const defaultInstructions = `You are a friendly voice shopping assistant.
Answer in short spoken sentences, recommend concrete products, and keep the
conversation moving. Never read out lists or URLs.`

// Orchestrator owns the session registry and the capability clients shared
// by every session.
type Orchestrator struct {
	llm            LLM
	synthesizer    texttospeech.Synthesizer
	newTranscriber func() speechtotext.Transcriber
	extractor      IntentExtractor
	instructions   string
	encodingInfo   audio.EncodingInfo

	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	closeOnce sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) (*Orchestrator, error) {
	o := &Orchestrator{
		instructions: defaultInstructions,
		encodingInfo: audio.GetDefaultEncodingInfo(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:   slog.Default(),
		sessions: map[string]*Session{},
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.llm == nil {
		return nil, fmt.Errorf("an LLM client is required")
	}
	if o.synthesizer == nil {
		return nil, fmt.Errorf("a speech synthesizer is required")
	}
	if o.newTranscriber == nil {
		return nil, fmt.Errorf("a transcriber factory is required")
	}

	return o, nil
}

func (o *Orchestrator) register(session *Session) {
	o.mu.Lock()
	o.sessions[session.ID] = session
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(session *Session) {
	o.mu.Lock()
	delete(o.sessions, session.ID)
	o.mu.Unlock()
}

// SessionCount reports how many sessions are currently registered.
func (o *Orchestrator) SessionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// Close tears down every live session. New connections race an external
// listener shutdown; callers stop accepting before calling Close.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		sessions := make([]*Session, 0, len(o.sessions))
		for _, session := range o.sessions {
			sessions = append(sessions, session)
		}
		o.mu.Unlock()

		for _, session := range sessions {
			session.close()
		}
	})
}
