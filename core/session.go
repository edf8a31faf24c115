package orchestration

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jennalabs/voicecart/core/llms"
	"github.com/jennalabs/voicecart/core/protocol"
	"github.com/jennalabs/voicecart/core/speechtotext"
	"github.com/jennalabs/voicecart/core/texttospeech"
)

type sessionState int

const (
	sessionInitializing sessionState = iota
	sessionActive
	sessionClosed
)

// historyLimit bounds the generation context to the last three exchanges.
const historyLimit = 6

// Session owns the server side of one live connection: the transcription
// link, the in-flight turn guard, and the bounded conversation history.
type Session struct {
	ID string

	llm          LLM
	synthesizer  texttospeech.Synthesizer
	transcriber  speechtotext.Transcriber
	extractor    IntentExtractor
	instructions string

	// turnInFlight admits at most one turn pipeline at a time. It is the
	// only mutual exclusion around turn processing.
	turnInFlight atomic.Bool
	// turnGeneration distinguishes output of superseded turns from the
	// current one. Bumped when a turn starts and again on interrupt.
	turnGeneration atomic.Int64

	mu         sync.Mutex
	state      sessionState
	history    []llms.Message
	cancelTurn context.CancelFunc

	baseCtx context.Context
	send    chan protocol.Envelope
	done    chan struct{}
	logger  *slog.Logger

	closeOnce sync.Once
}

func newSession(ctx context.Context, id string, o *Orchestrator) *Session {
	return &Session{
		ID:           id,
		llm:          o.llm,
		synthesizer:  o.synthesizer,
		extractor:    o.extractor,
		instructions: o.instructions,
		state:        sessionInitializing,
		baseCtx:      ctx,
		send:         make(chan protocol.Envelope, sendQueueSize),
		done:         make(chan struct{}),
		logger:       o.logger.With("session", id),
	}
}

// init opens the transcription link. Failure here is fatal to the session.
func (s *Session) init(ctx context.Context, transcriber speechtotext.Transcriber, encoding speechtotext.TranscriptionOption) error {
	err := transcriber.Transcribe(ctx,
		encoding,
		speechtotext.WithInterimTranscriptionCallback(s.handleInterimTranscript),
		speechtotext.WithTranscriptionCallback(s.handleFinalTranscript),
	)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.transcriber = transcriber
	s.state = sessionActive
	s.mu.Unlock()
	return nil
}

// enqueue hands a frame to the write loop. Frames are dropped when the
// session is closing or the queue is full; turn processing never blocks on
// a slow client.
func (s *Session) enqueue(env protocol.Envelope) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.send <- env:
	default:
		s.logger.Warn("dropping outbound frame, send queue full", "type", env.Type)
	}
}

func (s *Session) handleInterimTranscript(transcript string) {
	s.enqueue(protocol.NewUserTranscript(transcript, false))
}

// handleFinalTranscript starts exactly one turn pipeline per finalized
// utterance. A transcript finalized while a turn is in flight is forwarded
// for display only.
func (s *Session) handleFinalTranscript(transcript string) {
	s.enqueue(protocol.NewUserTranscript(transcript, true))

	if !s.turnInFlight.CompareAndSwap(false, true) {
		s.logger.Debug("turn already in flight, transcript forwarded only")
		return
	}

	go s.processTurn(s.baseCtx, transcript)
}

// interrupt abandons the current turn's bookkeeping. The guard clears so
// the next utterance can start a turn, the generation bump makes any output
// still in flight stale, and the turn context is cancelled so superseded
// collaborator calls stop instead of completing unobserved.
func (s *Session) interrupt() {
	s.turnGeneration.Add(1)
	s.turnInFlight.Store(false)

	s.mu.Lock()
	cancel := s.cancelTurn
	s.cancelTurn = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.logger.Debug("turn interrupted")
}

func (s *Session) isStale(generation int64) bool {
	return s.turnGeneration.Load() != generation
}

func (s *Session) setTurnCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancelTurn = cancel
	s.mu.Unlock()
}

func (s *Session) historySnapshot() []llms.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]llms.Message, len(s.history))
	copy(history, s.history)
	return history
}

func (s *Session) appendExchange(userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history,
		llms.Message{Role: llms.MessageRoleUser, Content: userText},
		llms.Message{Role: llms.MessageRoleAssistant, Content: assistantText},
	)
	s.history = llms.BoundHistory(s.history, historyLimit)
}

func (s *Session) sendAudioFrame(frame []byte) {
	s.mu.Lock()
	transcriber := s.transcriber
	s.mu.Unlock()

	if transcriber == nil {
		return
	}
	if err := transcriber.SendAudio(frame); err != nil {
		s.logger.Warn("failed to forward audio frame", "error", err)
	}
}

// close tears the session down: the transcription link is released and the
// write loop drains out.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = sessionClosed
		transcriber := s.transcriber
		cancel := s.cancelTurn
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		close(s.done)

		if transcriber != nil {
			if err := transcriber.Close(); err != nil {
				s.logger.Warn("failed to close transcription link", "error", err)
			}
		}
	})
}
