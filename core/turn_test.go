package orchestration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jennalabs/voicecart/core/audio"
	"github.com/jennalabs/voicecart/core/llms"
	"github.com/jennalabs/voicecart/core/protocol"
	"github.com/jennalabs/voicecart/core/speechtotext"
)

type fakeContentChunk struct {
	content string
}

func (f fakeContentChunk) FinishReason() *string { return nil }
func (f fakeContentChunk) Content() string       { return f.content }

type fakeStream struct {
	chunks []string
	err    error
}

func (f *fakeStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, chunk := range f.chunks {
			if !yield(fakeContentChunk{content: chunk}, nil) {
				return
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

type fakeLLM struct {
	mu      sync.Mutex
	stream  llms.Stream
	prompts []string
}

func (f *fakeLLM) PromptWithStream(_ context.Context, prompt *string, _ ...llms.PromptOption) llms.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prompt != nil {
		f.prompts = append(f.prompts, *prompt)
	}
	return f.stream
}

func (f *fakeLLM) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeSynthesizer struct {
	mu           sync.Mutex
	segments     []string
	err          error
	onSynthesize func()
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.segments = append(f.segments, text)
	hook := f.onSynthesize
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte{1, 2, 3, 4}, nil
}

func (f *fakeSynthesizer) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

type fakeTranscriber struct {
	mu      sync.Mutex
	options speechtotext.TranscriptionOptions
	frames  [][]byte
	closed  bool
}

func (f *fakeTranscriber) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := speechtotext.TranscriptionOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	f.mu.Lock()
	f.options = options
	f.mu.Unlock()
	return nil
}

func (f *fakeTranscriber) SendAudio(audio []byte) error {
	f.mu.Lock()
	f.frames = append(f.frames, audio)
	f.mu.Unlock()
	return nil
}

func (f *fakeTranscriber) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func newTestSession(t *testing.T, llm LLM, synthesizer *fakeSynthesizer) *Session {
	t.Helper()

	o, err := NewOrchestrator(
		WithLLM(llm),
		WithSynthesizer(synthesizer),
		WithTranscriberFactory(func() speechtotext.Transcriber { return &fakeTranscriber{} }),
	)
	if err != nil {
		t.Fatalf("unexpected orchestrator error: %v", err)
	}
	return newSession(context.Background(), "test-session", o)
}

func drainSend(s *Session) []protocol.Envelope {
	var envelopes []protocol.Envelope
	for {
		select {
		case env := <-s.send:
			envelopes = append(envelopes, env)
		default:
			return envelopes
		}
	}
}

func TestProcessTurnEmitsOrderedChunks(t *testing.T) {
	llm := &fakeLLM{stream: &fakeStream{chunks: []string{"Great choice! ", "I found shoes. ", "Bye"}}}
	synth := &fakeSynthesizer{}
	s := newTestSession(t, llm, synth)

	s.turnInFlight.Store(true)
	s.processTurn(context.Background(), "find red sneakers")

	var audioIndices []int
	var totalChunks *int
	textChunks := 0
	for _, env := range drainSend(s) {
		switch env.Type {
		case protocol.KindAudioChunk:
			audioIndices = append(audioIndices, *env.ChunkIndex)
		case protocol.KindAudioComplete:
			totalChunks = env.TotalChunks
		case protocol.KindTextChunk:
			textChunks++
		}
	}

	if len(audioIndices) != 3 {
		t.Fatalf("expected 3 audio chunks, got %v", audioIndices)
	}
	for i, index := range audioIndices {
		if index != i {
			t.Fatalf("expected chunk index %d at position %d, got %d", i, i, index)
		}
	}
	if totalChunks == nil || *totalChunks != 3 {
		t.Fatalf("expected audio.complete with 3 total chunks")
	}
	if textChunks != 3 {
		t.Fatalf("expected every text delta forwarded, got %d", textChunks)
	}

	synth.mu.Lock()
	defer synth.mu.Unlock()
	want := []string{"Great choice!", "I found shoes.", "Bye"}
	if len(synth.segments) != len(want) {
		t.Fatalf("expected segments %v, got %v", want, synth.segments)
	}
	for i := range want {
		if synth.segments[i] != want[i] {
			t.Fatalf("expected segment %q, got %q", want[i], synth.segments[i])
		}
	}
}

func TestProcessTurnClearsGuardAndBoundsHistory(t *testing.T) {
	llm := &fakeLLM{stream: &fakeStream{chunks: []string{"Sure thing."}}}
	s := newTestSession(t, llm, &fakeSynthesizer{})

	for i := 0; i < 3; i++ {
		s.appendExchange(fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i))
	}

	s.turnInFlight.Store(true)
	s.processTurn(context.Background(), "anything else?")

	if s.turnInFlight.Load() {
		t.Fatalf("expected guard cleared after turn completion")
	}

	history := s.historySnapshot()
	if len(history) != historyLimit {
		t.Fatalf("expected history bounded to %d messages, got %d", historyLimit, len(history))
	}
	if history[0].Content != "question 1" {
		t.Fatalf("expected oldest exchange evicted, history starts with %q", history[0].Content)
	}
	if history[len(history)-1].Content != "Sure thing." {
		t.Fatalf("expected newest response last, got %q", history[len(history)-1].Content)
	}
}

func TestProcessTurnReportsGenerationFailureAsNonFatal(t *testing.T) {
	llm := &fakeLLM{stream: &fakeStream{err: fmt.Errorf("upstream exploded")}}
	s := newTestSession(t, llm, &fakeSynthesizer{})

	s.turnInFlight.Store(true)
	s.processTurn(context.Background(), "find red sneakers")

	if s.turnInFlight.Load() {
		t.Fatalf("expected guard cleared after failure")
	}

	sawError := false
	for _, env := range drainSend(s) {
		if env.Type == protocol.KindError {
			sawError = true
		}
		if env.Type == protocol.KindAudioComplete {
			t.Fatalf("expected no audio.complete after failure")
		}
	}
	if !sawError {
		t.Fatalf("expected a non-fatal error event")
	}
}

func TestInterruptDiscardsAudioStillInFlight(t *testing.T) {
	llm := &fakeLLM{stream: &fakeStream{chunks: []string{"One. ", "Two."}}}
	synth := &fakeSynthesizer{}
	s := newTestSession(t, llm, synth)

	// An interrupt lands while the first segment is being synthesized.
	synth.onSynthesize = func() {
		synth.onSynthesize = nil
		s.interrupt()
	}

	s.turnInFlight.Store(true)
	s.processTurn(context.Background(), "find red sneakers")

	for _, env := range drainSend(s) {
		if env.Type == protocol.KindAudioChunk {
			t.Fatalf("expected stale audio to be discarded after interrupt")
		}
		if env.Type == protocol.KindAudioComplete {
			t.Fatalf("expected no completion event for an abandoned turn")
		}
	}
	if s.turnInFlight.Load() {
		t.Fatalf("expected guard cleared after interrupt")
	}
}

func TestFinalTranscriptDuringTurnDoesNotStartSecondTurn(t *testing.T) {
	llm := &fakeLLM{stream: &fakeStream{}}
	s := newTestSession(t, llm, &fakeSynthesizer{})

	s.turnInFlight.Store(true)
	s.handleFinalTranscript("second utterance")

	time.Sleep(50 * time.Millisecond)
	if llm.promptCount() != 0 {
		t.Fatalf("expected no generation while a turn is in flight")
	}

	envelopes := drainSend(s)
	if len(envelopes) != 1 || envelopes[0].Type != protocol.KindUserTranscript {
		t.Fatalf("expected the transcript forwarded for display, got %v", envelopes)
	}
	if envelopes[0].IsFinal == nil || !*envelopes[0].IsFinal {
		t.Fatalf("expected forwarded transcript to stay final")
	}
}

func TestInterruptCancelsTurnContext(t *testing.T) {
	cancelled := make(chan struct{})
	llm := &fakeLLM{stream: &blockingStream{cancelled: cancelled}}
	s := newTestSession(t, llm, &fakeSynthesizer{})

	done := make(chan struct{})
	s.turnInFlight.Store(true)
	go func() {
		s.processTurn(context.Background(), "find red sneakers")
		close(done)
	}()

	// Wait for the stream to be consuming before interrupting.
	time.Sleep(20 * time.Millisecond)
	s.interrupt()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatalf("expected interrupt to cancel the turn context")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected the turn pipeline to unwind after cancellation")
	}
}

type blockingStream struct {
	cancelled chan struct{}
}

func (b *blockingStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		if !yield(fakeContentChunk{content: "Thinking"}, nil) {
			return
		}
		<-ctx.Done()
		close(b.cancelled)
	}
}
