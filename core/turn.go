package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jennalabs/voicecart/core/audio"
	"github.com/jennalabs/voicecart/core/llms"
	"github.com/jennalabs/voicecart/core/protocol"
	"github.com/jennalabs/voicecart/internal/utils"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errTurnSuperseded = errors.New("turn superseded")

// processTurn drives one finalized utterance through generation,
// segmentation and synthesis. Text deltas stream out as they arrive; audio
// segments are synthesized strictly one at a time so chunk index order is
// emission order is playback order, with no reordering buffer anywhere.
func (s *Session) processTurn(ctx context.Context, userText string) {
	generation := s.turnGeneration.Add(1)

	ctx, cancel := context.WithCancel(ctx)
	s.setTurnCancel(cancel)
	defer cancel()

	ctx, span := tracer.Start(ctx, "process turn")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", s.ID))

	// An interrupted turn must not clear the guard: interruption already
	// cleared it and a newer turn may hold it by now.
	defer func() {
		if !s.isStale(generation) {
			s.turnInFlight.Store(false)
		}
	}()

	chunkIndex := 0
	segmenter := sentenceSegmenter{}
	var response strings.Builder

	emitSegment := func(segment string) error {
		pcm, err := s.synthesizer.Synthesize(ctx, segment)
		if err != nil {
			return fmt.Errorf("failed to synthesize segment: %w", err)
		}

		container, err := audio.EncodeWAV(pcm, s.synthesizer.EncodingInfo())
		if err != nil {
			return fmt.Errorf("failed to wrap segment audio: %w", err)
		}

		if s.isStale(generation) {
			return errTurnSuperseded
		}
		s.enqueue(protocol.NewAudioChunk(container, chunkIndex))
		chunkIndex++
		return nil
	}

	stream := s.llm.PromptWithStream(ctx, utils.Ptr(userText),
		llms.WithInstructions(s.instructions),
		llms.WithHistory(s.historySnapshot()...),
	)
	// Manually desugared range-over-func loop (the local toolchain predates
	// go1.23): returning false from yield stops the stream, and stopped
	// records that the surrounding function must return as well.
	stopped := false
	stream.Chunks(ctx)(func(chunk llms.StreamChunk, err error) bool {
		// Staleness first: an interrupt cancels the turn context, and the
		// resulting stream error is not worth reporting.
		if s.isStale(generation) {
			span.AddEvent("turn superseded mid-stream")
			stopped = true
			return false
		}
		if err != nil {
			s.failTurn(span, fmt.Errorf("failed to stream response: %w", err))
			stopped = true
			return false
		}

		content, ok := chunk.(llms.ContentChunk)
		if !ok {
			return true
		}

		response.WriteString(content.Content())
		s.enqueue(protocol.NewTextChunk(content.Content()))

		if segment, ok := segmenter.Push(content.Content()); ok {
			if err := emitSegment(segment); err != nil {
				if errors.Is(err, errTurnSuperseded) {
					span.AddEvent("turn superseded mid-synthesis")
					stopped = true
					return false
				}
				s.failTurn(span, err)
				stopped = true
				return false
			}
		}
		return true
	})
	if stopped {
		return
	}

	if segment, ok := segmenter.Flush(); ok {
		if err := emitSegment(segment); err != nil {
			if errors.Is(err, errTurnSuperseded) {
				span.AddEvent("turn superseded at flush")
				return
			}
			s.failTurn(span, err)
			return
		}
	}

	if s.isStale(generation) {
		return
	}

	s.enqueue(protocol.NewAudioComplete(chunkIndex))
	s.appendExchange(userText, response.String())

	go s.deriveIntent(userText, response.String())
}

// failTurn reports a mid-turn failure as a non-fatal error event; the
// conversation continues once the guard clears.
func (s *Session) failTurn(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Error("turn failed", "error", err)
	s.enqueue(protocol.NewError(err.Error()))
}

// deriveIntent runs off the synthesis critical path; failures are swallowed
// because catalog updates are optional.
func (s *Session) deriveIntent(userText, assistantText string) {
	if s.extractor == nil {
		return
	}

	searchIntent, err := s.extractor.Extract(s.baseCtx, userText, assistantText)
	if err != nil {
		s.logger.Debug("intent extraction failed", "error", err)
		return
	}
	if searchIntent == nil {
		return
	}

	var filters protocol.ProductFilters
	if err := copier.Copy(&filters, &searchIntent.Filters); err != nil {
		s.logger.Debug("failed to map intent filters", "error", err)
		return
	}

	if searchIntent.IsPagination {
		s.enqueue(protocol.NewProductsFetchMore(searchIntent.Query, filters, searchIntent.Count, searchIntent.Timestamp))
		return
	}
	s.enqueue(protocol.NewProductsSearch(searchIntent.Query, filters, searchIntent.Count, searchIntent.Timestamp))
}
