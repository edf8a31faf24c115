// Package client implements the receiving half of a voicecart session:
// gapless audio playback, barge-in, and connection resilience.
package client

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jennalabs/voicecart/core/audio"
)

type pendingChunk struct {
	info audio.EncodingInfo
	pcm  []byte
}

// Player schedules per-turn audio chunks back to back on the output clock
// so a turn plays as one continuous utterance regardless of network arrival
// order. Buffers are held until their index is next to play; once scheduled,
// the next start time advances by the buffer's duration.
type Player struct {
	device audio.OutputDevice
	clock  Clock
	logger *slog.Logger

	mu              sync.Mutex
	pending         map[int]pendingChunk
	active          map[int]audio.ActiveSource
	nextIndexToPlay int
	nextStartTime   time.Time
	playing         bool
	// generation invalidates decode results and completion callbacks that
	// were in flight when a stop or reset happened.
	generation int
}

type PlayerOption func(*Player)

func WithClock(clock Clock) PlayerOption {
	return func(p *Player) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func WithPlayerLogger(logger *slog.Logger) PlayerOption {
	return func(p *Player) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPlayer(device audio.OutputDevice, opts ...PlayerOption) *Player {
	p := &Player{
		device:  device,
		clock:   systemClock{},
		logger:  slog.Default(),
		pending: map[int]pendingChunk{},
		active:  map[int]audio.ActiveSource{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.nextStartTime = p.clock.Now()
	return p
}

// Submit decodes one chunk and drains every contiguously playable buffer.
// Index 0 arriving while earlier state is not fully drained means a new
// turn has started; leftover state is discarded first.
func (p *Player) Submit(payload []byte, index int) error {
	p.mu.Lock()
	generation := p.generation
	p.mu.Unlock()

	info, pcm, err := audio.DecodeWAV(payload)
	if err != nil {
		return fmt.Errorf("failed to decode audio chunk: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generation != generation {
		// Stopped or reset while decoding; this chunk belongs to a dead turn.
		return nil
	}

	if index == 0 && p.nextIndexToPlay > 0 {
		p.resetLocked()
	}
	if index < p.nextIndexToPlay {
		return nil
	}

	p.pending[index] = pendingChunk{info: info, pcm: pcm}
	p.drainLocked()
	return nil
}

// drainLocked schedules buffers while the next index to play is pending.
func (p *Player) drainLocked() {
	for {
		chunk, ok := p.pending[p.nextIndexToPlay]
		if !ok {
			return
		}
		delete(p.pending, p.nextIndexToPlay)

		start := p.nextStartTime
		if now := p.clock.Now(); now.After(start) {
			start = now
		}

		index := p.nextIndexToPlay
		generation := p.generation
		source, err := p.device.Schedule(chunk.pcm, chunk.info, start, func() {
			p.onSourceEnded(index, generation)
		})
		if err != nil {
			p.logger.Warn("failed to schedule audio chunk", "index", index, "error", err)
			return
		}

		p.active[index] = source
		p.playing = true
		p.nextStartTime = start.Add(chunk.info.Duration(chunk.pcm))
		p.nextIndexToPlay++
	}
}

func (p *Player) onSourceEnded(index, generation int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generation != generation {
		return
	}
	delete(p.active, index)
	if len(p.active) == 0 {
		p.playing = false
	}
}

// Stop halts every active source, discards pending buffers, and resets
// timing to now. Idempotent and safe with nothing playing.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

func (p *Player) resetLocked() {
	for _, source := range p.active {
		source.Stop()
	}
	p.active = map[int]audio.ActiveSource{}
	p.pending = map[int]pendingChunk{}
	p.nextIndexToPlay = 0
	p.nextStartTime = p.clock.Now()
	p.playing = false
	p.generation++
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
