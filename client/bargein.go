package client

import (
	"log/slog"
	"sync"
)

// AudioPlayer is the playback surface barge-in needs.
type AudioPlayer interface {
	IsPlaying() bool
	Stop()
}

// BargeInController watches partial transcripts while assistant audio is
// playing. The first sign of user speech stops playback and signals the
// server once; further partials from the same speech event are debounced
// until the assistant speaks again.
type BargeInController struct {
	player        AudioPlayer
	sendInterrupt func() error
	logger        *slog.Logger

	mu          sync.Mutex
	interrupted bool
}

func NewBargeInController(player AudioPlayer, sendInterrupt func() error, logger *slog.Logger) *BargeInController {
	if logger == nil {
		logger = slog.Default()
	}
	return &BargeInController{
		player:        player,
		sendInterrupt: sendInterrupt,
		logger:        logger,
	}
}

// HandlePartialTranscript reports whether this partial triggered an
// interruption.
func (c *BargeInController) HandlePartialTranscript() bool {
	c.mu.Lock()
	if c.interrupted || !c.player.IsPlaying() {
		c.mu.Unlock()
		return false
	}
	c.interrupted = true
	c.mu.Unlock()

	c.player.Stop()
	if err := c.sendInterrupt(); err != nil {
		c.logger.Warn("failed to send interrupt", "error", err)
	}
	return true
}

// HandleAssistantText re-arms the controller; the next user speech is a new
// interruption event.
func (c *BargeInController) HandleAssistantText() {
	c.mu.Lock()
	c.interrupted = false
	c.mu.Unlock()
}
