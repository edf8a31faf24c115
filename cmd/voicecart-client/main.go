// Command voicecart-client is a terminal client for the voice shopping
// assistant: it streams the microphone to the server and plays the
// assistant's reply as it arrives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jennalabs/voicecart/client"
	"github.com/jennalabs/voicecart/core/audio/miniaudio"
	"github.com/jennalabs/voicecart/core/audio/portaudio"
	"github.com/jennalabs/voicecart/core/intent"
	"github.com/jennalabs/voicecart/core/protocol"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	url := os.Getenv("VOICECART_URL")
	if url == "" {
		url = "ws://localhost:8080/ws"
	}

	device, err := portaudio.NewDevice()
	if err != nil {
		logger.Error("failed to open output device", "error", err)
		os.Exit(1)
	}
	defer device.Close()

	capture, err := miniaudio.NewCaptureClient()
	if err != nil {
		logger.Error("failed to open capture device", "error", err)
		os.Exit(1)
	}
	defer capture.Close()

	terminal := make(chan error, 1)
	var c *client.Client
	c = client.NewClient(url, device,
		client.WithClientLogger(logger),
		client.WithCallbacks(client.Callbacks{
			OnSessionEstablished: func(sessionID string) {
				logger.Info("session established", "sessionId", sessionID)
				// Frame sends fail harmlessly while the link is down; capture
				// keeps running across reconnects.
				if err := capture.Start(func(pcm []byte) {
					_ = c.SendAudioFrame(pcm)
				}); err != nil {
					logger.Error("failed to start microphone capture", "error", err)
				}
			},
			OnUserTranscript: func(text string, isFinal bool) {
				if isFinal {
					fmt.Printf("you: %s\n", text)
				}
			},
			OnAssistantText: func(text string) {
				fmt.Print(text)
			},
			OnAudioComplete: func(int) {
				fmt.Println()
			},
			OnProducts: func(query string, _ protocol.ProductFilters, window intent.DisplayWindow) {
				fmt.Printf("[showing %d results from #%d for %q]\n", window.Count, window.StartIndex+1, query)
			},
			OnError: func(message string) {
				logger.Warn("server error", "message", message)
			},
			OnTerminalDisconnect: func(err error) {
				terminal <- err
			},
		}))
	c.Connect()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("disconnecting")
	case err := <-terminal:
		logger.Error("connection lost", "error", err)
	}

	_ = capture.Stop()
	c.Disconnect()
}
