// Command voicecart runs the voice shopping assistant server: a websocket
// endpoint that transcribes the caller, streams an assistant reply as text
// and synthesized audio, and emits catalog intent events.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	orchestration "github.com/jennalabs/voicecart/core"
	"github.com/jennalabs/voicecart/core/intent"
	"github.com/jennalabs/voicecart/core/llms/groq"
	"github.com/jennalabs/voicecart/core/speechtotext"
	deepgramstt "github.com/jennalabs/voicecart/core/speechtotext/deepgram"
	deepgramtts "github.com/jennalabs/voicecart/core/texttospeech/deepgram"
)

const shutdownTimeout = 10 * time.Second

// intentModel is a smaller, faster model; extraction runs off the turn's
// critical path and does not need the conversational model.
const intentModel = "llama-3.1-8b-instant"

func main() {
	logger := newLogger()
	slog.SetDefault(logger)

	addr := os.Getenv("VOICECART_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	llm, err := groq.NewClient()
	if err != nil {
		logger.Error("failed to create language model client", "error", err)
		os.Exit(1)
	}
	intentClient, err := groq.NewClient(groq.WithModel(intentModel))
	if err != nil {
		logger.Error("failed to create intent model client", "error", err)
		os.Exit(1)
	}
	synthesizer, err := deepgramtts.NewSynthesisClient()
	if err != nil {
		logger.Error("failed to create speech synthesis client", "error", err)
		os.Exit(1)
	}

	orchestrator, err := orchestration.NewOrchestrator(
		orchestration.WithLLM(llm),
		orchestration.WithSynthesizer(synthesizer),
		orchestration.WithTranscriberFactory(func() speechtotext.Transcriber {
			return deepgramstt.NewTranscriptionClient()
		}),
		orchestration.WithIntentExtractor(intent.NewExtractor(intentClient)),
		orchestration.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", orchestrator.HandleWebsocket)
	server := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errs <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", "error", err)
	}
	orchestrator.Close()
}

func newLogger() *slog.Logger {
	var handler slog.Handler
	if os.Getenv("VOICECART_LOG_JSON") == "true" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	return slog.New(handler)
}
