package orchestration

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jennalabs/voicecart/core/protocol"
	"github.com/jennalabs/voicecart/core/speechtotext"
)

func dialTestServer(t *testing.T, o *Orchestrator) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(o.HandleWebsocket))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial test server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	env, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	return env
}

func TestWebsocketSessionLifecycle(t *testing.T) {
	transcriber := &fakeTranscriber{}
	llm := &fakeLLM{stream: &fakeStream{chunks: []string{"Great choice! ", "Enjoy"}}}

	o, err := NewOrchestrator(
		WithLLM(llm),
		WithSynthesizer(&fakeSynthesizer{}),
		WithTranscriberFactory(func() speechtotext.Transcriber { return transcriber }),
	)
	if err != nil {
		t.Fatalf("unexpected orchestrator error: %v", err)
	}

	conn := dialTestServer(t, o)

	env := readEnvelope(t, conn)
	if env.Type != protocol.KindConnectionEstablished || env.SessionID == "" {
		t.Fatalf("expected connection.established with a session id, got %+v", env)
	}

	// Malformed frames are dropped without ending the session.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}

	data, err := protocol.NewCaptureAudio([]byte{9, 9}).Encode()
	if err != nil {
		t.Fatalf("failed to encode audio frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}

	waitFor(t, func() bool {
		transcriber.mu.Lock()
		defer transcriber.mu.Unlock()
		return len(transcriber.frames) == 1
	}, "audio frame forwarded to the transcription link")

	// A finalized utterance drives one full turn to the client.
	transcriber.mu.Lock()
	onFinal := transcriber.options.TranscriptionCallback
	transcriber.mu.Unlock()
	if onFinal == nil {
		t.Fatalf("expected a finalized-transcript callback to be wired")
	}
	onFinal("find red sneakers")

	var kinds []protocol.Kind
	for {
		env := readEnvelope(t, conn)
		if env.Type == protocol.KindPing {
			continue
		}
		kinds = append(kinds, env.Type)
		if env.Type == protocol.KindAudioComplete {
			break
		}
	}

	if kinds[0] != protocol.KindUserTranscript {
		t.Fatalf("expected finalized transcript first, got %v", kinds)
	}
	sawAudio := false
	for _, kind := range kinds {
		if kind == protocol.KindAudioChunk {
			sawAudio = true
		}
	}
	if !sawAudio {
		t.Fatalf("expected at least one audio chunk, got %v", kinds)
	}
}

func TestSessionTeardownReleasesTranscriptionLink(t *testing.T) {
	transcriber := &fakeTranscriber{}
	o, err := NewOrchestrator(
		WithLLM(&fakeLLM{stream: &fakeStream{}}),
		WithSynthesizer(&fakeSynthesizer{}),
		WithTranscriberFactory(func() speechtotext.Transcriber { return transcriber }),
	)
	if err != nil {
		t.Fatalf("unexpected orchestrator error: %v", err)
	}

	conn := dialTestServer(t, o)
	readEnvelope(t, conn) // connection.established
	if o.SessionCount() != 1 {
		t.Fatalf("expected one registered session, got %d", o.SessionCount())
	}

	conn.Close()

	waitFor(t, func() bool {
		transcriber.mu.Lock()
		defer transcriber.mu.Unlock()
		return transcriber.closed
	}, "transcription link released on close")
	waitFor(t, func() bool { return o.SessionCount() == 0 }, "session unregistered on close")
}

func waitFor(t *testing.T, condition func() bool, what string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
