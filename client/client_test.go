package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jennalabs/voicecart/core/intent"
	"github.com/jennalabs/voicecart/core/protocol"
)

func waitForCondition(t *testing.T, timeout time.Duration, check func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", message)
}

// startProtocolServer runs a websocket endpoint that hands each accepted
// connection to the test body.
func startProtocolServer(t *testing.T, handle func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade test connection: %v", err)
			return
		}
		handle(conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, env protocol.Envelope) {
	t.Helper()

	data, err := env.Encode()
	if err != nil {
		t.Errorf("failed to encode test frame: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Errorf("failed to write test frame: %v", err)
	}
}

func TestClientAnswersServerPings(t *testing.T) {
	received := make(chan protocol.Envelope, 8)
	server := startProtocolServer(t, func(conn *websocket.Conn) {
		sendEnvelope(t, conn, protocol.NewConnectionEstablished("session-1"))
		sendEnvelope(t, conn, protocol.NewPing())
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(data)
			if err != nil {
				continue
			}
			received <- env
		}
	})

	sessionID := make(chan string, 1)
	c := NewClient(strings.Replace(server.URL, "http", "ws", 1), &fakeDevice{},
		WithCallbacks(Callbacks{
			OnSessionEstablished: func(id string) { sessionID <- id },
		}))
	c.Connect()
	defer c.Disconnect()

	select {
	case id := <-sessionID:
		if id != "session-1" {
			t.Fatalf("expected session id %q, got %q", "session-1", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the session handshake")
	}

	select {
	case env := <-received:
		if env.Type != protocol.KindPong {
			t.Fatalf("expected a pong answer, got %s", env.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the pong answer")
	}
}

func TestClientRoutesTurnEventsAndDisplayWindow(t *testing.T) {
	serve := make(chan *websocket.Conn, 1)
	server := startProtocolServer(t, func(conn *websocket.Conn) {
		serve <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	device := &fakeDevice{}
	var transcripts, texts []string
	transcriptSeen := make(chan struct{}, 8)
	textSeen := make(chan struct{}, 8)
	completes := make(chan int, 1)
	products := make(chan intent.DisplayWindow, 4)

	c := NewClient(strings.Replace(server.URL, "http", "ws", 1), device,
		WithCallbacks(Callbacks{
			OnUserTranscript: func(text string, isFinal bool) {
				transcripts = append(transcripts, text)
				transcriptSeen <- struct{}{}
			},
			OnAssistantText: func(text string) {
				texts = append(texts, text)
				textSeen <- struct{}{}
			},
			OnAudioComplete: func(totalChunks int) { completes <- totalChunks },
			OnProducts: func(_ string, _ protocol.ProductFilters, window intent.DisplayWindow) {
				products <- window
			},
		}))
	c.Connect()
	defer c.Disconnect()

	conn := <-serve
	sendEnvelope(t, conn, protocol.NewConnectionEstablished("session-1"))
	sendEnvelope(t, conn, protocol.NewUserTranscript("show me red sneakers", true))
	sendEnvelope(t, conn, protocol.NewTextChunk("Here are some red sneakers."))
	sendEnvelope(t, conn, protocol.NewAudioChunk(wavChunk(t, 1600), 0))
	sendEnvelope(t, conn, protocol.NewAudioComplete(1))
	sendEnvelope(t, conn, protocol.NewProductsSearch("red sneakers", protocol.ProductFilters{}, 8, 1))
	sendEnvelope(t, conn, protocol.NewProductsFetchMore("red sneakers", protocol.ProductFilters{}, 8, 2))

	<-transcriptSeen
	<-textSeen

	if total := <-completes; total != 1 {
		t.Fatalf("expected 1 total chunk, got %d", total)
	}
	if transcripts[0] != "show me red sneakers" {
		t.Fatalf("unexpected transcript: %q", transcripts[0])
	}
	if texts[0] != "Here are some red sneakers." {
		t.Fatalf("unexpected assistant text: %q", texts[0])
	}

	window := <-products
	if window.StartIndex != 0 || window.Count != 8 {
		t.Fatalf("expected window at 0/8 after search, got %d/%d", window.StartIndex, window.Count)
	}
	window = <-products
	if window.StartIndex != 8 || window.Count != 8 {
		t.Fatalf("expected window at 8/8 after fetch more, got %d/%d", window.StartIndex, window.Count)
	}

	waitForCondition(t, time.Second, func() bool {
		return len(device.schedules()) == 1
	}, "the audio chunk to reach the output device")
}

func TestPartialTranscriptDuringPlaybackSendsInterrupt(t *testing.T) {
	received := make(chan protocol.Envelope, 8)
	serve := make(chan *websocket.Conn, 1)
	server := startProtocolServer(t, func(conn *websocket.Conn) {
		serve <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(data)
			if err != nil {
				continue
			}
			received <- env
		}
	})

	device := &fakeDevice{}
	c := NewClient(strings.Replace(server.URL, "http", "ws", 1), device)
	c.Connect()
	defer c.Disconnect()

	conn := <-serve
	sendEnvelope(t, conn, protocol.NewAudioChunk(wavChunk(t, 16000), 0))

	waitForCondition(t, time.Second, func() bool { return c.player.IsPlaying() },
		"playback to start")

	sendEnvelope(t, conn, protocol.NewUserTranscript("wait", false))

	select {
	case env := <-received:
		if env.Type != protocol.KindInterrupt {
			t.Fatalf("expected an interrupt frame, got %s", env.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the interrupt frame")
	}

	if c.player.IsPlaying() {
		t.Fatalf("expected playback stopped by barge-in")
	}

	// Further partials from the same speech are debounced.
	sendEnvelope(t, conn, protocol.NewUserTranscript("wait a second", false))
	select {
	case env := <-received:
		t.Fatalf("expected no further frames, got %s", env.Type)
	case <-time.After(100 * time.Millisecond):
	}
}
