package orchestration

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jennalabs/voicecart/core/protocol"
	"github.com/jennalabs/voicecart/core/speechtotext"
)

const (
	sendQueueSize = 64
	maxFrameBytes = 1 << 20

	// keepAliveInterval paces application-level pings; readTimeout is how
	// long a silent client (no frames, no pongs) survives.
	keepAliveInterval = 30 * time.Second
	readTimeout       = 90 * time.Second
	writeTimeout      = 5 * time.Second
)

// HandleWebsocket upgrades one connection and runs its session until the
// client goes away or initialization fails.
func (o *Orchestrator) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.logger.Warn("failed to upgrade connection", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	session := newSession(r.Context(), uuid.NewString(), o)
	o.register(session)
	defer o.unregister(session)
	defer session.close()

	go session.writeLoop(conn)

	transcriber := o.newTranscriber()
	if err := session.init(session.baseCtx, transcriber,
		speechtotext.WithEncodingInfo(o.encodingInfo),
	); err != nil {
		err = fmt.Errorf("failed to initialize transcription link: %w", err)
		session.logger.Error("session initialization failed", "error", err)
		session.enqueue(protocol.NewError(err.Error()))
		// Give the write loop a beat to flush the error before the close.
		time.Sleep(100 * time.Millisecond)
		return
	}

	session.enqueue(protocol.NewConnectionEstablished(session.ID))
	session.logger.Info("session established", "remote", r.RemoteAddr)

	session.readLoop(conn)
	session.logger.Info("session closed")
}

// readLoop dispatches inbound frames. Malformed frames are logged and
// dropped; any read error ends the session.
func (s *Session) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("connection read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		env, err := protocol.Decode(data)
		if err != nil {
			s.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		switch env.Type {
		case protocol.KindAudioChunk:
			s.sendAudioFrame(env.Audio)
		case protocol.KindInterrupt:
			s.interrupt()
		case protocol.KindPong:
			// Read deadline already refreshed above.
		default:
			s.logger.Warn("dropping unexpected frame", "type", env.Type)
		}
	}
}

// writeLoop owns all writes on the connection: queued frames plus the
// keepalive ping cadence.
func (s *Session) writeLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	write := func(env protocol.Envelope) bool {
		data, err := env.Encode()
		if err != nil {
			s.logger.Warn("dropping unencodable frame", "type", env.Type, "error", err)
			return true
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Warn("connection write failed", "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-s.done:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case env := <-s.send:
			if !write(env) {
				return
			}
		case <-ticker.C:
			if !write(protocol.NewPing()) {
				return
			}
		}
	}
}
