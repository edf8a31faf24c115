package client

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jennalabs/voicecart/core/audio"
	"github.com/jennalabs/voicecart/core/intent"
	"github.com/jennalabs/voicecart/core/protocol"
)

const clientWriteTimeout = 5 * time.Second

// Callbacks surface server events to the embedding application. Nil fields
// are skipped.
type Callbacks struct {
	OnSessionEstablished func(sessionID string)
	OnUserTranscript     func(text string, isFinal bool)
	OnAssistantText      func(text string)
	OnAudioComplete      func(totalChunks int)
	OnProducts           func(query string, filters protocol.ProductFilters, window intent.DisplayWindow)
	OnError              func(message string)
	OnTerminalDisconnect func(err error)
}

// Client maintains one voicecart session end to end: the websocket link with
// automatic redial, gapless playback of assistant audio, barge-in on user
// speech, and the product display window driven by server intent events.
type Client struct {
	url       string
	logger    *slog.Logger
	callbacks Callbacks

	player      *Player
	bargeIn     *BargeInController
	reconnector *Reconnector

	connMu sync.Mutex
	conn   *websocket.Conn

	windowMu sync.Mutex
	window   intent.DisplayWindow
}

type ClientOption func(*Client)

func WithCallbacks(callbacks Callbacks) ClientOption {
	return func(c *Client) {
		c.callbacks = callbacks
	}
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(url string, device audio.OutputDevice, opts ...ClientOption) *Client {
	c := &Client{
		url:    url,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.player = NewPlayer(device, WithPlayerLogger(c.logger))
	c.bargeIn = NewBargeInController(c.player, c.sendInterrupt, c.logger)
	c.reconnector = NewReconnector(c.dial, c.handleTerminal, WithReconnectorLogger(c.logger))
	return c
}

// Connect dials the server and keeps redialing on failure until the retry
// budget is exhausted.
func (c *Client) Connect() {
	c.reconnector.Connect()
}

// Disconnect closes the link without triggering redials and silences any
// audio still playing.
func (c *Client) Disconnect() {
	c.reconnector.Disconnect()
	c.player.Stop()

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(clientWriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
}

// SendAudioFrame forwards one raw capture frame upstream.
func (c *Client) SendAudioFrame(pcm []byte) error {
	return c.send(protocol.NewCaptureAudio(pcm))
}

// Interrupt stops local playback and tells the server to abandon the turn.
func (c *Client) Interrupt() error {
	c.player.Stop()
	return c.sendInterrupt()
}

// Window reports the product range currently on display.
func (c *Client) Window() intent.DisplayWindow {
	c.windowMu.Lock()
	defer c.windowMu.Unlock()
	return c.window
}

func (c *Client) State() ConnState { return c.reconnector.State() }

func (c *Client) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()
		c.reconnector.HandleClosed()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("connection dropped", "error", err)
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	switch env.Type {
	case protocol.KindConnectionEstablished:
		if c.callbacks.OnSessionEstablished != nil {
			c.callbacks.OnSessionEstablished(env.SessionID)
		}
	case protocol.KindPing:
		if err := c.send(protocol.NewPong()); err != nil {
			c.logger.Warn("failed to answer ping", "error", err)
		}
	case protocol.KindUserTranscript:
		if !*env.IsFinal {
			c.bargeIn.HandlePartialTranscript()
		}
		if c.callbacks.OnUserTranscript != nil {
			c.callbacks.OnUserTranscript(env.Text, *env.IsFinal)
		}
	case protocol.KindTextChunk:
		c.bargeIn.HandleAssistantText()
		if c.callbacks.OnAssistantText != nil {
			c.callbacks.OnAssistantText(env.Text)
		}
	case protocol.KindAudioChunk:
		if env.ChunkIndex == nil {
			c.logger.Warn("dropping audio chunk without index")
			return
		}
		if err := c.player.Submit(env.Audio, *env.ChunkIndex); err != nil {
			c.logger.Warn("failed to queue audio chunk", "index", *env.ChunkIndex, "error", err)
		}
	case protocol.KindAudioComplete:
		if c.callbacks.OnAudioComplete != nil {
			c.callbacks.OnAudioComplete(*env.TotalChunks)
		}
	case protocol.KindError:
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(env.Message)
		}
	case protocol.KindProductsSearch, protocol.KindProductsFetchMore:
		c.applyProducts(env)
	}
}

// applyProducts moves the display window: a search rewinds it, a fetch-more
// pages past the items already shown.
func (c *Client) applyProducts(env protocol.Envelope) {
	c.windowMu.Lock()
	if env.Type == protocol.KindProductsSearch {
		c.window.Reset(*env.Count)
	} else {
		c.window.Advance(*env.Count)
	}
	window := c.window
	c.windowMu.Unlock()

	if c.callbacks.OnProducts != nil {
		filters := protocol.ProductFilters{}
		if env.Filters != nil {
			filters = *env.Filters
		}
		c.callbacks.OnProducts(env.Query, filters, window)
	}
}

func (c *Client) sendInterrupt() error {
	return c.send(protocol.NewInterrupt())
}

func (c *Client) send(env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("connection is not open")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", env.Type, err)
	}
	return nil
}

func (c *Client) handleTerminal(err error) {
	c.player.Stop()
	if c.callbacks.OnTerminalDisconnect != nil {
		c.callbacks.OnTerminalDisconnect(err)
	}
}
