// Package protocol defines the JSON-framed messages exchanged between the
// voicecart server and its clients over a websocket connection.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/jennalabs/voicecart/internal/utils"
)

type Kind string

// Client to server.
const (
	KindAudioChunk Kind = "audio.chunk"
	KindInterrupt  Kind = "interrupt"
	KindPong       Kind = "pong"
)

// Server to client. KindAudioChunk travels in both directions: raw capture
// frames upstream, indexed WAV containers downstream.
const (
	KindConnectionEstablished Kind = "connection.established"
	KindPing                  Kind = "ping"
	KindUserTranscript        Kind = "transcript.user"
	KindTextChunk             Kind = "text.chunk"
	KindAudioComplete         Kind = "audio.complete"
	KindError                 Kind = "error"
	KindProductsSearch        Kind = "products.search"
	KindProductsFetchMore     Kind = "products.fetchMore"
)

// Envelope is the single frame shape for every message kind; unused fields
// are omitted on the wire. Audio payloads are base64-encoded by the JSON
// codec.
type Envelope struct {
	Type Kind `json:"type"`

	SessionID   string          `json:"sessionId,omitempty"`
	Audio       []byte          `json:"audio,omitempty"`
	ChunkIndex  *int            `json:"chunk_index,omitempty"`
	TotalChunks *int            `json:"total_chunks,omitempty"`
	Text        string          `json:"text,omitempty"`
	IsFinal     *bool           `json:"isFinal,omitempty"`
	Message     string          `json:"message,omitempty"`
	Query       string          `json:"query,omitempty"`
	Filters     *ProductFilters `json:"filters,omitempty"`
	Count       *int            `json:"count,omitempty"`
	Timestamp   int64           `json:"timestamp,omitempty"`
}

// ProductFilters narrows a catalog query. Zero values mean "no constraint".
type ProductFilters struct {
	Category string   `json:"category,omitempty"`
	MinPrice *float64 `json:"minPrice,omitempty"`
	MaxPrice *float64 `json:"maxPrice,omitempty"`
	Colors   []string `json:"colors,omitempty"`
	Gender   string   `json:"gender,omitempty"`
}

func NewConnectionEstablished(sessionID string) Envelope {
	return Envelope{Type: KindConnectionEstablished, SessionID: sessionID}
}

func NewPing() Envelope { return Envelope{Type: KindPing} }
func NewPong() Envelope { return Envelope{Type: KindPong} }

func NewInterrupt() Envelope { return Envelope{Type: KindInterrupt} }

func NewCaptureAudio(audio []byte) Envelope {
	return Envelope{Type: KindAudioChunk, Audio: audio}
}

func NewUserTranscript(text string, isFinal bool) Envelope {
	return Envelope{Type: KindUserTranscript, Text: text, IsFinal: utils.Ptr(isFinal)}
}

func NewTextChunk(text string) Envelope {
	return Envelope{Type: KindTextChunk, Text: text}
}

func NewAudioChunk(audio []byte, index int) Envelope {
	return Envelope{Type: KindAudioChunk, Audio: audio, ChunkIndex: utils.Ptr(index)}
}

func NewAudioComplete(totalChunks int) Envelope {
	return Envelope{Type: KindAudioComplete, TotalChunks: utils.Ptr(totalChunks)}
}

func NewError(message string) Envelope {
	return Envelope{Type: KindError, Message: message}
}

func NewProductsSearch(query string, filters ProductFilters, count int, timestamp int64) Envelope {
	return Envelope{
		Type:      KindProductsSearch,
		Query:     query,
		Filters:   &filters,
		Count:     utils.Ptr(count),
		Timestamp: timestamp,
	}
}

func NewProductsFetchMore(query string, filters ProductFilters, count int, timestamp int64) Envelope {
	return Envelope{
		Type:      KindProductsFetchMore,
		Query:     query,
		Filters:   &filters,
		Count:     utils.Ptr(count),
		Timestamp: timestamp,
	}
}

// Decode parses one frame and validates the fields its kind requires.
// Errors are meant to be logged and the frame dropped.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal frame: %w", err)
	}

	switch env.Type {
	case KindAudioChunk:
		if len(env.Audio) == 0 {
			return Envelope{}, fmt.Errorf("audio.chunk frame without audio payload")
		}
	case KindInterrupt, KindPong, KindPing:
	case KindConnectionEstablished:
		if env.SessionID == "" {
			return Envelope{}, fmt.Errorf("connection.established frame without session id")
		}
	case KindUserTranscript:
		if env.IsFinal == nil {
			return Envelope{}, fmt.Errorf("transcript.user frame without isFinal")
		}
	case KindTextChunk, KindError:
	case KindAudioComplete:
		if env.TotalChunks == nil {
			return Envelope{}, fmt.Errorf("audio.complete frame without total_chunks")
		}
	case KindProductsSearch, KindProductsFetchMore:
		if env.Count == nil {
			return Envelope{}, fmt.Errorf("%s frame without count", env.Type)
		}
	default:
		return Envelope{}, fmt.Errorf("unknown frame type: %q", env.Type)
	}

	return env, nil
}

func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s frame: %w", e.Type, err)
	}
	return data, nil
}
