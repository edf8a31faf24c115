package protocol

import (
	"strings"
	"testing"
)

func TestDecodeDispatchesOnType(t *testing.T) {
	env, err := Decode([]byte(`{"type":"transcript.user","text":"red shoes","isFinal":false}`))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if env.Type != KindUserTranscript {
		t.Fatalf("expected transcript.user, got %s", env.Type)
	}
	if env.Text != "red shoes" {
		t.Fatalf("expected text to survive decoding, got %q", env.Text)
	}
	if env.IsFinal == nil || *env.IsFinal {
		t.Fatalf("expected isFinal false to be preserved")
	}
}

func TestDecodeRejectsUnknownTypes(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"products.refresh"}`)); err == nil {
		t.Fatalf("expected error for unknown frame type")
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	if _, err := Decode([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected error for malformed frame")
	}
}

func TestDecodeRejectsAudioChunkWithoutPayload(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"audio.chunk"}`)); err == nil {
		t.Fatalf("expected error for audio.chunk without audio")
	}
}

func TestAudioChunkKeepsIndexZeroOnTheWire(t *testing.T) {
	data, err := NewAudioChunk([]byte{1, 2}, 0).Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	if !strings.Contains(string(data), `"chunk_index":0`) {
		t.Fatalf("expected chunk_index 0 to be serialized, got %s", data)
	}

	env, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if env.ChunkIndex == nil || *env.ChunkIndex != 0 {
		t.Fatalf("expected chunk index 0 after round trip")
	}
}

func TestProductsSearchCarriesFiltersAndFreshness(t *testing.T) {
	min := 20.0
	env := NewProductsSearch("sneakers", ProductFilters{Category: "shoes", MinPrice: &min, Colors: []string{"red"}}, 5, 1725000000000)

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if decoded.Filters == nil || decoded.Filters.Category != "shoes" {
		t.Fatalf("expected category filter to survive round trip")
	}
	if decoded.Count == nil || *decoded.Count != 5 {
		t.Fatalf("expected count 5 to survive round trip")
	}
	if decoded.Timestamp != 1725000000000 {
		t.Fatalf("expected timestamp to survive round trip, got %d", decoded.Timestamp)
	}
}
