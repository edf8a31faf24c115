package llms

import "context"

// StreamChunk is one unit of a streamed model response. Concrete chunk types
// live with the client that produced them.
type StreamChunk interface {
	FinishReason() *string
}

// Stream is an in-flight streamed completion. Chunks returns a push iterator
// usable with range-over-func; iteration ends on the terminal chunk or the
// first error.
type Stream interface {
	Chunks(ctx context.Context) func(yield func(StreamChunk, error) bool)
}

// ContentChunk is a stream chunk carrying response text.
type ContentChunk interface {
	StreamChunk
	Content() string
}

// Usage reports token accounting for one completed request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	QueueTime      float64
	PromptTime     float64
	CompletionTime float64
	TotalTime      float64
}
