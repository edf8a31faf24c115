// Package groq implements the generation capability against the Groq
// chat-completions API, with SSE streaming and schema-constrained output.
package groq

import (
	"fmt"
	"os"
)

const (
	url = "https://api.groq.com/openai/v1/chat/completions"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"

	DefaultModel = "llama-3.3-70b-versatile"
)

type Client struct {
	apiKey string
	model  string
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// NewClient builds a client from GROQ_API_KEY.
func NewClient(opts ...ClientOption) (*Client, error) {
	apiKey, ok := os.LookupEnv("GROQ_API_KEY")
	if !ok {
		return nil, fmt.Errorf("groq api key not found")
	}

	client := &Client{apiKey: apiKey, model: DefaultModel}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}
