// Package intent derives structured catalog queries from conversation turns
// and tracks the display window over fetched results.
package intent

import (
	"context"
	"fmt"
	"time"

	"github.com/jennalabs/voicecart/core/llms"
	"github.com/jennalabs/voicecart/core/llms/groq"
)

// SearchFilters narrows a catalog query. Empty fields mean no constraint.
type SearchFilters struct {
	Category string   `json:"category,omitempty" jsonschema:"description=Product category such as shoes or jackets"`
	MinPrice *float64 `json:"minPrice,omitempty" jsonschema:"description=Lower price bound in dollars"`
	MaxPrice *float64 `json:"maxPrice,omitempty" jsonschema:"description=Upper price bound in dollars"`
	Colors   []string `json:"colors,omitempty" jsonschema:"description=Colors the user asked for"`
	Gender   string   `json:"gender,omitempty" jsonschema:"description=Target gender if stated,enum=,enum=men,enum=women,enum=unisex"`
}

// SearchIntent is one derived catalog query. Timestamp is a freshness token
// assigned after extraction so consumers treat every intent as new even when
// the query text repeats.
type SearchIntent struct {
	Query        string        `json:"query" jsonschema:"description=Short product search query"`
	Filters      SearchFilters `json:"filters"`
	Count        int           `json:"count" jsonschema:"description=How many products the user wants to see"`
	IsPagination bool          `json:"isPagination" jsonschema:"description=True when the user asks to see more of the current results instead of a new search"`

	Timestamp int64 `json:"-"`
}

const defaultCount = 5

const extractionInstructions = `You derive shopping search intents from a voice conversation.
Given the user's words and the assistant's reply, extract the product search
the assistant is acting on. Set isPagination to true only when the user asks
to see more of what is already shown. Leave query empty when the exchange has
no shopping intent at all. Keep the query short and concrete, like
"red sneakers" or "waterproof jacket".`

// Extractor turns finished turns into search intents with a schema-bound
// model call.
type Extractor struct {
	client *groq.Client
	now    func() time.Time
}

func NewExtractor(client *groq.Client) *Extractor {
	return &Extractor{client: client, now: time.Now}
}

// Extract derives the intent for one turn. A nil intent with nil error means
// the turn carried no shopping intent.
func (e *Extractor) Extract(ctx context.Context, userText, assistantText string) (*SearchIntent, error) {
	prompt := fmt.Sprintf("User said: %q\nAssistant replied: %q", userText, assistantText)

	extracted, err := groq.PromptJSONSchema(ctx, e.client, prompt, SearchIntent{},
		llms.WithInstructions(extractionInstructions),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to extract search intent: %w", err)
	}

	if extracted.Query == "" {
		return nil, nil
	}
	if extracted.Count <= 0 {
		extracted.Count = defaultCount
	}
	extracted.Timestamp = e.now().UnixMilli()

	return extracted, nil
}
