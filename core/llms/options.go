package llms

type PromptOptions struct {
	Instructions string
	History      []Message
}

type PromptOption func(*PromptOptions)

func WithInstructions(instructions string) PromptOption {
	return func(o *PromptOptions) {
		o.Instructions = instructions
	}
}

func WithHistory(history ...Message) PromptOption {
	return func(o *PromptOptions) {
		o.History = append(o.History, history...)
	}
}
