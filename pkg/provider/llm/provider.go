// Package llm defines the language model contract. The turn controller sends
// a system prompt, the conversation history, and the new transcript; the
// provider returns one complete response. Generation must be cancellable via
// context so barge-in can abandon a turn mid-flight.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in the conversation sent to the model.
type Message struct {
	// Role is one of RoleSystem, RoleUser, or RoleAssistant.
	Role string

	// Content is the text of the message.
	Content string
}

// Sampling carries generation parameters. Zero values mean "provider
// default". Not every backend honors every knob; providers apply what their
// API exposes and ignore the rest.
type Sampling struct {
	// Temperature controls randomness (0 disables the override).
	Temperature float64

	// TopP is the nucleus sampling cutoff.
	TopP float64

	// RepeatPenalty discourages verbatim repetition, llama.cpp style
	// (1.0 = no penalty). OpenAI-compatible backends map it onto their
	// frequency penalty.
	RepeatPenalty float64

	// MaxTokens hard-caps the generated length. A response truncated at the
	// cap carries FinishLength and is not an error.
	MaxTokens int
}

// Request is one completion call.
type Request struct {
	// SystemPrompt is prepended as the system message when non-empty.
	SystemPrompt string

	// Messages is the conversation so far, oldest first, ending with the
	// user's new utterance.
	Messages []Message

	// Sampling holds the generation parameters.
	Sampling Sampling
}

// Finish reasons surfaced on responses. Providers normalize their backend's
// vocabulary onto these.
const (
	// FinishStop means the model completed naturally.
	FinishStop = "stop"

	// FinishLength means generation hit the MaxTokens cap. The truncated
	// text is still a valid response.
	FinishLength = "length"
)

// Usage reports token accounting when the backend provides it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the result of one completion call.
type Response struct {
	// Text is the generated response, whitespace-trimmed.
	Text string

	// FinishReason is FinishStop, FinishLength, or a backend-specific value.
	FinishReason string

	// Usage holds token counts. Zero when the backend does not report them.
	Usage Usage
}

// Provider generates responses. Implementations must honor context
// cancellation and deadlines.
type Provider interface {
	// Complete runs one generation.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name identifies the provider implementation (e.g. "anyllm").
	Name() string
}
