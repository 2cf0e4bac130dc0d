package turn

import (
	"github.com/MrWong99/hark/pkg/memory"
	"github.com/MrWong99/hark/pkg/provider/llm"
)

// DefaultSystemPrompt keeps answers short enough to speak.
const DefaultSystemPrompt = "You are a helpful voice assistant. Answer in one or two short " +
	"sentences suitable for being read aloud. Do not use markup or lists."

// buildRequest renders the conversation history and the new transcript as an
// ordered message sequence. Each exchange becomes a user/assistant pair,
// oldest first, so the model sees the dialogue exactly as it happened.
func buildRequest(systemPrompt string, history []memory.Exchange, transcript string, sampling llm.Sampling) llm.Request {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	messages := make([]llm.Message, 0, len(history)*2+1)
	for _, ex := range history {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: ex.UserText},
			llm.Message{Role: llm.RoleAssistant, Content: ex.AssistantText},
		)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: transcript})

	return llm.Request{
		SystemPrompt: systemPrompt,
		Messages:     messages,
		Sampling:     sampling,
	}
}
