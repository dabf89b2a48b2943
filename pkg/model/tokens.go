package model

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenEncoder *tiktoken.Tiktoken
	encoderOnce  sync.Once
	encoderErr   error
)

// initTokenEncoder initializes the tiktoken encoder (lazy initialization)
func initTokenEncoder() error {
	encoderOnce.Do(func() {
		// cl100k_base is a reasonable approximation for local models; exact
		// counts come from the endpoint's usage block when it reports one.
		tokenEncoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoderErr
}

// CountTokens counts the number of tokens in a text using tiktoken
func CountTokens(text string) int {
	if err := initTokenEncoder(); err != nil {
		return estimateTokens(text)
	}
	return len(tokenEncoder.Encode(text, nil, nil))
}

// estimateUsage approximates token usage for endpoints that omit the usage
// block from their responses.
func estimateUsage(messages []Message, completion string) Usage {
	prompt := 0
	for _, msg := range messages {
		// Message overhead: approximately 4 tokens per message.
		prompt += 4 + CountTokens(msg.Role) + CountTokens(msg.Content)
	}
	completionTokens := CountTokens(completion)
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completionTokens,
		TotalTokens:      prompt + completionTokens,
	}
}

// estimateTokens is a rough character-based fallback when tiktoken is
// unavailable (about 4 characters per token for English text).
func estimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
