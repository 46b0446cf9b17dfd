package testutil

import (
	"context"
	"sync"
)

// LLMCall records one analysis request.
type LLMCall struct {
	FileID string
	Prompt string
}

// FakeLLM is a scriptable stand-in for the vision model client.
type FakeLLM struct {
	mu    sync.Mutex
	Calls []LLMCall

	// GenerateFunc decides the reply. When nil, replies are consumed from
	// Responses in order.
	GenerateFunc func(ctx context.Context, fileID, prompt string, doc []byte, mimeType string) (string, error)
	Responses    []string
	Err          error
}

// Generate calls the scripted function if set, otherwise pops Responses.
func (f *FakeLLM) Generate(ctx context.Context, fileID, prompt string, doc []byte, mimeType string) (string, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, LLMCall{FileID: fileID, Prompt: prompt})
	fn := f.GenerateFunc
	var reply string
	if fn == nil {
		if f.Err != nil {
			err := f.Err
			f.mu.Unlock()
			return "", err
		}
		if len(f.Responses) > 0 {
			reply = f.Responses[0]
			f.Responses = f.Responses[1:]
		}
	}
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, fileID, prompt, doc, mimeType)
	}
	return reply, nil
}

// CallCount returns how many analysis requests were made.
func (f *FakeLLM) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
