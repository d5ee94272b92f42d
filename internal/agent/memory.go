package agent

import (
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// maxHistoryMessages bounds per-thread history; older turns are dropped
// from the front, the system prompt is re-added on every request.
const maxHistoryMessages = 40

// memory keeps per-thread conversation history in process, mirroring the
// lifetime of cache sessions.
type memory struct {
	mu      sync.Mutex
	threads map[string][]openai.ChatCompletionMessage
}

func newMemory() *memory {
	return &memory{threads: make(map[string][]openai.ChatCompletionMessage)}
}

func (m *memory) history(threadID string) []openai.ChatCompletionMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]openai.ChatCompletionMessage(nil), m.threads[threadID]...)
}

func (m *memory) append(threadID string, msgs ...openai.ChatCompletionMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := append(m.threads[threadID], msgs...)
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
		// Never let a dangling tool response lead the window; the API
		// rejects a tool message without its preceding assistant call.
		for len(history) > 0 && history[0].Role == openai.ChatMessageRoleTool {
			history = history[1:]
		}
	}
	m.threads[threadID] = history
}

func (m *memory) clear(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
}
