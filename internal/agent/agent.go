// Package agent implements the conversational receptionist: an OpenAI
// chat-completions tool loop over the scheduling cache, the upstream
// booking client, and the clinic knowledge base.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/acmedental/scheduling-assistant/internal/cache"
)

// maxToolIterations bounds one turn's tool loop so a confused model cannot
// spin forever.
const maxToolIterations = 8

// Canceler is the one upstream mutation the agent performs directly.
type Canceler interface {
	CancelEvent(ctx context.Context, eventUUID, reason string) error
}

type Config struct {
	APIKey  string
	Model   string // default gpt-4o-mini
	BaseURL string // optional OpenAI-compatible endpoint
}

type Agent struct {
	client   *openai.Client
	model    string
	cache    *cache.SchedulingCache
	canceler Canceler
	tools    []openai.Tool
	memory   *memory
}

func New(cfg Config, schedCache *cache.SchedulingCache, canceler Canceler) (*Agent, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	a := &Agent{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    cfg.Model,
		cache:    schedCache,
		canceler: canceler,
		tools:    toolDefinitions(),
		memory:   newMemory(),
	}

	slog.Info("agent created", "model", cfg.Model, "tools", len(a.tools))
	return a, nil
}

// Respond runs one conversation turn: it appends the user message to the
// thread's history, lets the model call tools until it produces a final
// answer, and returns that answer.
func (a *Agent) Respond(ctx context.Context, threadID, userMessage string) (string, error) {
	slog.Info("processing message", "thread_id", threadID, "message", truncate(userMessage, 100))

	a.memory.append(threadID, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})

	for i := 0; i < maxToolIterations; i++ {
		resp, err := a.client.CreateChatCompletion(ctx, a.buildRequest(threadID, false))
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("empty chat response")
		}

		msg := resp.Choices[0].Message
		a.memory.append(threadID, msg)

		if len(msg.ToolCalls) == 0 {
			slog.Info("response generated", "thread_id", threadID, "chars", len(msg.Content))
			return msg.Content, nil
		}

		a.runToolCalls(ctx, threadID, msg.ToolCalls)
	}

	return "I'm sorry, I couldn't complete that request. Please try again.", nil
}

// RespondStream behaves like Respond but streams the final answer through
// emit as it is generated. Tool rounds run unstreamed first; only the
// closing completion is streamed.
func (a *Agent) RespondStream(ctx context.Context, threadID, userMessage string, emit func(chunk string) error) error {
	slog.Info("streaming message", "thread_id", threadID, "message", truncate(userMessage, 100))

	a.memory.append(threadID, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})

	for i := 0; i < maxToolIterations; i++ {
		stream, err := a.client.CreateChatCompletionStream(ctx, a.buildRequest(threadID, true))
		if err != nil {
			return fmt.Errorf("chat completion stream: %w", err)
		}

		full, toolCalls, err := a.consumeStream(stream, emit)
		stream.Close()
		if err != nil {
			return err
		}

		msg := openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   full,
			ToolCalls: toolCalls,
		}
		a.memory.append(threadID, msg)

		if len(toolCalls) == 0 {
			slog.Info("streaming complete", "thread_id", threadID, "chars", len(full))
			return nil
		}

		a.runToolCalls(ctx, threadID, toolCalls)
	}

	return errors.New("tool iteration limit reached")
}

// ClearThread drops a thread's conversation history, alongside the cache
// session the conversation owner clears.
func (a *Agent) ClearThread(threadID string) {
	a.memory.clear(threadID)
}

func (a *Agent) buildRequest(threadID string, stream bool) openai.ChatCompletionRequest {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	messages = append(messages, a.memory.history(threadID)...)

	return openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
		Tools:    a.tools,
		Stream:   stream,
	}
}

func (a *Agent) runToolCalls(ctx context.Context, threadID string, calls []openai.ToolCall) {
	for _, call := range calls {
		result := a.executeTool(ctx, threadID, call.Function.Name, call.Function.Arguments)
		a.memory.append(threadID, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: call.ID,
			Content:    result,
		})
	}
}

// consumeStream drains one streamed completion, emitting content deltas and
// accumulating any tool call fragments into whole calls.
func (a *Agent) consumeStream(stream *openai.ChatCompletionStream, emit func(string) error) (string, []openai.ToolCall, error) {
	var full string
	var toolCalls []openai.ToolCall

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return full, toolCalls, nil
		}
		if err != nil {
			return "", nil, fmt.Errorf("stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			full += delta.Content
			if emit != nil {
				if err := emit(delta.Content); err != nil {
					return "", nil, err
				}
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := len(toolCalls) - 1
			if tc.Index != nil {
				idx = *tc.Index
			}
			for len(toolCalls) <= idx {
				toolCalls = append(toolCalls, openai.ToolCall{Type: openai.ToolTypeFunction})
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Function.Name = tc.Function.Name
			}
			toolCalls[idx].Function.Arguments += tc.Function.Arguments
		}
	}
}
