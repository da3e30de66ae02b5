package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const voiceSystemPrompt = "You are a helpful, concise voice assistant for game designers. " +
	"Answer clearly and briefly in plain sentences. Do not use markdown, lists or emoji."

// OpenAIClient talks to any OpenAI compatible chat completions endpoint.
type OpenAIClient struct {
	client  openai.Client
	model   string
	hasKey  bool
	timeout time.Duration
}

// NewOpenAIClient builds a client. baseURL may be empty for api.openai.com.
func NewOpenAIClient(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &OpenAIClient{
		client:  openai.NewClient(reqOpts...),
		model:   model,
		hasKey:  apiKey != "",
		timeout: 90 * time.Second,
	}
}

// Model returns the configured model id.
func (c *OpenAIClient) Model() string { return c.model }

// Stream generates a reply for prompt and delivers it token by token. The
// token channel is closed when the reply ends; a failure is reported on the
// error channel, which is closed right before the token channel.
func (c *OpenAIClient) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	tokCh := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(tokCh)
		defer close(errCh)

		if !c.hasKey {
			errCh <- fmt.Errorf("openai api key missing")
			return
		}

		stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model: c.model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(voiceSystemPrompt),
				openai.UserMessage(prompt),
			},
		})
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case tokCh <- delta:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			errCh <- fmt.Errorf("openai stream: %w", err)
		}
	}()

	return tokCh, errCh
}

// Complete runs a single non-streaming completion.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.hasKey {
		return "", fmt.Errorf("openai api key missing")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var msgs []openai.ChatCompletionMessageParamUnion
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	msgs = append(msgs, openai.UserMessage(user))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
