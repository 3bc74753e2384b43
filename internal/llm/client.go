// Package llm wraps the OpenAI-compatible completion API used by the coach:
// one-shot completions for classification/extraction and streamed chat
// completions for coach replies. A single client is constructed at process
// start and injected into its consumers.
package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Message roles accepted by the completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var errMissingAPIKey = errors.New("llm: api key is required")

// Message is a single chat-completion message.
type Message struct {
	Role    string
	Content string
}

// Config describes how to reach the completion API.
type Config struct {
	APIKey          string
	BaseURL         string
	ChatModel       string
	ClassifierModel string
}

// Client issues completion calls against an OpenAI-compatible endpoint.
type Client struct {
	api             *openai.Client
	chatModel       string
	classifierModel string
}

// NewClient constructs the completion client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}
	classifierModel := cfg.ClassifierModel
	if classifierModel == "" {
		classifierModel = chatModel
	}
	return &Client{
		api:             openai.NewClientWithConfig(apiConfig),
		chatModel:       chatModel,
		classifierModel: classifierModel,
	}, nil
}

// Complete performs a one-shot completion with the classifier model and
// returns the trimmed response text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.classifierModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// StreamChat opens a streaming chat completion with the coach model.
func (c *Client) StreamChat(ctx context.Context, messages []Message) (*ChatStream, error) {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, message := range messages {
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: converted,
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}
	return &ChatStream{stream: stream}, nil
}

// ChatStream yields text increments from a streamed completion.
type ChatStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the next non-empty text delta. io.EOF signals a finished stream.
func (s *ChatStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		return delta, nil
	}
}

// Close releases the underlying stream.
func (s *ChatStream) Close() error {
	return s.stream.Close()
}

// IsStreamEnd reports whether the error marks normal stream termination.
func IsStreamEnd(err error) bool {
	return errors.Is(err, io.EOF)
}
