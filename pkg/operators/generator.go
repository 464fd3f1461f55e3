package operators

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// DefaultModel is the default text-generation model served by Ollama.
const DefaultModel = "llama3.2:3b"

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type chatGenerator struct {
	model model.BaseChatModel
}

// NewChatGenerator creates a generator that sends the prompt as a single user message to a
// chat model.
func NewChatGenerator(m model.BaseChatModel) Generator {
	return &chatGenerator{model: m}
}

func (g *chatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", fmt.Errorf("empty response from chat model")
	}
	return msg.Content, nil
}

// NewOllamaGenerator creates a generator on an Ollama chat model. An empty model name selects
// DefaultModel.
func NewOllamaGenerator(ctx context.Context, baseURL, modelName string) (Generator, error) {
	if modelName == "" {
		modelName = DefaultModel
	}

	m, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama chat model %q: %w", modelName, err)
	}

	return NewChatGenerator(m), nil
}
