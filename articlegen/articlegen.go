// Package articlegen produces article content for rendering, using an
// OpenAI-compatible chat completion endpoint. The output is mixed
// Markdown/LaTeX text meant to be fed straight into the render pipeline.
package articlegen

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Sentinel errors for article generation.
var (
	ErrMissingAPIKey   = errors.New("API key is required")
	ErrEmptyTopic      = errors.New("topic cannot be empty")
	ErrEmptyCompletion = errors.New("model returned no content")
)

// Default system prompts. Both steer the model toward output the render
// pipeline can typeset: $ delimiters for math, fenced tikz blocks for
// diagrams, plain GFM for everything else.
const (
	mathPrompt = `You are a mathematics writer. Write a short, self-contained article on the given topic in Markdown. Use $...$ for inline formulas and $$...$$ for display formulas. Where a figure genuinely helps, include a TikZ diagram in a fenced code block tagged tikz. Do not use HTML tags.`

	plainPrompt = `You are a technical writer. Write a short, self-contained article on the given topic in Markdown. Use headings, lists, and fenced code blocks where appropriate. Use $...$ delimiters for any mathematical notation. Do not use HTML tags.`
)

// thinkBlock matches reasoning traces some models emit before the answer.
var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Config holds connection settings for the completion endpoint.
type Config struct {
	APIKey  string
	BaseURL string // Optional, for OpenAI-compatible providers
	Model   string

	// Prompt overrides. Empty means the built-in prompts.
	MathPrompt  string
	PlainPrompt string
}

// chatClient abstracts the completion API to enable testing without a
// network.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Compile-time interface check
var _ chatClient = (*openai.Client)(nil)

// Generator produces article text from a topic.
type Generator struct {
	client      chatClient
	model       string
	mathPrompt  string
	plainPrompt string
	log         *logrus.Logger
}

// New creates a Generator from config.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	g := &Generator{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		mathPrompt:  cfg.MathPrompt,
		plainPrompt: cfg.PlainPrompt,
		log:         logrus.StandardLogger(),
	}
	if g.model == "" {
		g.model = openai.GPT4oMini
	}
	if g.mathPrompt == "" {
		g.mathPrompt = mathPrompt
	}
	if g.plainPrompt == "" {
		g.plainPrompt = plainPrompt
	}
	return g, nil
}

// MathArticle generates a math-focused article on the topic.
func (g *Generator) MathArticle(ctx context.Context, topic string) (string, error) {
	return g.generate(ctx, g.mathPrompt, topic)
}

// Article generates a general technical article on the topic.
func (g *Generator) Article(ctx context.Context, topic string) (string, error) {
	return g.generate(ctx, g.plainPrompt, topic)
}

func (g *Generator) generate(ctx context.Context, system, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", ErrEmptyTopic
	}

	g.log.WithFields(logrus.Fields{
		"model": g.model,
		"topic": topic,
	}).Debug("requesting article")

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: topic},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	content := stripReasoning(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// stripReasoning removes <think> traces so they are not typeset into the
// image.
func stripReasoning(s string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(s, ""))
}
