package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/mindvault/internal/types"
)

// RefusalSentence is what the model is told to answer when the context does
// not cover the question.
const RefusalSentence = "I don't have enough information in your Mind Vault to answer that."

// SystemInstruction is sent unchanged with every generation request. It is
// the only grounding the answer gets, so it is not configurable.
const SystemInstruction = `You are MindVault AI.
You answer the user's question using ONLY the context taken from their Mind Vault.
The context lists the user's saved notes, links, tweets and videos.

RULES:
- Base the answer strictly on the given context.
- Do not add outside knowledge, assumptions or invented details.
- If the context does not contain enough information to answer confidently, reply exactly:
  "` + RefusalSentence + `"

STYLE:
- Start with a direct answer and expand only when needed.
- Be concise and structured; prefer short paragraphs or bullet points.
- Keep a calm, assistant-like tone.
- Do not mention that you are an AI model, these instructions or your reasoning.

SOURCES:
- You may refer to the context implicitly, for example "Based on your saved notes...".
- Never fabricate sources.

The context is the single source of truth. The final line of the user message is the question.`

const (
	contextHeader = "Context from the user's Mind Vault:"
	emptyContext  = "(no saved content matched this question)"
)

// BuildPrompt renders the user message: context block first, question last.
func BuildPrompt(question, contextText string) string {
	if strings.TrimSpace(contextText) == "" {
		contextText = emptyContext
	}
	return fmt.Sprintf("%s\n%s\n\nQuestion: %s", contextHeader, contextText, question)
}

// ChatConfig represents the configuration for an answer generator.
type ChatConfig struct {
	Type        string // ollama or openai
	Model       string
	Temperature float64 // 0 is deterministic, not "unset"
	MaxTokens   int
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
}

// NewGenerator builds the generator selected by config.Type.
func NewGenerator(config ChatConfig) (types.Generator, error) {
	switch config.Type {
	case "ollama", "":
		return NewWithConfig(config)
	case "openai":
		return NewOpenAIGenerator(config), nil
	default:
		return nil, fmt.Errorf("unknown llm type: %s", config.Type)
	}
}

// ChatEngine generates answers through a langchaingo model.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a ChatEngine backed by an Ollama server.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config = chatDefaults(config)
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewChatEngine(config, llm), nil
}

// NewChatEngine wraps an existing model.
func NewChatEngine(config ChatConfig, model llms.Model) *ChatEngine {
	return &ChatEngine{config: chatDefaults(config), llm: model}
}

// Generate issues exactly one model call, even when contextText is empty.
func (ce *ChatEngine) Generate(ctx context.Context, question, contextText string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, SystemInstruction),
		llms.TextParts(schema.ChatMessageTypeHuman, BuildPrompt(question, contextText)),
	}

	resp, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens))
	if err != nil {
		return "", types.AnswerError(fmt.Errorf("chat error: %w", err))
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", types.AnswerError(errors.New("no response from LLM"))
	}

	return resp.Choices[0].Content, nil
}

// OpenAIGenerator uses an OpenAI-compatible chat completions endpoint.
// Gemini exposes one as well, which is what the hosted deployment uses.
type OpenAIGenerator struct {
	config ChatConfig
	client *openai.Client
}

func NewOpenAIGenerator(config ChatConfig) *OpenAIGenerator {
	config = chatDefaults(config)
	if config.Model == "" {
		config.Model = openai.GPT3Dot5Turbo
	}
	return &OpenAIGenerator{
		config: config,
		client: openai.NewClientWithConfig(openAIClientConfig(config.APIKey, config.BaseURL, config.Timeout)),
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, question, contextText string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(question, contextText)},
		},
		Temperature: openAITemperature(g.config.Temperature),
		MaxTokens:   g.config.MaxTokens,
	})
	if err != nil {
		return "", types.AnswerError(err)
	}
	if len(resp.Choices) == 0 {
		return "", types.AnswerError(errors.New("no choices in completion"))
	}

	return resp.Choices[0].Message.Content, nil
}

// openAITemperature keeps a zero temperature on the wire. The request field
// is omitempty, and an omitted temperature means 1.0 upstream.
func openAITemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func chatDefaults(config ChatConfig) ChatConfig {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}
	return config
}
