// Package llm talks to vision-capable chat models. Two wire formats are
// supported: Ollama's native /api/chat and the OpenAI-compatible
// /chat/completions used by LM Studio, OpenAI, OpenRouter, Gemini and most
// self-hosted gateways.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoProvider is returned by NewProvider when Config.Provider is empty.
var ErrNoProvider = errors.New("llm provider not specified")

// Provider sends chat requests. Messages may carry page images.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Message is one chat turn. Images are raw encoded image files (PNG or
// JPEG); each backend encodes them the way its API expects.
type Message struct {
	Role    string
	Content string
	Images  []Image
}

// Image is an encoded image attached to a message.
type Image struct {
	Data     []byte
	MIMEType string
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// Config configures a provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openai, openrouter, gemini, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`

	// RequestsPerMinute throttles outgoing requests. Zero means unlimited.
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`

	// Timeout bounds a single HTTP request. Zero uses DefaultTimeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultTimeout is generous because local servers load the model on the
// first request.
const DefaultTimeout = 300 * time.Second

type backend struct {
	baseURL string
	prefix  string
	native  bool
}

var backends = map[string]backend{
	"ollama":     {baseURL: "http://localhost:11434", native: true},
	"lmstudio":   {baseURL: "http://localhost:1234", prefix: "/v1"},
	"openai":     {baseURL: "https://api.openai.com", prefix: "/v1"},
	"openrouter": {baseURL: "https://openrouter.ai/api", prefix: "/v1"},
	"gemini":     {baseURL: "https://generativelanguage.googleapis.com/v1beta/openai"},
	"custom":     {prefix: "/v1"},
}

// NewProvider creates a provider from configuration. An empty BaseURL
// takes the backend's default; "custom" has none.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Provider == "" {
		return nil, ErrNoProvider
	}
	b, ok := backends[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = b.baseURL
	}
	if b.native {
		return &ollamaProvider{base: newHTTPClient(cfg)}, nil
	}
	return &compatProvider{base: newHTTPClient(cfg), prefix: b.prefix}, nil
}
