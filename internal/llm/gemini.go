package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/maltedev/catalog-crawler/internal/ratelimit"
)

const DefaultModel = "gemini-2.0-flash"

type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
	// Timeout bounds a single request, including the wait for the limiter.
	Timeout time.Duration
	Limiter ratelimit.RateLimiter
}

func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Model:           DefaultModel,
		Temperature:     0.1,
		TopP:            0.8,
		TopK:            40,
		MaxOutputTokens: 8192,
		Timeout:         2 * time.Minute,
	}
}

// contentGenerator is the part of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Gemini struct {
	models contentGenerator
	cfg    GeminiConfig
	logger *slog.Logger
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newGemini(client.Models, cfg), nil
}

func newGemini(models contentGenerator, cfg GeminiConfig) *Gemini {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Gemini{
		models: models,
		cfg:    cfg,
		logger: slog.Default().With("component", "gemini", "model", cfg.Model),
	}
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	if g.cfg.Limiter != nil {
		if err := g.cfg.Limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("failed to wait for request budget: %w", err)
		}
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), g.generationConfig())
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := ""
	if resp != nil {
		text = strings.TrimSpace(resp.Text())
	}
	if text == "" {
		return "", ErrEmptyResponse
	}

	g.logger.Debug("model response received",
		"duration", time.Since(start),
		"prompt_chars", len(prompt),
		"response_chars", len(text))
	return StripFences(text), nil
}

func (g *Gemini) generationConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.cfg.Temperature),
		TopP:        genai.Ptr(g.cfg.TopP),
	}
	if g.cfg.TopK > 0 {
		cfg.TopK = genai.Ptr(g.cfg.TopK)
	}
	if g.cfg.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = g.cfg.MaxOutputTokens
	}
	return cfg
}
