package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/reelfacts/internal/config"
	"github.com/raphaelgruber/reelfacts/internal/metrics"
)

// LangChainImages implements ImageAnalyzer over any langchaingo chat model
// that accepts binary image parts.
type LangChainImages struct {
	llm       llms.Model
	modelName string
	metrics   *metrics.Collector
	logger    *slog.Logger
}

var _ ImageAnalyzer = (*LangChainImages)(nil)

// NewLangChainImages creates an image analyzer for the configured fallback provider.
func NewLangChainImages(cfg config.Config, m *metrics.Collector, logger *slog.Logger) (*LangChainImages, error) {
	var model llms.Model
	var err error
	modelName := cfg.FallbackModelName()

	switch cfg.FallbackProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported langchain provider: %s", cfg.FallbackProvider)
	}

	return NewLangChainImagesFromModel(model, modelName, m, logger), nil
}

// NewLangChainImagesFromModel wraps an existing langchaingo model.
func NewLangChainImagesFromModel(model llms.Model, modelName string, m *metrics.Collector, logger *slog.Logger) *LangChainImages {
	if logger == nil {
		logger = slog.Default()
	}
	return &LangChainImages{llm: model, modelName: modelName, metrics: m, logger: logger}
}

// ImageModel returns the model name.
func (l *LangChainImages) ImageModel() string {
	return l.modelName
}

// AnalyzeImages sends every image as a binary part followed by the prompt.
func (l *LangChainImages) AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error) {
	parts := make([]llms.ContentPart, 0, len(imagePaths)+1)
	for _, p := range imagePaths {
		data, mimeType, err := readImage(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, llms.BinaryPart(mimeType, data))
	}
	parts = append(parts, llms.TextPart(prompt))

	messages := []llms.MessageContent{{Role: llms.ChatMessageTypeHuman, Parts: parts}}

	start := time.Now()
	response, err := l.llm.GenerateContent(ctx, messages)
	duration := time.Since(start)
	if err != nil {
		l.metrics.RecordError(metrics.OpAnalyzeImages, duration)
		l.logger.Warn("image analysis failed", "model", l.modelName, "images", len(imagePaths), "duration_ms", duration.Milliseconds(), "error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", remoteErr("generate", 0, wrapFatalError(err))
	}

	if len(response.Choices) == 0 {
		return "", remoteErr("generate", 0, errors.New("no response choices"))
	}

	choice := response.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	l.metrics.RecordModelUsage(metrics.OpAnalyzeImages, duration, in, out)
	l.logger.Debug("image analysis complete", "model", l.modelName, "images", len(imagePaths), "duration_ms", duration.Milliseconds())

	return choice.Content, nil
}

// tokenUsage reads token counts from provider-specific generation info keys.
func tokenUsage(info map[string]any) (in, out int64) {
	return firstInt(info, "PromptTokens", "InputTokens", "prompt_eval_count"),
		firstInt(info, "CompletionTokens", "OutputTokens", "eval_count")
}

func firstInt(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
