package analyzer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/config"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/logging"
)

// Supported vision providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMistral   = "mistral"
	ProviderOllama    = "ollama"
	ProviderGoogleAI  = "googleai"
)

// Prompt asks the model for the cell layout as JSON.
const Prompt = `You are an OCR engine for tables. Extract the table in this image.

Return only a JSON object of the form:
{"cells": [{"row_index": 0, "col_index": 0, "row_span": 1, "col_span": 1, "text": "..."}]}

For each cell:
- text is the visible content of the cell, or "" when it is empty.
- row_index and col_index are the 0-based position of the cell's top-left corner.
- row_span and col_span are at least 1. Use 1 for cells that are not merged.
- A merged cell appears exactly once, at its top-left corner, with its full span.

Capture all visible text. Do not add commentary.`

// defaultMaxTokens bounds the model response.
const defaultMaxTokens = 8192

// ErrUnsupportedProvider is returned for an unknown provider name.
var ErrUnsupportedProvider = errors.New("unsupported analyzer provider")

// ModelFactory builds a model client for one call. The credential is only
// ever held by the returned client.
type ModelFactory func(ctx context.Context, provider, model, credential, baseURL string) (llms.Model, error)

// LLM analyzes page images with a vision model. A client is built per call
// from the caller's credential, so concurrent callers never share keys.
type LLM struct {
	provider  string
	baseURL   string
	maxTokens int
	newModel  ModelFactory
	fallback  core.LayoutAnalyzer
}

// NewLLM returns an analyzer for provider. It fails for unknown providers.
func NewLLM(provider, baseURL string) (*LLM, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !isLLMProvider(provider) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	return &LLM{
		provider:  provider,
		baseURL:   baseURL,
		maxTokens: defaultMaxTokens,
		newModel:  NewModel,
		fallback:  Mock{},
	}, nil
}

// WithModelFactory replaces the client constructor. Tests use it to inject a
// fake model.
func (a *LLM) WithModelFactory(f ModelFactory) *LLM {
	a.newModel = f
	return a
}

// Provider returns the configured provider name.
func (a *LLM) Provider() string {
	return a.provider
}

// AnalyzeLayout implements core.LayoutAnalyzer.
//
// Without a credential, hosted providers fall back to the mock layout so the
// application stays usable as a demo. Ollama needs no credential.
func (a *LLM) AnalyzeLayout(ctx context.Context, image []byte, mimeType, model, credential string) (core.CellSet, error) {
	log := logging.WithFields(ctx, "provider", a.provider, "model", model)

	if credential == "" && a.provider != ProviderOllama {
		log.Warn("no model key provided, returning mock layout")
		return a.fallback.AnalyzeLayout(ctx, image, mimeType, model, credential)
	}

	llm, err := a.newModel(ctx, a.provider, model, credential, a.baseURL)
	if err != nil {
		return core.CellSet{}, fmt.Errorf("%w: create %s client: %v", core.ErrAnalysisFailed, a.provider, err)
	}

	parts := []llms.ContentPart{
		a.imagePart(image, mimeType),
		llms.TextPart(Prompt),
	}
	opts := []llms.CallOption{
		llms.WithTemperature(0),
		llms.WithMaxTokens(a.maxTokens),
	}
	if a.provider != ProviderAnthropic {
		opts = append(opts, llms.WithJSONMode())
	}

	log.Debug("sending page to vision model", "bytes", len(image), "mime", mimeType)
	resp, err := llm.GenerateContent(ctx, []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: parts},
	}, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return core.CellSet{}, ctx.Err()
		}
		return core.CellSet{}, fmt.Errorf("%w: model call: %v", core.ErrAnalysisFailed, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return core.CellSet{}, fmt.Errorf("%w: model returned no choices", core.ErrAnalysisFailed)
	}

	set, err := core.DecodeCellSet(resp.Choices[0].Content)
	if err != nil {
		log.Debug("unparseable model response", "content_length", len(resp.Choices[0].Content))
		return core.CellSet{}, err
	}
	log.Info("layout analyzed", "cells", len(set.Cells))
	return set, nil
}

// imagePart encodes the page the way each provider expects: OpenAI-style
// APIs take a data URL, the others take raw bytes.
func (a *LLM) imagePart(image []byte, mimeType string) llms.ContentPart {
	if mimeType == "" {
		mimeType = "image/png"
	}
	switch a.provider {
	case ProviderOpenAI, ProviderMistral:
		return llms.ImageURLPart("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image))
	default:
		return llms.BinaryPart(mimeType, image)
	}
}

// NewModel is the default ModelFactory.
func NewModel(ctx context.Context, provider, model, credential, baseURL string) (llms.Model, error) {
	switch provider {
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithToken(credential),
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		return openai.New(opts...)

	case ProviderAnthropic:
		opts := []anthropic.Option{
			anthropic.WithModel(model),
			anthropic.WithToken(credential),
		}
		if baseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(baseURL))
		}
		return anthropic.New(opts...)

	case ProviderMistral:
		return mistral.New(
			mistral.WithModel(model),
			mistral.WithAPIKey(credential),
		)

	case ProviderOllama:
		host := baseURL
		if host == "" {
			host = "http://127.0.0.1:11434"
		}
		return ollama.New(
			ollama.WithModel(model),
			ollama.WithServerURL(host),
		)

	case ProviderGoogleAI:
		return googleai.New(ctx,
			googleai.WithAPIKey(credential),
			googleai.WithDefaultModel(model),
		)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

func isLLMProvider(p string) bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderMistral, ProviderOllama, ProviderGoogleAI:
		return true
	}
	return false
}

// New selects the analyzer for cfg.Provider.
func New(cfg config.AnalyzerConfig) (core.LayoutAnalyzer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == ProviderMock {
		return Mock{}, nil
	}
	return NewLLM(provider, cfg.BaseURL)
}
