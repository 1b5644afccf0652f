// Package completion talks to the text-completion collaborator the agent
// uses to answer from installed context and to synthesize new skills.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultMaxTokens     = 2048
	defaultTemperature   = 0.7
	defaultTimeout       = 60 * time.Second
)

// DefaultModels is tried in order until one answers.
var DefaultModels = []string{"gemini-2.5-flash-lite", "gemini-2.5-flash", "gemini-2.0-flash-lite"}

var ErrAllModelsFailed = errors.New("completion: all models failed")

// Completer produces text for a system prompt and a user message.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Models     []string
	MaxTokens  int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Gemini calls the generateContent REST endpoint, falling back through
// the configured models.
type Gemini struct {
	config GeminiConfig
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gemini{config: cfg}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		MaxOutputTokens int     `json:"maxOutputTokens"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	var errs []error
	for _, model := range g.config.Models {
		text, err := g.call(ctx, model, system, user)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		g.config.Logger.Warn("completion model failed", "model", model, "error", err)
		errs = append(errs, err)
	}
	return "", fmt.Errorf("%w: %w", ErrAllModelsFailed, errors.Join(errs...))
}

func (g *Gemini) call(ctx context.Context, model, system, user string) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: user}}}},
	}
	if system != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	body.GenerationConfig.MaxOutputTokens = g.config.MaxTokens
	body.GenerationConfig.Temperature = defaultTemperature

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.config.BaseURL, url.PathEscape(model), url.QueryEscape(g.config.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.config.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini %s: send request: %w", model, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini %s: read response: %w", model, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini %s: API error (status %d): %s", model, resp.StatusCode, truncate(string(raw), 200))
	}

	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("gemini %s: unmarshal response: %w", model, err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 || out.Candidates[0].Content.Parts[0].Text == "" {
		return "", fmt.Errorf("gemini %s: empty response", model)
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Scripted returns canned replies in order, cycling when exhausted. It
// records every prompt it receives.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	err     error
	idx     int
	prompts []string
}

func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

// Failing returns a Scripted completer that always fails with err.
func Failing(err error) *Scripted {
	return &Scripted{err: err}
}

func (s *Scripted) Complete(_ context.Context, _ string, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, user)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", errors.New("scripted completer has no replies")
	}
	r := s.replies[s.idx%len(s.replies)]
	s.idx++
	return r, nil
}

// Prompts returns the user messages received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
