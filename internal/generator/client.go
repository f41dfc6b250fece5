// Package generator drafts lesson steps with an OpenRouter chat model.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aimd54/calculus-api/internal/config"
	"github.com/aimd54/calculus-api/internal/content"
	"github.com/aimd54/calculus-api/pkg/logger"
)

const maxTokens = 8192

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// StatusError is a non-2xx reply from the chat API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat API returned status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the request may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Client calls the chat completions endpoint with bounded retries.
type Client struct {
	apiURL      string
	apiKey      string
	model       string
	temperature float64
	maxAttempts int
	retryDelay  time.Duration
	httpClient  *http.Client
	log         *logger.Logger
}

// NewClient creates a new generator client.
func NewClient(cfg *config.GeneratorConfig, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("generator API key not configured (set OPENROUTER_API_KEY)")
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		apiURL:      cfg.APIURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxAttempts: attempts,
		retryDelay:  time.Duration(cfg.RetryDelay) * time.Second,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		log: log,
	}, nil
}

// Chat sends the conversation and returns the assistant reply. Transport errors,
// rate limiting, server errors and replies without choices are retried up to the
// configured attempt count with a fixed delay.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		reply, err := c.send(ctx, payload)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		c.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", c.maxAttempts).
			Msg("Chat request failed")

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}

	return "", fmt.Errorf("chat request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) send(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Title", "Calculus Lesson Generator")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// GenerateStep asks the model for a step document and validates the reply.
func (c *Client) GenerateStep(ctx context.Context, systemPrompt, userPrompt string) (*content.StepDocument, error) {
	c.log.Info().Str("model", c.model).Msg("Generating lesson step")

	reply, err := c.Chat(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
	if err != nil {
		return nil, err
	}

	doc, err := content.ParseStepDocument([]byte(StripCodeFence(reply)))
	if err != nil {
		c.log.Error().
			Err(err).
			Str("reply", truncate(reply, 2000)).
			Msg("Model reply is not a valid step")
		return nil, fmt.Errorf("invalid step from model: %w", err)
	}

	c.log.Info().Str("title", doc.Title).Int("slides", len(doc.Slides)).Msg("Lesson step generated")
	return doc, nil
}

// StripCodeFence removes a surrounding ``` or ```json fence.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
