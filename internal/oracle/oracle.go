// Package oracle wraps a text-generation capability behind a narrow
// interface. The model is an unreliable narrator: calls fail
// intermittently and output needs downstream repair, so the wrapper only
// handles transport-level retry and leaves content validation to callers.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-5-haiku-20241022"

	// maxAttempts bounds transient-failure retries. The unpredictability
	// here is attempt-count-shaped, not latency-shaped, so there is no
	// wall-clock cap.
	maxAttempts = 3

	// retryBackoff is the fixed delay between attempts.
	retryBackoff = 2 * time.Second
)

// ErrNoCredential indicates no usable API key was found. It is
// non-retryable: surfacing it immediately beats burning a retry budget.
var ErrNoCredential = errors.New("no LLM credential configured (set ANTHROPIC_API_KEY or GEMINI_API_KEY)")

// Error wraps the final failure after the retry budget is exhausted.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ToolResult is the outcome of a tool-augmented completion: free text,
// requested tool invocations, or both.
type ToolResult struct {
	Text      string
	ToolCalls []llms.ToolCall
}

// Oracle is the text-generation capability used by the relevance engine.
type Oracle interface {
	// Complete returns the model's text for a single prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithTools runs one turn of a tool-augmented conversation.
	// The caller executes any requested tools and appends their results
	// to the conversation before calling again.
	CompleteWithTools(ctx context.Context, msgs []llms.MessageContent, tools []llms.Tool) (*ToolResult, error)
}

// LLM is the production Oracle over a langchaingo model.
type LLM struct {
	model   llms.Model
	logger  *slog.Logger
	backoff time.Duration
}

// New builds an Oracle from the environment: Anthropic if
// ANTHROPIC_API_KEY is set, otherwise Gemini via GEMINI_API_KEY.
func New(ctx context.Context, modelName string) (*LLM, error) {
	if modelName == "" {
		modelName = DefaultModel
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		m, err := anthropic.New(anthropic.WithToken(key), anthropic.WithModel(modelName))
		if err != nil {
			return nil, fmt.Errorf("creating anthropic client: %w", err)
		}
		return FromModel(m), nil
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		m, err := googleai.New(ctx, googleai.WithAPIKey(key), googleai.WithDefaultModel(modelName))
		if err != nil {
			return nil, fmt.Errorf("creating googleai client: %w", err)
		}
		return FromModel(m), nil
	}

	return nil, ErrNoCredential
}

// FromModel wraps an existing langchaingo model (used by tests).
func FromModel(m llms.Model) *LLM {
	return &LLM{model: m, logger: slog.Default(), backoff: retryBackoff}
}

// Complete implements Oracle with a bounded fixed-backoff retry.
// Cancellation is checked before each attempt and between retry sleeps.
func (l *LLM) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if attempt > 1 {
			l.logger.Warn("retrying oracle call", "attempt", attempt, "last_error", lastErr)
			if err := sleepCtx(ctx, l.backoff); err != nil {
				return "", err
			}
		}

		text, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt)
		if err != nil {
			lastErr = err
			continue
		}
		return text, nil
	}
	return "", &Error{Attempts: maxAttempts, Err: lastErr}
}

// CompleteWithTools implements the tool-augmented variant with the same
// retry discipline.
func (l *LLM) CompleteWithTools(ctx context.Context, msgs []llms.MessageContent, tools []llms.Tool) (*ToolResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 1 {
			l.logger.Warn("retrying oracle tool call", "attempt", attempt, "last_error", lastErr)
			if err := sleepCtx(ctx, l.backoff); err != nil {
				return nil, err
			}
		}

		resp, err := l.model.GenerateContent(ctx, msgs, llms.WithTools(tools))
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("model returned no choices")
			continue
		}
		choice := resp.Choices[0]
		return &ToolResult{Text: choice.Content, ToolCalls: choice.ToolCalls}, nil
	}
	return nil, &Error{Attempts: maxAttempts, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
