package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Veraticus/saffron/internal/common"
)

// Client sends a single prompt to a model and returns its text reply.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

const systemPrompt = "You categorize business bank transactions. Respond only with the JSON object requested."

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider   string
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// classifyStatus marks rate limits and server errors retryable and every
// other failure status permanent.
func classifyStatus(provider string, status int, body []byte) error {
	err := &StatusError{Provider: provider, StatusCode: status, Body: truncate(string(body), 512)}
	switch {
	case status == http.StatusTooManyRequests:
		return common.Retryable(fmt.Errorf("%w: %w", common.ErrRateLimit, err))
	case status >= 500:
		return common.Retryable(err)
	default:
		return common.Permanent(err)
	}
}

// transportError wraps a failed round trip. Cancellation by the caller is
// returned as is so retry loops stop.
func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return common.Retryable(fmt.Errorf("request failed: %w", err))
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
