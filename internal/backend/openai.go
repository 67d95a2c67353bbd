package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/quorumworks/conclave/internal/config"
)

// Target describes one OpenAI-compatible chat-completions endpoint.
type Target struct {
	Model   string
	BaseURL string
	APIKey  string
}

// Client is a Caller over OpenAI-compatible chat-completions APIs. It holds
// one Target per backend id and shares a single HTTP client; per-call
// deadlines come from the caller's context, not from the transport.
type Client struct {
	targets map[string]Target
	http    *http.Client
}

// ClientOption customizes Client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client (primarily for tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a Client from explicit targets.
func NewClient(targets map[string]Target, opts ...ClientOption) *Client {
	client := &Client{
		targets: targets,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// TargetsFromConfig resolves the configured council into callable targets,
// reading API keys from the environment variables the config names.
func TargetsFromConfig(cfg *config.Config) (map[string]Target, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend: config is required")
	}
	targets := make(map[string]Target, len(cfg.Council()))
	for _, ref := range cfg.Council() {
		target := Target{Model: ref.Model, BaseURL: ref.BaseURL}
		if ref.APIKeyEnv != "" {
			target.APIKey = strings.TrimSpace(os.Getenv(ref.APIKeyEnv))
			if target.APIKey == "" {
				return nil, fmt.Errorf("backend: %s: environment variable %s is empty", ref.ID, ref.APIKeyEnv)
			}
		}
		targets[ref.ID] = target
	}
	return targets, nil
}

// Chat API types (OpenAI-compatible).

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// Call sends the prompt to the backend's chat-completions endpoint and
// returns the first choice's text. All failures are *Error values.
func (c *Client) Call(ctx context.Context, backendID, prompt string) (string, error) {
	target, ok := c.targets[backendID]
	if !ok {
		return "", &Error{Kind: KindUnavailable, Detail: fmt.Sprintf("unknown backend %q", backendID)}
	}

	buf := new(bytes.Buffer)
	body := chatCompletionRequest{
		Model:    target.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return "", &Error{Kind: KindProtocolError, Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.BaseURL+"/chat/completions", buf)
	if err != nil {
		return "", &Error{Kind: KindProtocolError, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if target.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+target.APIKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", classifyStatus(res.StatusCode, string(detail))
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", &Error{Kind: KindProtocolError, Detail: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &Error{Kind: KindProtocolError, Detail: "response contained no choices"}
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Kind: KindProtocolError, Detail: "response text was empty"}
	}
	return text, nil
}

func classifyTransportError(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Detail: "call exceeded deadline"}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindUnavailable, Detail: "call canceled"}
	default:
		return &Error{Kind: KindUnavailable, Detail: err.Error()}
	}
}

func classifyStatus(status int, detail string) *Error {
	detail = strings.TrimSpace(detail)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuthError, Detail: detail}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Detail: detail}
	case status >= 500:
		return &Error{Kind: KindUnavailable, Detail: fmt.Sprintf("status %d: %s", status, detail)}
	default:
		return &Error{Kind: KindProtocolError, Detail: fmt.Sprintf("unexpected status %d: %s", status, detail)}
	}
}
