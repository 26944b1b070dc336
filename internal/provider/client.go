// Package provider talks to an OpenAI-compatible model API: it checks
// credentials, resolves model ids and runs chat completions for the judge.
package provider

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
	"sort"
	"strings"
	"sync"
)

var ErrUnauthenticated = errors.New("provider is not authenticated")

const defaultMaxTokens = 4096

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	// UsageLog, when set, receives one JSON line per completion.
	UsageLog string

	mu sync.Mutex
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    http.DefaultClient,
	}
}

// Name is the provider identity recorded with results, derived from the API host.
func (c *Client) Name() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Hostname() == "" {
		return c.BaseURL
	}
	host := u.Hostname()
	for _, known := range []string{"anthropic", "openai", "googleapis", "openrouter"} {
		if strings.Contains(host, known) {
			if known == "googleapis" {
				return "google"
			}
			return known
		}
	}
	return host
}

// ListModels returns the model ids the provider serves, sorted.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/models", nil, &body); err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	ids := make([]string, 0, len(body.Data))
	for _, m := range body.Data {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// ResolveModel confirms the provider is authenticated and serves id.
func (c *Client) ResolveModel(ctx context.Context, id string) (string, error) {
	ids, err := c.ListModels(ctx)
	if err != nil {
		return "", err
	}
	for _, m := range ids {
		if m == id {
			return m, nil
		}
	}
	return "", fmt.Errorf("model %q not found; available: %s", id, strings.Join(ids, ", "))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends prompt as a single user message and returns the reply text.
func (c *Client) Complete(ctx context.Context, model, prompt string) (string, error) {
	req := chatRequest{
		Model:     model,
		MaxTokens: defaultMaxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}
	var resp chatResponse
	if err := c.do(ctx, http.MethodPost, "/v1/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	if err := c.logUsage(UsageRecord{
		Provider:     c.Name(),
		Model:        model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}); err != nil {
		slog.Warn("writing usage log", "path", c.UsageLog, "err", err)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.APIKey == "" {
		return ErrUnauthenticated
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("x-api-key", c.APIKey)

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: API returned %d", ErrUnauthenticated, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
