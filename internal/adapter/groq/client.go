// Package groq provides an HTTP client for Groq's OpenAI-compatible chat
// completions API.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/code2api/code2api/internal/port/llm"
	"github.com/code2api/code2api/internal/resilience"
)

const completionsPath = "/openai/v1/chat/completions"

// Client calls the chat completions endpoint of a Groq-compatible provider.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a client for the given provider URL, key and model.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Call sends one completion request and returns the text plus the rate
// window reported in the response headers.
func (c *Client) Call(ctx context.Context, req llm.Request) (llm.Response, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return llm.Response{}, fmt.Errorf("marshal completion request: %w", err)
	}

	data, headers, err := c.doRequest(ctx, body)
	if err != nil {
		return llm.Response{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return llm.Response{}, fmt.Errorf("unmarshal completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("completion has no choices")
	}

	return llm.Response{
		Text: parsed.Choices[0].Message.Content,
		Rate: parseRateHeaders(headers),
	}, nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, http.Header, error) {
	var (
		result  []byte
		headers http.Header
	)
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		headers = resp.Header
		if resp.StatusCode >= 400 {
			return &llm.StatusError{Code: resp.StatusCode, Body: string(data)}
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, headers, err
		}
		return result, headers, nil
	}

	if err := call(); err != nil {
		return nil, headers, err
	}
	return result, headers, nil
}

// parseRateHeaders reads the x-ratelimit-* headers. Remaining counts are
// integers; reset headers are durations like "2m59.56s" or "7.66s".
func parseRateHeaders(h http.Header) llm.RateLimit {
	if h == nil {
		return llm.RateLimit{}
	}
	remReq, errReq := strconv.ParseInt(h.Get("x-ratelimit-remaining-requests"), 10, 64)
	remTok, errTok := strconv.ParseInt(h.Get("x-ratelimit-remaining-tokens"), 10, 64)
	if errReq != nil && errTok != nil {
		return llm.RateLimit{}
	}

	rl := llm.RateLimit{Known: true}
	if errReq == nil {
		rl.RemainingRequests = remReq
	}
	if errTok == nil {
		rl.RemainingTokens = remTok
	}
	if d, err := time.ParseDuration(h.Get("x-ratelimit-reset-requests")); err == nil {
		rl.UntilRequestReset = d
	}
	if d, err := time.ParseDuration(h.Get("x-ratelimit-reset-tokens")); err == nil {
		rl.UntilTokenReset = d
	}
	return rl
}
