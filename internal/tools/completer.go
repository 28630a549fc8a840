package tools

// file: internal/tools/completer.go

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Completer produces text from a system prompt and a user prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// OpenAIClient calls an OpenAI-compatible /chat/completions endpoint. Any server
// speaking that wire format works (OpenAI, OpenRouter, vLLM, Ollama, llama.cpp).
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
}

// NewOpenAIClient creates a client. baseURL is the API root, such as "https://api.openai.com/v1".
func NewOpenAIClient(baseURL, model, apiKey string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// ProviderError is a non-200 answer from the completion API.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("completion API error (HTTP %d, %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("completion API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Complete implements Completer.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("no API key configured for the completion backend")
	}
	wire := chatRequest{Model: c.model}
	if system != "" {
		wire.Messages = append(wire.Messages, chatMessage{Role: "system", Content: system})
	}
	wire.Messages = append(wire.Messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(wire)
	if err != nil {
		return "", errors.Wrap(err, "marshaling completion request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "creating completion request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "sending completion request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readProviderError(resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", errors.Wrap(err, "decoding completion response")
	}
	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == "" {
		return "", errors.New("completion response had no content")
	}
	return decoded.Choices[0].Message.Content, nil
}

// readProviderError parses {"error":{"type":"...","message":"..."}}, falling back to the raw body.
func readProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{StatusCode: resp.StatusCode, Type: wireError.Error.Type, Message: wireError.Error.Message}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: msg}
}
