// Package llamacpp talks to llama-server through its OpenAI-compatible chat
// endpoint. It is one of the transports behind the vision-guided method.
package llamacpp

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
)

// DefaultURL is where llama-server listens by default
const DefaultURL = "http://localhost:8080"

const (
	chatPath   = "/v1/chat/completions"
	healthPath = "/health"
	// subject boxes are short JSON documents
	maxReplyTokens = 1024
)

// Client is a VisionClient backed by llama-server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// chatReply keeps the message content raw: servers answer with either a
// string or a list of parts
type chatReply struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

var errEmptyReply = errors.New("llama.cpp reply carries no text")

// NewClient creates a client for the server at serverURL (DefaultURL when empty)
func NewClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid URL: %q needs an http or https scheme", serverURL)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Ping calls the /health endpoint of llama-server
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llama.cpp health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llama.cpp health check: status %d", resp.StatusCode)
	}
	return nil
}

// Query sends prompt, plus the JPEG in imgB64 when given, and returns the
// first text the model answers with
func (c *Client) Query(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	parts := []contentPart{{Type: "text", Text: prompt}}
	if imgB64 != "" {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageRef{URL: "data:image/jpeg;base64," + imgB64},
		})
	}

	body, err := c.post(ctx, chatPath, chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: parts}},
		Temperature: 0.1,
		MaxTokens:   maxReplyTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llama.cpp chat: %w", err)
	}

	var reply chatReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("failed to parse llama.cpp reply: %w", err)
	}
	if len(reply.Choices) == 0 {
		return "", errEmptyReply
	}
	return replyText(reply.Choices[0].Message.Content)
}

// replyText extracts the text of a message content that is either a JSON
// string or a list of typed parts
func replyText(raw json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text == "" {
			return "", errEmptyReply
		}
		return text, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("unexpected llama.cpp content: %w", err)
	}
	for _, p := range parts {
		if p.Text != "" {
			return p.Text, nil
		}
	}
	return "", errEmptyReply
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
