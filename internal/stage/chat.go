// SPDX-License-Identifier: MIT

package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ChatBackend summarizes transcripts through a chat-completions HTTP
// endpoint.
type ChatBackend struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewChatBackend creates a chat-completions back-end with defaults applied.
func NewChatBackend(endpoint, apiKey string) *ChatBackend {
	return &ChatBackend{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You are a content summarization assistant. Produce a concise, accurate summary of the provided transcript."

// Summarize sends the transcript to the chat endpoint and returns the
// model's reply.
func (b *ChatBackend) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	if b.APIKey == "" {
		return "", fmt.Errorf("summarization API key not configured")
	}

	prompt := fmt.Sprintf(
		"Summarize the following transcript in at most %d characters, keeping the key points:\n\n%s",
		req.MaxLength, req.Transcript,
	)
	payload, err := json.Marshal(chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		// Rough estimate, one token per four characters.
		MaxTokens: req.MaxLength / 4,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.APIKey)

	resp, err := b.client().Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("summarization request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("chat endpoint returned no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

func (b *ChatBackend) client() *http.Client {
	if b.Client == nil {
		return http.DefaultClient
	}
	return b.Client
}
