// SPDX-License-Identifier: MIT

package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// WhisperBackend transcribes audio through a Whisper-compatible HTTP
// endpoint (multipart file upload, JSON response with a "text" field).
type WhisperBackend struct {
	Endpoint string
	APIKey   string
	// Model is the transcription model (default "whisper-1").
	Model  string
	Client *http.Client
}

// NewWhisperBackend creates a Whisper HTTP back-end with defaults applied.
func NewWhisperBackend(endpoint, apiKey string) *WhisperBackend {
	return &WhisperBackend{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Model:    "whisper-1",
		Client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

// Transcribe uploads the audio file and returns the transcript text.
func (b *WhisperBackend) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	if b.APIKey == "" {
		return "", fmt.Errorf("transcription API key not configured")
	}

	file, err := os.Open(audioPath) // #nosec G304 -- path derived from the extract stage
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("read audio file: %w", err)
	}
	if err := form.WriteField("model", b.model()); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if language != "" && language != "auto" {
		if err := form.WriteField("language", language); err != nil {
			return "", fmt.Errorf("build upload form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+b.APIKey)

	resp, err := b.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcription endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return decoded.Text, nil
}

func (b *WhisperBackend) model() string {
	if b.Model == "" {
		return "whisper-1"
	}
	return b.Model
}

func (b *WhisperBackend) client() *http.Client {
	if b.Client == nil {
		return http.DefaultClient
	}
	return b.Client
}
