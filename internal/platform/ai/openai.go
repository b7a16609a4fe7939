package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the upstream OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to an OpenAI-compatible API over HTTP.
type OpenAIClient struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	chatModel       string
	transcribeModel string
	speechModel     string
}

// Options configures an OpenAIClient.
type Options struct {
	BaseURL         string
	APIKey          string
	ChatModel       string
	TranscribeModel string
	SpeechModel     string
	Timeout         time.Duration
}

// NewOpenAIClient builds a client. Zero-valued options fall back to the
// standard models and a 60 second timeout.
func NewOpenAIClient(opts Options) *OpenAIClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ChatModel == "" {
		opts.ChatModel = "gpt-4o"
	}
	if opts.TranscribeModel == "" {
		opts.TranscribeModel = "whisper-1"
	}
	if opts.SpeechModel == "" {
		opts.SpeechModel = "tts-1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	return &OpenAIClient{
		httpClient:      &http.Client{Timeout: opts.Timeout},
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		apiKey:          opts.APIKey,
		chatModel:       opts.ChatModel,
		transcribeModel: opts.TranscribeModel,
		speechModel:     opts.SpeechModel,
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// CompleteText runs a chat completion with a system and a user message and
// returns the first choice's content.
func (c *OpenAIClient) CompleteText(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	var messages []chatMessage
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	body, err := json.Marshal(chatRequest{
		Model:     c.chatModel,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	respBody, err := c.post(ctx, "/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// TranscribeAudio uploads an audio file and returns its transcript.
func (c *OpenAIClient) TranscribeAudio(ctx context.Context, filename string, audio []byte) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.WriteField("model", c.transcribeModel); err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	// Dictation is English-only.
	if err := mw.WriteField("language", "en"); err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}

	respBody, err := c.post(ctx, "/audio/transcriptions", mw.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return parsed.Text, nil
}

// speechSpeed is the playback rate for read-aloud responses.
const speechSpeed = 0.95

type speechRequest struct {
	Model string  `json:"model"`
	Input string  `json:"input"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed,omitempty"`
}

// SynthesizeSpeech renders text to audio and returns the raw audio bytes.
func (c *OpenAIClient) SynthesizeSpeech(ctx context.Context, text, voice string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(speechRequest{
		Model: c.speechModel,
		Input: text,
		Voice: voice,
		Speed: speechSpeed,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}

	return c.post(ctx, "/audio/speech", "application/json", bytes.NewReader(body))
}

func (c *OpenAIClient) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, truncate(string(respBody), 200))
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
