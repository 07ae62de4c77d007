package llmclient

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

	"admissions-agent/config"
	apperrors "admissions-agent/errors"

	"go.uber.org/zap"
)

// Message is a single chat message in the provider's wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Client talks to an OpenAI-compatible hosted provider for chat
// completion, transcription, speech synthesis and embeddings. Every
// call is independent: a transient failure on one turn never leaves
// the client in a broken state for the next.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.LLMRequestTimeout},
		logger:     logger,
	}
}

// Chat performs a non-streaming chat completion call.
// temperature is optional; pass nil to use server default.
func (c *Client) Chat(ctx context.Context, messages []Message, temperature *float64) (string, error) {
	reqBody := chatRequest{
		Model:       c.cfg.LLMModel,
		Messages:    messages,
		Stream:      false,
		Temperature: temperature,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", apperrors.WrapErrorf(apperrors.ErrGeneration, "marshal chat request: %v", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(c.cfg.LLMHost, "/"))
	bodyBytes, err := c.doWithRetry(ctx, url, func() (io.Reader, string, error) {
		return bytes.NewReader(jsonBody), "application/json", nil
	})
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrGeneration, err.Error())
	}

	var cr chatResponse
	if err := json.Unmarshal(bodyBytes, &cr); err != nil {
		return "", apperrors.WrapErrorf(apperrors.ErrGeneration, "decode chat response: %v", err)
	}
	if len(cr.Choices) == 0 {
		return "", apperrors.WrapError(apperrors.ErrGeneration, "no response choices from llm server")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

// Transcribe sends recorded caller audio to the hosted Whisper endpoint
// and returns the transcript text. An empty transcript means the
// provider heard no usable speech; that is not an error.
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte, language string) (string, error) {
	url := fmt.Sprintf("%s/v1/audio/transcriptions", strings.TrimRight(c.cfg.LLMHost, "/"))

	// The multipart boundary lives in the content type, so the body and
	// content type are rebuilt together on every retry attempt.
	bodyBytes, err := c.doWithRetry(ctx, url, func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(audio); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("model", c.cfg.WhisperModel); err != nil {
			return nil, "", err
		}
		if language != "" {
			if err := w.WriteField("language", language); err != nil {
				return nil, "", err
			}
		}
		if err := w.WriteField("temperature", "0"); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	})
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrTranscription, err.Error())
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(bodyBytes, &tr); err != nil {
		return "", apperrors.WrapErrorf(apperrors.ErrTranscription, "decode transcription response: %v", err)
	}
	return strings.TrimSpace(tr.Text), nil
}

// Synthesize converts reply text to spoken audio and returns the raw
// wav bytes.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	reqBody := speechRequest{
		Model:          c.cfg.TTSModel,
		Voice:          c.cfg.TTSVoice,
		Input:          text,
		ResponseFormat: "wav",
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrSynthesis, "marshal speech request: %v", err)
	}

	url := fmt.Sprintf("%s/v1/audio/speech", strings.TrimRight(c.cfg.LLMHost, "/"))
	bodyBytes, err := c.doWithRetry(ctx, url, func() (io.Reader, string, error) {
		return bytes.NewReader(jsonBody), "application/json", nil
	})
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrSynthesis, err.Error())
	}
	if len(bodyBytes) == 0 {
		return nil, apperrors.WrapError(apperrors.ErrSynthesis, "speech response was empty")
	}
	return bodyBytes, nil
}

// Embed generates an embedding vector for the provided document.
// Failures here are recoverable: the retriever falls back to keyword
// search when the embedding endpoint is unreachable.
func (c *Client) Embed(ctx context.Context, doc string) ([]float32, error) {
	reqBody := embeddingRequest{Model: "text-embedding-3-small", Input: doc}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/embeddings", strings.TrimRight(c.cfg.EmbeddingHost, "/"))
	bodyBytes, err := c.doWithRetry(ctx, url, func() (io.Reader, string, error) {
		return bytes.NewReader(jsonBody), "application/json", nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}

	var er embeddingResponse
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er.Data) == 0 || len(er.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return er.Data[0].Embedding, nil
}

// doWithRetry posts to url, retrying on transport errors and 429/503
// with exponential backoff. bodyFn rebuilds the request body and
// content type for each attempt.
func (c *Client) doWithRetry(ctx context.Context, url string, bodyFn func() (io.Reader, string, error)) ([]byte, error) {
	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		body, contentType, err := bodyFn()
		if err != nil {
			return nil, fmt.Errorf("build request body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		if c.cfg.LLMAPIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			// Do not retry on context cancellation/deadline
			if ctx.Err() != nil {
				break
			}
			c.backoffSleep(attempt)
			continue
		}

		if r.StatusCode == http.StatusServiceUnavailable || r.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			c.logger.Warn("Provider unavailable, retrying",
				zap.Int("status", r.StatusCode),
				zap.Int("attempt", attempt+1))
			c.backoffSleep(attempt)
			continue
		}

		resp = r
		break
	}
	if resp == nil {
		return nil, fmt.Errorf("no response from provider: %w", lastErr)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider status %s: %s", resp.Status, string(bodyBytes))
	}
	return bodyBytes, nil
}

func (c *Client) backoffSleep(attempt int) {
	// Exponential backoff with configurable jitter and cap
	base := c.cfg.RetryDelaySeconds
	if base <= 0 {
		base = time.Second
	}
	d := base * time.Duration(1<<attempt)
	maxWait := c.cfg.BackoffMaxSeconds
	if maxWait > 0 && d > maxWait {
		d = maxWait
	}
	jitterRatio := c.cfg.BackoffJitterRatio
	if jitterRatio < 0 || jitterRatio > 1 {
		jitterRatio = 0.1
	}
	jitter := time.Duration(float64(d) * jitterRatio)
	time.Sleep(d - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter+1)))
}
