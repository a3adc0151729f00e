package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"lorehub/internal/models"
	"lorehub/internal/synthesis"
)

const (
	requestTimeout = 120 * time.Second

	// Minimum spacing between outgoing requests. Extraction runs issue
	// many calls back to back; without pacing, local inference servers
	// and rate-limited APIs both fall over.
	paceInterval = 50 * time.Millisecond

	maxRetries     = 2
	retryBaseDelay = 500 * time.Millisecond

	defaultMaxTokens = 4096
	errorBodyLimit   = 200
)

// Client talks to one OpenAI-compatible chat completions endpoint. It
// implements synthesis.LLMClient and owns pacing and transient-error
// retries, so callers never sleep or retry themselves.
type Client struct {
	provider    models.Provider
	model       string
	visionModel string

	httpClient *http.Client
	logger     *logrus.Logger
	limiter    *rate.Limiter
}

var _ synthesis.LLMClient = (*Client)(nil)

// NewClient builds a client for the given provider. Empty model or
// visionModel fall back to the provider's defaults; an empty vision
// model falls back to the text model.
func NewClient(provider models.Provider, model, visionModel string) *Client {
	if model == "" {
		model = provider.DefaultModel
	}
	if visionModel == "" {
		visionModel = provider.VisionModel
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Client{
		provider:    provider,
		model:       model,
		visionModel: visionModel,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(paceInterval), 1),
	}
}

// ProviderID returns the backing provider's ID for health bookkeeping.
func (c *Client) ProviderID() int { return c.provider.ID }

// ModelName returns the text model identifier.
func (c *Client) ModelName() string { return c.model }

// VisionModelName returns the vision model identifier, falling back to
// the text model when no dedicated one is configured.
func (c *Client) VisionModelName() string {
	if c.visionModel != "" {
		return c.visionModel
	}
	return c.model
}

// GenerateText runs one chat completion over the text model.
func (c *Client) GenerateText(ctx context.Context, req synthesis.TextRequest) (*synthesis.TextResult, error) {
	messages := make([]map[string]any, 0, 2)
	if sp := strings.TrimSpace(c.provider.SystemPrompt); sp != "" {
		messages = append(messages, map[string]any{"role": "system", "content": sp})
	}
	messages = append(messages, map[string]any{"role": "user", "content": req.Prompt})

	return c.complete(ctx, c.model, messages, req.Temperature, req.MaxTokens, req.JSONMode)
}

// GenerateVision runs one chat completion over the vision model with
// the images inlined as base64 data URLs.
func (c *Client) GenerateVision(ctx context.Context, req synthesis.VisionRequest) (*synthesis.TextResult, error) {
	parts := []map[string]any{
		{"type": "text", "text": req.Prompt},
	}
	for _, img := range req.Images {
		dataURL := fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data))
		parts = append(parts, map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url":    dataURL,
				"detail": "auto",
			},
		})
	}
	messages := []map[string]any{
		{"role": "user", "content": parts},
	}

	return c.complete(ctx, c.VisionModelName(), messages, req.Temperature, req.MaxTokens, false)
}

// buildRequestBody assembles the completion payload with per-family
// parameters. Strict APIs reject unknown fields with 400s, so each knob
// is gated on provider detection rather than sent everywhere.
func (c *Client) buildRequestBody(model string, messages []map[string]any, temperature float64, maxTokens int, jsonMode bool) map[string]any {
	base := strings.ToLower(c.provider.BaseURL)
	name := strings.ToLower(c.provider.Name)
	modelLower := strings.ToLower(model)

	isOpenAI := strings.Contains(base, "openai.com")
	isOpenRouter := strings.Contains(base, "openrouter.ai")
	isGoogle := strings.Contains(base, "googleapis.com") ||
		strings.Contains(base, "generativelanguage") ||
		strings.Contains(name, "google") ||
		strings.Contains(name, "gemini")
	isGLM := strings.Contains(base, "bigmodel.cn") ||
		strings.Contains(name, "glm") ||
		strings.Contains(modelLower, "glm")
	isQwenOrDeepSeek := strings.Contains(base, "dashscope") ||
		strings.Contains(base, "deepseek.com") ||
		strings.Contains(modelLower, "qwen") ||
		strings.Contains(modelLower, "deepseek")

	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": temperature,
	}

	// OpenAI's newer models reject max_tokens in favor of max_completion_tokens.
	if isOpenAI {
		body["max_completion_tokens"] = maxTokens
	} else {
		body["max_tokens"] = maxTokens
	}

	if jsonMode && !isGoogle {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	switch {
	case isGLM:
		body["think"] = false
		body["do_sample"] = true
		body["top_p"] = 0.95
	case isQwenOrDeepSeek && !isGoogle && !isOpenAI && !isOpenRouter:
		body["enable_thinking"] = false
	}

	return body
}

func (c *Client) complete(ctx context.Context, model string, messages []map[string]any, temperature float64, maxTokens int, jsonMode bool) (*synthesis.TextResult, error) {
	payload, err := json.Marshal(c.buildRequestBody(model, messages, temperature, maxTokens, jsonMode))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := strings.TrimSuffix(c.provider.BaseURL, "/") + "/chat/completions"

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			c.logger.WithFields(logrus.Fields{
				"provider": c.provider.Name,
				"model":    model,
				"attempt":  attempt,
				"delay":    delay.String(),
			}).Warn("Retrying LLM request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, retryable, err := c.doRequest(ctx, endpoint, payload, model)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, endpoint string, payload []byte, model string) (*synthesis.TextResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.provider.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.provider.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failures are worth one more try.
		return nil, true, fmt.Errorf("LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusRequestTimeout ||
			resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("LLM API error %d: %s", resp.StatusCode, truncateBody(string(body)))
	}

	var apiResp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage *synthesis.Usage `json:"usage"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, false, fmt.Errorf("failed to parse response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, false, fmt.Errorf("LLM API error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return nil, false, fmt.Errorf("LLM response contained no choices")
	}

	resultModel := apiResp.Model
	if resultModel == "" {
		resultModel = model
	}

	fields := logrus.Fields{
		"provider":    c.provider.Name,
		"model":       resultModel,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if apiResp.Usage != nil {
		fields["total_tokens"] = apiResp.Usage.TotalTokens
	}
	c.logger.WithFields(fields).Info("LLM completion finished")

	return &synthesis.TextResult{
		Text:  apiResp.Choices[0].Message.Content,
		Model: resultModel,
		Usage: apiResp.Usage,
	}, false, nil
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= errorBodyLimit {
		return s
	}
	return s[:errorBodyLimit] + "..."
}
