package health

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// --- Text Health Check Strategy ---

// TextHealthCheck tests a text provider with a minimal completion request
type TextHealthCheck struct{}

func (c *TextHealthCheck) Capability() CapabilityType { return CapabilityText }

func (c *TextHealthCheck) Check(entry *ProviderHealth, getter ProviderGetter) (int, error) {
	provider, err := getter(entry.ProviderID)
	if err != nil {
		return 0, fmt.Errorf("provider lookup failed: %w", err)
	}
	if !provider.Enabled {
		return 0, fmt.Errorf("provider %s is disabled", provider.Name)
	}

	modelName := entry.ModelName
	if modelName == "" {
		return 0, fmt.Errorf("no model specified for text health check")
	}

	isOpenAI := strings.Contains(strings.ToLower(provider.BaseURL), "openai.com")
	requestBody := map[string]interface{}{
		"model": modelName,
		"messages": []map[string]interface{}{
			{"role": "user", "content": "hi"},
		},
	}
	if isOpenAI {
		requestBody["max_completion_tokens"] = 1
	} else {
		requestBody["max_tokens"] = 1
	}

	return doHealthCheckRequest(provider, requestBody)
}

// --- Vision Health Check Strategy ---

// VisionHealthCheck tests a vision provider with a minimal 1x1 PNG image
type VisionHealthCheck struct{}

func (v *VisionHealthCheck) Capability() CapabilityType { return CapabilityVision }

func (v *VisionHealthCheck) Check(entry *ProviderHealth, getter ProviderGetter) (int, error) {
	provider, err := getter(entry.ProviderID)
	if err != nil {
		return 0, fmt.Errorf("provider lookup failed: %w", err)
	}
	if !provider.Enabled {
		return 0, fmt.Errorf("provider %s is disabled", provider.Name)
	}

	imgBytes := generateTestImage()
	base64Image := base64.StdEncoding.EncodeToString(imgBytes)
	dataURL := fmt.Sprintf("data:image/png;base64,%s", base64Image)

	isOpenAI := strings.Contains(strings.ToLower(provider.BaseURL), "openai.com")
	requestBody := map[string]interface{}{
		"model": entry.ModelName,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": "What color is this image? Reply in one word."},
					{"type": "image_url", "image_url": map[string]interface{}{
						"url":    dataURL,
						"detail": "low",
					}},
				},
			},
		},
	}
	if isOpenAI {
		requestBody["max_completion_tokens"] = 10
	} else {
		requestBody["max_tokens"] = 10
	}

	return doHealthCheckRequest(provider, requestBody)
}

// generateTestImage creates a minimal 1x1 pixel red PNG for health checks
func generateTestImage() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53,
		0xde, 0x00, 0x00, 0x00, 0x0c, 0x49, 0x44, 0x41,
		0x54, 0x08, 0xd7, 0x63, 0xf8, 0xcf, 0xc0, 0x00,
		0x00, 0x00, 0x02, 0x00, 0x01, 0xe2, 0x21, 0xbc,
		0x33, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
		0x44, 0xae, 0x42, 0x60, 0x82,
	}
}

// doHealthCheckRequest makes a chat completion request for health checking
func doHealthCheckRequest(provider *ProviderInfo, requestBody map[string]interface{}) (int, error) {
	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal health check request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(provider.BaseURL, "/"))
	httpReq, err := http.NewRequest("POST", apiURL, bytes.NewReader(requestJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to create health check request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", provider.APIKey))

	client := &http.Client{Timeout: 30 * time.Second}
	startTime := time.Now()

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	latencyMs := int(time.Since(startTime).Milliseconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return latencyMs, fmt.Errorf("failed to read health check response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyStr := string(body)
		if IsQuotaError(resp.StatusCode, bodyStr) {
			return latencyMs, fmt.Errorf("quota exceeded: %s", bodyStr)
		}
		return latencyMs, fmt.Errorf("health check API error %d: %s", resp.StatusCode, bodyStr)
	}

	return latencyMs, nil
}
