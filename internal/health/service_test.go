package health

import (
	"testing"
	"time"
)

func testGetter(provider *ProviderInfo) ProviderGetter {
	return func(id int) (*ProviderInfo, error) {
		return provider, nil
	}
}

// TestRegisterProviderIdempotent tests that re-registering does not reset
// accumulated state
func TestRegisterProviderIdempotent(t *testing.T) {
	s := NewService(testGetter(nil), 3, time.Hour)

	s.RegisterProvider(CapabilityText, 1, "OpenAI", "gpt-4o-mini", 10)
	s.MarkUnhealthy(CapabilityText, 1, "gpt-4o-mini", "boom", 0)
	s.RegisterProvider(CapabilityText, 1, "OpenAI", "gpt-4o-mini", 10)

	providers := s.GetAllProviders(CapabilityText)
	if len(providers) != 1 {
		t.Fatalf("Expected 1 provider, got %d", len(providers))
	}
	if providers[0].FailureCount != 1 {
		t.Errorf("Expected failure count 1 after re-register, got %d", providers[0].FailureCount)
	}
}

// TestFailureThreshold tests that a provider only goes unhealthy after
// the configured number of failures
func TestFailureThreshold(t *testing.T) {
	s := NewService(testGetter(nil), 3, time.Hour)
	s.RegisterProvider(CapabilityText, 1, "OpenAI", "gpt-4o-mini", 0)

	s.MarkUnhealthy(CapabilityText, 1, "gpt-4o-mini", "timeout", 0)
	s.MarkUnhealthy(CapabilityText, 1, "gpt-4o-mini", "timeout", 0)
	if !s.IsProviderHealthy(CapabilityText, 1, "gpt-4o-mini") {
		t.Error("Expected provider to stay healthy below the failure threshold")
	}

	s.MarkUnhealthy(CapabilityText, 1, "gpt-4o-mini", "timeout", 0)
	if s.IsProviderHealthy(CapabilityText, 1, "gpt-4o-mini") {
		t.Error("Expected provider to be unhealthy after reaching the threshold")
	}
}

// TestMarkHealthyResetsFailures tests recovery after a success
func TestMarkHealthyResetsFailures(t *testing.T) {
	s := NewService(testGetter(nil), 2, time.Hour)
	s.RegisterProvider(CapabilityText, 1, "OpenAI", "gpt-4o-mini", 0)

	s.MarkUnhealthy(CapabilityText, 1, "gpt-4o-mini", "timeout", 0)
	s.MarkUnhealthy(CapabilityText, 1, "gpt-4o-mini", "timeout", 0)
	if s.IsProviderHealthy(CapabilityText, 1, "gpt-4o-mini") {
		t.Fatal("Expected provider to be unhealthy")
	}

	s.MarkHealthy(CapabilityText, 1, "gpt-4o-mini")
	if !s.IsProviderHealthy(CapabilityText, 1, "gpt-4o-mini") {
		t.Error("Expected provider to recover after a success")
	}

	providers := s.GetAllProviders(CapabilityText)
	if providers[0].FailureCount != 0 {
		t.Errorf("Expected failure count reset, got %d", providers[0].FailureCount)
	}
	if providers[0].LastError != "" {
		t.Errorf("Expected last error cleared, got %q", providers[0].LastError)
	}
}

// TestCooldownExpiry tests that a cooled-down provider becomes available
// again once the window passes
func TestCooldownExpiry(t *testing.T) {
	s := NewService(testGetter(nil), 3, time.Hour)
	s.RegisterProvider(CapabilityText, 1, "OpenAI", "gpt-4o-mini", 0)

	s.SetCooldown(CapabilityText, 1, "gpt-4o-mini", 50*time.Millisecond)
	if s.IsProviderHealthy(CapabilityText, 1, "gpt-4o-mini") {
		t.Error("Expected provider in cooldown to be unavailable")
	}

	time.Sleep(60 * time.Millisecond)
	if !s.IsProviderHealthy(CapabilityText, 1, "gpt-4o-mini") {
		t.Error("Expected provider to be available after cooldown expired")
	}
}

// TestUnregisteredProviderAssumedHealthy tests the default for providers
// the health layer has never seen
func TestUnregisteredProviderAssumedHealthy(t *testing.T) {
	s := NewService(testGetter(nil), 3, time.Hour)
	if !s.IsProviderHealthy(CapabilityText, 99, "unknown-model") {
		t.Error("Expected unregistered provider to be assumed healthy")
	}
}

// TestCapabilitiesTrackedSeparately tests that text and vision health are
// independent for the same provider
func TestCapabilitiesTrackedSeparately(t *testing.T) {
	s := NewService(testGetter(nil), 1, time.Hour)
	s.RegisterProvider(CapabilityText, 1, "OpenAI", "gpt-4o-mini", 0)
	s.RegisterProvider(CapabilityVision, 1, "OpenAI", "gpt-4o", 0)

	s.MarkUnhealthy(CapabilityVision, 1, "gpt-4o", "vision down", 0)

	if !s.IsProviderHealthy(CapabilityText, 1, "gpt-4o-mini") {
		t.Error("Expected text capability to stay healthy")
	}
	if s.IsProviderHealthy(CapabilityVision, 1, "gpt-4o") {
		t.Error("Expected vision capability to be unhealthy")
	}
}

// TestCheckProviderHealthWithoutStrategy tests the enabled-flag fallback
// when no strategy is registered
func TestCheckProviderHealthWithoutStrategy(t *testing.T) {
	enabled := &ProviderInfo{ID: 1, Name: "OpenAI", Enabled: true}
	s := NewService(testGetter(enabled), 3, time.Hour)
	s.RegisterProvider(CapabilityText, 1, "OpenAI", "gpt-4o-mini", 0)

	if err := s.CheckProviderHealth(CapabilityText, 1, "gpt-4o-mini"); err != nil {
		t.Errorf("Expected check to pass for enabled provider: %v", err)
	}

	disabled := &ProviderInfo{ID: 1, Name: "OpenAI", Enabled: false}
	s2 := NewService(testGetter(disabled), 3, time.Hour)
	s2.RegisterProvider(CapabilityText, 1, "OpenAI", "gpt-4o-mini", 0)

	if err := s2.CheckProviderHealth(CapabilityText, 1, "gpt-4o-mini"); err == nil {
		t.Error("Expected check to fail for disabled provider")
	}
}

// TestCheckProviderHealthUnregistered tests checking a provider that was
// never registered
func TestCheckProviderHealthUnregistered(t *testing.T) {
	s := NewService(testGetter(nil), 3, time.Hour)
	if err := s.CheckProviderHealth(CapabilityText, 42, "missing"); err == nil {
		t.Error("Expected error for unregistered provider")
	}
}

// TestGetStatus tests the aggregate status summary
func TestGetStatus(t *testing.T) {
	s := NewService(testGetter(nil), 1, time.Hour)
	s.RegisterProvider(CapabilityText, 1, "A", "m1", 0)
	s.RegisterProvider(CapabilityText, 2, "B", "m2", 0)
	s.MarkHealthy(CapabilityText, 1, "m1")
	s.MarkUnhealthy(CapabilityText, 2, "m2", "down", 0)

	status := s.GetStatus()
	if status["total"].(int) != 2 {
		t.Errorf("Expected total 2, got %v", status["total"])
	}

	caps := status["capabilities"].(map[string]map[string]int)
	textStats, ok := caps["text"]
	if !ok {
		t.Fatal("Expected text capability in status")
	}
	if textStats["healthy"] != 1 || textStats["unhealthy"] != 1 {
		t.Errorf("Expected 1 healthy and 1 unhealthy, got %+v", textStats)
	}
}

// TestIsQuotaError tests quota pattern detection
func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		want       bool
	}{
		{"429 status", 429, "", true},
		{"quota exceeded body", 200, `{"error": "Quota exceeded for this billing period"}`, true},
		{"rate limit body", 400, "rate limit reached", true},
		{"insufficient quota", 403, "insufficient_quota", true},
		{"plain error", 500, "internal server error", false},
		{"ok", 200, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsQuotaError(tt.statusCode, tt.body); got != tt.want {
				t.Errorf("IsQuotaError(%d, %q) = %v, want %v", tt.statusCode, tt.body, got, tt.want)
			}
		})
	}
}

// TestParseCooldownDuration tests cooldown sizing per error class
func TestParseCooldownDuration(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		want       time.Duration
	}{
		{"daily limit", 429, "daily limit exceeded", 24 * time.Hour},
		{"billing", 403, "billing hard limit reached", 24 * time.Hour},
		{"per-minute rate limit", 429, "", 5 * time.Minute},
		{"tokens per minute", 400, "tokens per minute exceeded", 5 * time.Minute},
		{"generic", 500, "something else", time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCooldownDuration(tt.statusCode, tt.body); got != tt.want {
				t.Errorf("ParseCooldownDuration(%d, %q) = %v, want %v", tt.statusCode, tt.body, got, tt.want)
			}
		})
	}
}
