package handlers

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"lorehub/internal/services"
	"lorehub/pkg/auth"
)

func newTestJWTAuth(t *testing.T) *auth.LocalJWTAuth {
	t.Helper()
	jwtAuth, err := auth.NewLocalJWTAuth("test-secret-key", 0, 0)
	if err != nil {
		t.Fatalf("Failed to create JWT auth: %v", err)
	}
	return jwtAuth
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	var result map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			t.Fatalf("Failed to parse JSON %q: %v", raw, err)
		}
	}
	return resp.StatusCode, result
}

// TestRegisterValidation tests that malformed registrations are rejected
// before any account is touched
func TestRegisterValidation(t *testing.T) {
	app := fiber.New()
	handler := NewLocalAuthHandler(newTestJWTAuth(t), nil)
	app.Post("/api/auth/register", handler.Register)

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{not json`},
		{"missing email", `{"password": "Sup3rSecret!"}`},
		{"email without at sign", `{"email": "nobody", "password": "Sup3rSecret!"}`},
		{"password too short", `{"email": "a@b.com", "password": "Ab1!"}`},
		{"password without special char", `{"email": "a@b.com", "password": "Password123"}`},
		{"password without digit", `{"email": "a@b.com", "password": "Password!!!"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, result := doJSON(t, app, "POST", "/api/auth/register", tt.body)
			if status != fiber.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", status)
			}
			if result["error"] == nil {
				t.Error("Expected error message in response")
			}
		})
	}
}

// TestRefreshTokenRequiresToken tests that refresh without any token is
// rejected
func TestRefreshTokenRequiresToken(t *testing.T) {
	app := fiber.New()
	handler := NewLocalAuthHandler(newTestJWTAuth(t), nil)
	app.Post("/api/auth/refresh", handler.RefreshToken)

	status, result := doJSON(t, app, "POST", "/api/auth/refresh", "")
	if status != fiber.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", status)
	}
	if result["error"] == nil {
		t.Error("Expected error message in response")
	}
}

// TestRefreshTokenRejectsGarbage tests that a non-JWT refresh token is
// rejected as unauthorized
func TestRefreshTokenRejectsGarbage(t *testing.T) {
	app := fiber.New()
	handler := NewLocalAuthHandler(newTestJWTAuth(t), nil)
	app.Post("/api/auth/refresh", handler.RefreshToken)

	status, _ := doJSON(t, app, "POST", "/api/auth/refresh", `{"refresh_token": "not-a-jwt"}`)
	if status != fiber.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", status)
	}
}

// TestLogout tests that logout succeeds without an authenticated user
func TestLogout(t *testing.T) {
	app := fiber.New()
	handler := NewLocalAuthHandler(newTestJWTAuth(t), nil)
	app.Post("/api/auth/logout", handler.Logout)

	status, result := doJSON(t, app, "POST", "/api/auth/logout", "")
	if status != fiber.StatusOK {
		t.Errorf("Expected status 200, got %d", status)
	}
	if result["message"] == nil {
		t.Error("Expected message in response")
	}
}

// TestGetCurrentUserRequiresAuth tests that /me without auth context is
// rejected
func TestGetCurrentUserRequiresAuth(t *testing.T) {
	app := fiber.New()
	handler := NewLocalAuthHandler(newTestJWTAuth(t), nil)
	app.Get("/api/auth/me", handler.GetCurrentUser)

	status, _ := doJSON(t, app, "GET", "/api/auth/me", "")
	if status != fiber.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", status)
	}
}

// TestQuestionsRejectsUnknownStatus tests the question status filter
// validation
func TestQuestionsRejectsUnknownStatus(t *testing.T) {
	app := fiber.New()
	handler := NewKnowledgeHandler(nil, nil)
	app.Get("/api/projects/:id/knowledge/questions", handler.Questions)

	status, result := doJSON(t, app, "GET", "/api/projects/proj-1/knowledge/questions?status=bogus", "")
	if status != fiber.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", status)
	}
	if result["error"] == nil {
		t.Error("Expected error message in response")
	}
}

// TestActionsRejectsUnknownStatus tests the action status filter
// validation
func TestActionsRejectsUnknownStatus(t *testing.T) {
	app := fiber.New()
	handler := NewKnowledgeHandler(nil, nil)
	app.Get("/api/projects/:id/knowledge/actions", handler.Actions)

	status, _ := doJSON(t, app, "GET", "/api/projects/proj-1/knowledge/actions?status=nope", "")
	if status != fiber.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", status)
	}
}

// TestResolveQuestionRequiresAnswer tests that resolving without an
// answer is rejected
func TestResolveQuestionRequiresAnswer(t *testing.T) {
	app := fiber.New()
	handler := NewKnowledgeHandler(nil, nil)
	app.Post("/api/projects/:id/knowledge/questions/:questionId/resolve", handler.ResolveQuestion)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"whitespace answer", `{"answer": "   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, result := doJSON(t, app, "POST", "/api/projects/proj-1/knowledge/questions/q-1/resolve", tt.body)
			if status != fiber.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", status)
			}
			if result["error"] == nil {
				t.Error("Expected error message in response")
			}
		})
	}
}

// TestAssignQuestionRequiresAssignee tests that assigning without an
// assignee is rejected
func TestAssignQuestionRequiresAssignee(t *testing.T) {
	app := fiber.New()
	handler := NewKnowledgeHandler(nil, nil)
	app.Post("/api/projects/:id/knowledge/questions/:questionId/assign", handler.AssignQuestion)

	status, _ := doJSON(t, app, "POST", "/api/projects/proj-1/knowledge/questions/q-1/assign", `{"assignee": ""}`)
	if status != fiber.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", status)
	}
}

// TestLimitParam tests query limit parsing and clamping
func TestLimitParam(t *testing.T) {
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"limit": limitParam(c, 100, 500)})
	})

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"default", "/items", 100},
		{"explicit", "/items?limit=50", 50},
		{"clamped to max", "/items?limit=9999", 500},
		{"negative falls back", "/items?limit=-3", 100},
		{"zero falls back", "/items?limit=0", 100},
		{"garbage falls back", "/items?limit=abc", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, result := doJSON(t, app, "GET", tt.target, "")
			if status != fiber.StatusOK {
				t.Fatalf("Expected status 200, got %d", status)
			}
			limit, ok := result["limit"].(float64)
			if !ok {
				t.Fatal("Expected 'limit' to be a number")
			}
			if int(limit) != tt.want {
				t.Errorf("Expected limit %d, got %d", tt.want, int(limit))
			}
		})
	}
}

// TestProgressMessageEnvelope tests that progress frames flatten the
// update fields next to the type marker
func TestProgressMessageEnvelope(t *testing.T) {
	msg := progressMessage{
		Type: "progress",
		ProgressUpdate: services.ProgressUpdate{
			ProjectID: "proj-1",
			Progress:  42,
			Message:   "Synthesizing facts",
			Status:    "running",
		},
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if decoded["type"] != "progress" {
		t.Errorf("Expected type 'progress', got %v", decoded["type"])
	}
	if decoded["project_id"] != "proj-1" {
		t.Errorf("Expected project_id 'proj-1', got %v", decoded["project_id"])
	}
	if progress, _ := decoded["progress"].(float64); int(progress) != 42 {
		t.Errorf("Expected progress 42, got %v", decoded["progress"])
	}
	if decoded["status"] != "running" {
		t.Errorf("Expected status 'running', got %v", decoded["status"])
	}
}

// TestTriggerRequestDecoding tests the synthesis trigger payload
// defaults
func TestTriggerRequestDecoding(t *testing.T) {
	var req TriggerRequest
	if err := json.Unmarshal([]byte(`{"force_full": true}`), &req); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if !req.ForceFull {
		t.Error("Expected ForceFull to be true")
	}

	req = TriggerRequest{}
	if err := json.Unmarshal([]byte(`{}`), &req); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if req.ForceFull {
		t.Error("Expected ForceFull to default to false")
	}
}
