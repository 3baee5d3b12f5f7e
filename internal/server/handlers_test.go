package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Srivijai-S/server-chat/pkg/config"
	"github.com/Srivijai-S/server-chat/pkg/state"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		Server:    config.ServerConfig{Address: ":0"},
		Transport: config.TransportConfig{ReadTimeout: time.Minute, WriteTimeout: 10 * time.Second},
	}
	app, err := NewApp(newTestLogger(), context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return app
}

func doRequest(app *App, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	app.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshaling health body: %v", err)
	}
	if body.Status != "OK" {
		t.Errorf("Expected status OK, got %q", body.Status)
	}
	if _, err := time.Parse(time.RFC3339, body.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339: %v", body.Timestamp, err)
	}
}

func TestUsersEndpointEmpty(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodGet, "/api/users", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var users []state.User
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("Unmarshaling users: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("Expected empty user list, got %d entries", len(users))
	}
}

func TestPostMessageValidation(t *testing.T) {
	app := newTestApp(t)

	cases := []string{
		`{}`,
		`{"from":"alice"}`,
		`{"from":"alice","to":"bob"}`,
		`{"to":"bob","content":"hi"}`,
		`{"from":"alice","content":"hi"}`,
	}
	for _, body := range cases {
		rec := doRequest(app, http.MethodPost, "/api/messages", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Body %s: expected 400, got %d", body, rec.Code)
		}
		var resp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error == "" {
			t.Errorf("Body %s: expected an error message, got %s", body, rec.Body.String())
		}
	}

	rec := doRequest(app, http.MethodPost, "/api/messages", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Malformed JSON: expected 400, got %d", rec.Code)
	}
}

func TestPostThenGetMessages(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(app, http.MethodPost, "/api/messages", `{"from":"alice","to":"bob","content":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var posted struct {
		Success   bool   `json:"success"`
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &posted); err != nil {
		t.Fatalf("Unmarshaling post response: %v", err)
	}
	if !posted.Success || posted.MessageID == "" {
		t.Fatalf("Unexpected post response: %+v", posted)
	}

	// The log keeps ciphertext only.
	stored := app.manager.MessagesBetween("alice", "bob")
	if len(stored) != 1 || !stored[0].Encrypted || stored[0].Content == "hi" {
		t.Fatalf("Expected one encrypted stored message, got %+v", stored)
	}

	// The read path decrypts, in either participant order.
	for _, target := range []string{"/api/messages/alice/bob", "/api/messages/bob/alice"} {
		rec = doRequest(app, http.MethodGet, target, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", target, rec.Code)
		}
		var msgs []state.Message
		if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
			t.Fatalf("Unmarshaling messages: %v", err)
		}
		if len(msgs) != 1 || msgs[0].Content != "hi" {
			t.Errorf("GET %s: expected one message with content 'hi', got %+v", target, msgs)
		}
		if msgs[0].ID != posted.MessageID {
			t.Errorf("GET %s: message ID mismatch", target)
		}
	}

	// Unrelated pairs see nothing.
	rec = doRequest(app, http.MethodGet, "/api/messages/alice/carol", "")
	var msgs []state.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("Unmarshaling messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected no messages for alice/carol, got %d", len(msgs))
	}
}

func TestGetMessagesUndecryptableIs500(t *testing.T) {
	app := newTestApp(t)
	app.manager.AppendMessage(state.Message{
		ID:        "bad",
		From:      "alice",
		To:        "bob",
		Content:   "deadbeef:deadbeef",
		Timestamp: time.Now().UTC(),
		Encrypted: true,
	})

	rec := doRequest(app, http.MethodGet, "/api/messages/alice/bob", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500 on undecryptable content, got %d", rec.Code)
	}
}
