package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Srivijai-S/server-chat/pkg/state"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (a *App) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("Failed to encode response body", slog.Any("error", err))
	}
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *App) usersHandler(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.manager.Snapshot())
}

// messagesHandler returns the conversation between two users with the stored
// bodies decrypted. An undecryptable body is a hard failure: the log entry is
// unreadable and silently returning ciphertext would be worse.
func (a *App) messagesHandler(w http.ResponseWriter, r *http.Request) {
	user1 := r.PathValue("user1")
	user2 := r.PathValue("user2")

	stored := a.manager.MessagesBetween(user1, user2)
	out := make([]state.Message, 0, len(stored))
	for _, msg := range stored {
		if msg.Encrypted {
			plaintext, err := a.cipher.Decrypt(msg.Content)
			if err != nil {
				a.logger.Error("Failed to decrypt stored message", slog.String("messageID", msg.ID), slog.Any("error", err))
				a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to decrypt message"})
				return
			}
			msg.Content = plaintext
		}
		out = append(out, msg)
	}
	a.writeJSON(w, http.StatusOK, out)
}

type postMessageRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Content string `json:"content"`
}

func (a *App) postMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.From == "" || req.To == "" || req.Content == "" {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing required fields"})
		return
	}

	msg, _, err := a.eventRouter.IngestMessage(req.From, req.To, req.Content)
	if err != nil {
		a.logger.Error("Failed to store message", slog.Any("error", err))
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to store message"})
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"messageId": msg.ID,
	})
}
