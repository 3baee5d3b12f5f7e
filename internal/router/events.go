package router

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Srivijai-S/server-chat/pkg/state"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// handleLogin claims a username for the connection. A duplicate login wins:
// the prior connection is told to log out, its calls are ended, and it is
// closed. Presence is re-broadcast either way.
func (r *EventRouter) handleLogin(conn state.Conn, payload json.RawMessage) {
	username := gjson.ParseBytes(payload).String()

	user, evicted, counterparts := r.manager.Register(conn, username)
	if user == nil {
		return
	}
	r.logger.Info("User logged in", slog.String("username", username), slog.String("connID", conn.ID().String()))

	if evicted != nil {
		r.emit(evicted.Conn, EventForceLogout, nil)
		for _, other := range counterparts {
			r.emit(other.Conn, EventCallEnded, nil)
		}
		evicted.Conn.Close(errors.New("replaced by a newer login"))
	}

	r.broadcastUsers()
}

// IngestMessage encrypts and appends one chat message, then relays it to the
// recipient when they are online. Both the live send-message path and the
// REST submission path land here. The reported delivered flag is false when
// the recipient had no connection.
func (r *EventRouter) IngestMessage(from, to, content string) (state.Message, bool, error) {
	ciphertext, err := r.cipher.Encrypt(content)
	if err != nil {
		return state.Message{}, false, err
	}

	msg := state.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		From:      from,
		To:        to,
		Content:   ciphertext,
		Timestamp: time.Now().UTC(),
		Encrypted: true,
	}
	r.manager.AppendMessage(msg)

	recipient, ok := r.manager.LookupByUsername(to)
	if !ok {
		return msg, false, nil
	}

	// The recipient gets the stored record with the body readable; the
	// ciphertext only ever leaves the log through the REST decrypt path.
	delivered := msg
	delivered.Content = content
	r.emit(recipient.Conn, EventMessageReceived, delivered)
	return msg, true, nil
}

func (r *EventRouter) handleSendMessage(conn state.Conn, payload json.RawMessage) {
	sender, ok := r.manager.LookupByConnection(conn.ID())
	if !ok {
		r.logger.Debug("Dropping send-message from unidentified connection", "connID", conn.ID())
		return
	}
	to := payloadField(payload, "to")
	if to == "" {
		r.logger.Warn("Dropping send-message without recipient", slog.String("from", sender.Username))
		return
	}
	content := payloadField(payload, "content")

	_, deliveredLive, err := r.IngestMessage(sender.Username, to, content)
	if err != nil {
		r.logger.Error("Failed to store message", slog.Any("error", err))
		return
	}
	if !deliveredLive {
		r.deliveryFailed(conn, EventSendMessage, to)
	}
}

func (r *EventRouter) handleInitiateCall(conn state.Conn, payload json.RawMessage) {
	to := payloadField(payload, "to")
	callType := payloadField(payload, "type")

	caller, recipient, ok := r.manager.BeginCall(conn.ID(), to, callType)
	if !ok {
		r.deliveryFailed(conn, EventInitiateCall, to)
		return
	}
	r.logger.Info("Call initiated",
		slog.String("caller", caller.Username),
		slog.String("recipient", recipient.Username),
		slog.String("type", callType),
	)

	r.emit(recipient.Conn, EventCallIncoming, payload)
	r.broadcastUsers()
}

func (r *EventRouter) handleAnswerCall(conn state.Conn, payload json.RawMessage) {
	answerer, ok := r.manager.LookupByConnection(conn.ID())
	if !ok {
		return
	}
	to := payloadField(payload, "to")

	// Only the ringing session's recipient may move it to active.
	if _, ok := r.manager.AnswerCall(answerer.Username, to); !ok {
		r.logger.Debug("Ignoring answer-call without a matching session",
			slog.String("answerer", answerer.Username), slog.String("to", to))
		return
	}
	caller, ok := r.manager.LookupByUsername(to)
	if !ok {
		return
	}
	r.emit(caller.Conn, EventCallAnswered, payload)
}

func (r *EventRouter) handleEndCall(conn state.Conn, payload json.RawMessage) {
	to := payloadField(payload, "to")

	self, other, ok := r.manager.FinishCall(conn.ID(), to)
	if !ok {
		return
	}
	r.logger.Info("Call ended", slog.String("by", self.Username), slog.String("with", to))

	if other != nil {
		r.emit(other.Conn, EventCallEnded, nil)
	}
	r.broadcastUsers()
}

// handleICECandidate is a pure relay: no state changes.
func (r *EventRouter) handleICECandidate(conn state.Conn, payload json.RawMessage) {
	if _, ok := r.manager.LookupByConnection(conn.ID()); !ok {
		return
	}
	to := payloadField(payload, "to")
	candidate := gjson.GetBytes(payload, "candidate")
	if !candidate.Exists() {
		return
	}
	recipient, ok := r.manager.LookupByUsername(to)
	if !ok {
		r.deliveryFailed(conn, EventICECandidate, to)
		return
	}
	r.emit(recipient.Conn, EventICECandidate, json.RawMessage(candidate.Raw))
}

// handleRingExpiry fires from the session table's ring timer: the call ends
// as if it had been declined.
func (r *EventRouter) handleRingExpiry(caller, recipient string) {
	callerUser, recipientUser, ok := r.manager.ExpireCall(caller, recipient)
	if !ok {
		return
	}
	if callerUser != nil {
		r.emit(callerUser.Conn, EventCallEnded, nil)
	}
	if recipientUser != nil {
		r.emit(recipientUser.Conn, EventCallEnded, nil)
	}
	r.broadcastUsers()
}
