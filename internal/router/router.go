// Package router is the relay's state machine: it applies inbound events to
// the state manager and emits targeted or broadcast events to connections.
package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Srivijai-S/server-chat/internal/cryptox"
	"github.com/Srivijai-S/server-chat/pkg/config"
	"github.com/Srivijai-S/server-chat/pkg/state"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

type EventRouter struct {
	logger  *slog.Logger
	manager state.Manager
	cipher  *cryptox.Cipher
	cfg     config.RelayConfig
}

func NewEventRouter(logger *slog.Logger, manager state.Manager, cipher *cryptox.Cipher, cfg config.RelayConfig) *EventRouter {
	r := &EventRouter{
		logger:  logger.With(slog.String("component", "event_router")),
		manager: manager,
		cipher:  cipher,
		cfg:     cfg,
	}
	manager.OnRingExpiry(r.handleRingExpiry)
	return r
}

// HandleMessage dispatches one inbound frame from a connection. Events with
// missing preconditions are dropped without feedback: the relay is
// best-effort, not guaranteed delivery.
func (r *EventRouter) HandleMessage(ctx context.Context, conn state.Conn, msg []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("Failed to unmarshal client message", "connID", conn.ID(), "error", err)
		return
	}

	switch clientMsg.Event {
	case EventUserLogin:
		r.handleLogin(conn, clientMsg.Payload)
	case EventSendMessage:
		r.handleSendMessage(conn, clientMsg.Payload)
	case EventInitiateCall:
		r.handleInitiateCall(conn, clientMsg.Payload)
	case EventAnswerCall:
		r.handleAnswerCall(conn, clientMsg.Payload)
	case EventEndCall:
		r.handleEndCall(conn, clientMsg.Payload)
	case EventICECandidate:
		r.handleICECandidate(conn, clientMsg.Payload)
	default:
		r.logger.Warn("Received unknown event", "event", clientMsg.Event, "connID", conn.ID())
	}
}

// HandleDisconnect tears down the connection's user and any calls naming
// them, notifying each counterpart exactly once.
func (r *EventRouter) HandleDisconnect(connID uuid.UUID, err error) {
	removed, counterparts := r.manager.Disconnect(connID)
	if removed == nil {
		return
	}
	r.logger.Info("User disconnected", slog.String("username", removed.Username), slog.Any("reason", err))

	for _, other := range counterparts {
		r.emit(other.Conn, EventCallEnded, nil)
	}
	r.broadcastUsers()
}

// emit marshals one envelope and queues it on the target connection.
func (r *EventRouter) emit(conn state.Conn, event string, payload any) {
	if conn == nil {
		return
	}
	b, err := json.Marshal(ServerMessage{Event: event, Payload: payload})
	if err != nil {
		r.logger.Error("Failed to marshal outbound event", slog.String("event", event), slog.Any("error", err))
		return
	}
	conn.Send(b)
}

// broadcastUsers sends the same presence snapshot bytes to every connection.
func (r *EventRouter) broadcastUsers() {
	snapshot := r.manager.Snapshot()
	b, err := json.Marshal(ServerMessage{Event: EventUsersUpdated, Payload: snapshot})
	if err != nil {
		r.logger.Error("Failed to marshal presence broadcast", slog.Any("error", err))
		return
	}
	for i := range snapshot {
		snapshot[i].Conn.Send(b)
	}
}

// deliveryFailed reports a dropped targeted relay back to the sender, but
// only when the feedback flag is on; the default contract is a silent drop.
func (r *EventRouter) deliveryFailed(sender state.Conn, event, to string) {
	r.logger.Debug("Dropping event for offline recipient", slog.String("event", event), slog.String("to", to))
	if !r.cfg.DeliveryFailureEvents {
		return
	}
	r.emit(sender, EventDeliveryFailed, DeliveryFailure{Event: event, To: to})
}

func payloadField(payload json.RawMessage, field string) string {
	return gjson.GetBytes(payload, field).String()
}
