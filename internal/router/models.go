package router

import "encoding/json"

// Inbound event names.
const (
	EventUserLogin    = "user-login"
	EventSendMessage  = "send-message"
	EventInitiateCall = "initiate-call"
	EventAnswerCall   = "answer-call"
	EventEndCall      = "end-call"
	EventICECandidate = "ice-candidate"
)

// Outbound event names.
const (
	EventUsersUpdated    = "users-updated"
	EventMessageReceived = "message-received"
	EventCallIncoming    = "call-incoming"
	EventCallAnswered    = "call-answered"
	EventCallEnded       = "call-ended"
	EventForceLogout     = "force-logout"
	EventDeliveryFailed  = "delivery-failed"
)

// ClientMessage is the inbound frame envelope.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage is the outbound frame envelope.
type ServerMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// DeliveryFailure is the optional feedback payload when a targeted relay
// finds the recipient offline.
type DeliveryFailure struct {
	Event string `json:"event"`
	To    string `json:"to"`
}
