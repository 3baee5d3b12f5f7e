package state

import "github.com/google/uuid"

// Manager owns all relay state: who is online, which calls are in flight,
// and the message log. Every method is safe for concurrent use. Returned
// User and CallSession values are point-in-time copies.
type Manager interface {
	// --- Presence Registry ---
	// Register claims username for conn with status online. An empty username
	// is a logged no-op. A prior connection holding the same username is
	// removed and returned as evicted so the caller can signal and close it;
	// calls the evicted connection was part of are ended in the same atomic
	// step, with each still-online counterpart reset and returned.
	Register(conn Conn, username string) (user *User, evicted *User, counterparts []*User)
	LookupByConnection(connID uuid.UUID) (*User, bool)
	LookupByUsername(username string) (*User, bool)
	SetStatus(connID uuid.UUID, status Status)
	Remove(connID uuid.UUID) (*User, bool)
	// Snapshot returns a consistent copy of all users, sorted by username.
	Snapshot() []User

	// --- Call Session Table ---
	// StartCall creates a ringing session, overwriting a stale one for the pair.
	StartCall(caller, recipient, callType string) CallSession
	// AnswerCall moves the pair's session to active, but only when answerer is
	// the session's recipient and caller its originator.
	AnswerCall(answerer, caller string) (CallSession, bool)
	// EndCall removes the pair's session under either ordering; idempotent.
	EndCall(a, b string) bool
	// EndAllCallsFor removes every session naming username and returns the
	// counterparts in deterministic order.
	EndAllCallsFor(username string) []CallEnd

	// --- Message Log ---
	AppendMessage(msg Message)
	// MessagesBetween returns all messages whose unordered {from,to} pair is
	// {user1,user2}, in insertion order.
	MessagesBetween(user1, user2 string) []Message

	// --- Compound Transitions ---
	// BeginCall atomically checks that the caller is identified and the
	// recipient online, marks both as calling and creates the ringing session.
	BeginCall(callerConnID uuid.UUID, to, callType string) (caller, recipient *User, ok bool)
	// FinishCall resets the caller's (and, when still online, the
	// counterpart's) status to online and removes the pair's session.
	FinishCall(connID uuid.UUID, to string) (self, other *User, ok bool)
	// Disconnect removes the connection's user and every call naming them.
	// Counterparts still online are reset to online and returned.
	Disconnect(connID uuid.UUID) (removed *User, counterparts []*User)

	// --- Ring Expiry ---
	// OnRingExpiry installs the callback invoked when a ringing call outlives
	// the configured timeout. Must be set before the first StartCall.
	OnRingExpiry(fn func(caller, recipient string))
	// ExpireCall removes the pair's session if it is still ringing, resetting
	// both participants to online.
	ExpireCall(caller, recipient string) (callerUser, recipientUser *User, ok bool)
}
