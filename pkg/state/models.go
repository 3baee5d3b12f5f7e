package state

import (
	"time"

	"github.com/google/uuid"
)

// Conn is the transport handle the relay uses to reach one live client.
// *transport.Connection satisfies it; tests substitute fakes.
type Conn interface {
	ID() uuid.UUID
	Send(msg []byte)
	Close(err error)
}

type Status string

const (
	StatusOnline  Status = "online"
	StatusCalling Status = "calling"
)

// User is one logged-in connection. The manager hands out value copies;
// only the Conn handle is shared with the live entry.
type User struct {
	ConnID   uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Status   Status    `json:"status"`
	Conn     Conn      `json:"-"`
}

type CallStatus string

const (
	CallRinging CallStatus = "ringing"
	CallActive  CallStatus = "active"
)

// CallSession is one brokered call, keyed in the table by the unordered
// participant pair.
type CallSession struct {
	Caller    string     `json:"caller"`
	Recipient string     `json:"recipient"`
	Type      string     `json:"type"`
	Status    CallStatus `json:"status"`
}

// CallEnd reports a removed session together with the counterpart of the
// user it was removed for.
type CallEnd struct {
	Other   string
	Session CallSession
}

// Message is one relayed chat message, stored with its content encrypted.
// Entries are append-only and never mutated.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Encrypted bool      `json:"encrypted"`
}
