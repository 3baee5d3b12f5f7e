package memstore

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Srivijai-S/server-chat/pkg/state"
	"github.com/google/uuid"
)

type callEntry struct {
	sess  state.CallSession
	timer *time.Timer
}

// InMemoryManager keeps all relay state in process memory. Lock order for
// compound operations is always userMu before callMu.
type InMemoryManager struct {
	users  map[uuid.UUID]*state.User
	byName map[string]*state.User
	calls  map[string]*callEntry
	msgs   []state.Message

	userMu sync.RWMutex
	callMu sync.RWMutex
	msgMu  sync.RWMutex

	ringTimeout time.Duration
	ringExpired func(caller, recipient string)

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger, ringTimeout time.Duration) *InMemoryManager {
	return &InMemoryManager{
		users:       make(map[uuid.UUID]*state.User),
		byName:      make(map[string]*state.User),
		calls:       make(map[string]*callEntry),
		ringTimeout: ringTimeout,
		logger:      logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

// pairKey canonicalizes an unordered username pair so both orderings hit the
// same table slot.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "-" + b
}

func cloneUser(u *state.User) *state.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// --- Presence Registry ---

func (m *InMemoryManager) Register(conn state.Conn, username string) (*state.User, *state.User, []*state.User) {
	if username == "" {
		m.logger.Warn("Rejected login with empty username", slog.String("connID", conn.ID().String()))
		return nil, nil, nil
	}

	m.userMu.Lock()
	defer m.userMu.Unlock()
	m.callMu.Lock()
	defer m.callMu.Unlock()

	var evicted *state.User
	var counterparts []*state.User
	if prev, ok := m.byName[username]; ok && prev.ConnID != conn.ID() {
		delete(m.users, prev.ConnID)
		delete(m.byName, username)
		evicted = cloneUser(prev)
		// The username now changes hands; calls the evicted connection was
		// part of cannot continue, and must die before the new connection can
		// start any of its own.
		for _, end := range m.endAllCallsForLocked(username) {
			if o, ok := m.byName[end.Other]; ok {
				o.Status = state.StatusOnline
				counterparts = append(counterparts, cloneUser(o))
			}
		}
		m.logger.Info("Evicting stale connection for username",
			slog.String("username", username),
			slog.String("oldConnID", prev.ConnID.String()),
			slog.String("newConnID", conn.ID().String()),
		)
	}

	// Re-login on the same connection under a new name drops the old index entry.
	if cur, ok := m.users[conn.ID()]; ok && cur.Username != username {
		delete(m.byName, cur.Username)
	}

	user := &state.User{
		ConnID:   conn.ID(),
		Username: username,
		Status:   state.StatusOnline,
		Conn:     conn,
	}
	m.users[conn.ID()] = user
	m.byName[username] = user

	m.logger.Debug("User registered", slog.String("username", username), slog.String("connID", conn.ID().String()))
	return cloneUser(user), evicted, counterparts
}

func (m *InMemoryManager) LookupByConnection(connID uuid.UUID) (*state.User, bool) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()
	u, ok := m.users[connID]
	if !ok {
		return nil, false
	}
	return cloneUser(u), true
}

func (m *InMemoryManager) LookupByUsername(username string) (*state.User, bool) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()
	u, ok := m.byName[username]
	if !ok {
		return nil, false
	}
	return cloneUser(u), true
}

func (m *InMemoryManager) SetStatus(connID uuid.UUID, status state.Status) {
	m.userMu.Lock()
	defer m.userMu.Unlock()
	if u, ok := m.users[connID]; ok {
		u.Status = status
	}
}

func (m *InMemoryManager) Remove(connID uuid.UUID) (*state.User, bool) {
	m.userMu.Lock()
	defer m.userMu.Unlock()
	return m.removeLocked(connID)
}

func (m *InMemoryManager) removeLocked(connID uuid.UUID) (*state.User, bool) {
	u, ok := m.users[connID]
	if !ok {
		return nil, false
	}
	delete(m.users, connID)
	// The index may already point at a newer connection for this username.
	if idx, ok := m.byName[u.Username]; ok && idx.ConnID == connID {
		delete(m.byName, u.Username)
	}
	return cloneUser(u), true
}

func (m *InMemoryManager) Snapshot() []state.User {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	users := make([]state.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// --- Call Session Table ---

func (m *InMemoryManager) StartCall(caller, recipient, callType string) state.CallSession {
	m.callMu.Lock()
	defer m.callMu.Unlock()
	return m.startCallLocked(caller, recipient, callType)
}

func (m *InMemoryManager) startCallLocked(caller, recipient, callType string) state.CallSession {
	key := pairKey(caller, recipient)
	if stale, ok := m.calls[key]; ok {
		stopTimer(stale)
	}

	entry := &callEntry{sess: state.CallSession{
		Caller:    caller,
		Recipient: recipient,
		Type:      callType,
		Status:    state.CallRinging,
	}}
	if m.ringTimeout > 0 {
		entry.timer = time.AfterFunc(m.ringTimeout, func() {
			if fn := m.ringExpired; fn != nil {
				fn(caller, recipient)
			}
		})
	}
	m.calls[key] = entry

	m.logger.Debug("Call session created",
		slog.String("caller", caller),
		slog.String("recipient", recipient),
		slog.String("type", callType),
	)
	return entry.sess
}

func (m *InMemoryManager) AnswerCall(answerer, caller string) (state.CallSession, bool) {
	m.callMu.Lock()
	defer m.callMu.Unlock()

	entry, ok := m.calls[pairKey(answerer, caller)]
	if !ok || entry.sess.Caller != caller || entry.sess.Recipient != answerer {
		return state.CallSession{}, false
	}
	stopTimer(entry)
	entry.sess.Status = state.CallActive
	return entry.sess, true
}

func (m *InMemoryManager) EndCall(a, b string) bool {
	m.callMu.Lock()
	defer m.callMu.Unlock()
	return m.endCallLocked(a, b)
}

func (m *InMemoryManager) endCallLocked(a, b string) bool {
	key := pairKey(a, b)
	entry, ok := m.calls[key]
	if !ok {
		return false
	}
	stopTimer(entry)
	delete(m.calls, key)
	return true
}

func (m *InMemoryManager) EndAllCallsFor(username string) []state.CallEnd {
	m.callMu.Lock()
	defer m.callMu.Unlock()
	return m.endAllCallsForLocked(username)
}

func (m *InMemoryManager) endAllCallsForLocked(username string) []state.CallEnd {
	var ends []state.CallEnd
	for key, entry := range m.calls {
		if entry.sess.Caller != username && entry.sess.Recipient != username {
			continue
		}
		stopTimer(entry)
		delete(m.calls, key)

		other := entry.sess.Caller
		if other == username {
			other = entry.sess.Recipient
		}
		ends = append(ends, state.CallEnd{Other: other, Session: entry.sess})
	}
	sort.Slice(ends, func(i, j int) bool { return ends[i].Other < ends[j].Other })
	return ends
}

func stopTimer(entry *callEntry) {
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
}

// --- Message Log ---

func (m *InMemoryManager) AppendMessage(msg state.Message) {
	m.msgMu.Lock()
	defer m.msgMu.Unlock()
	m.msgs = append(m.msgs, msg)
}

func (m *InMemoryManager) MessagesBetween(user1, user2 string) []state.Message {
	m.msgMu.RLock()
	defer m.msgMu.RUnlock()

	out := make([]state.Message, 0)
	for _, msg := range m.msgs {
		if (msg.From == user1 && msg.To == user2) || (msg.From == user2 && msg.To == user1) {
			out = append(out, msg)
		}
	}
	return out
}

// --- Compound Transitions ---

func (m *InMemoryManager) BeginCall(callerConnID uuid.UUID, to, callType string) (*state.User, *state.User, bool) {
	m.userMu.Lock()
	defer m.userMu.Unlock()
	m.callMu.Lock()
	defer m.callMu.Unlock()

	caller, ok := m.users[callerConnID]
	if !ok {
		return nil, nil, false
	}
	recipient, ok := m.byName[to]
	if !ok {
		return nil, nil, false
	}

	caller.Status = state.StatusCalling
	recipient.Status = state.StatusCalling
	m.startCallLocked(caller.Username, recipient.Username, callType)

	return cloneUser(caller), cloneUser(recipient), true
}

func (m *InMemoryManager) FinishCall(connID uuid.UUID, to string) (*state.User, *state.User, bool) {
	m.userMu.Lock()
	defer m.userMu.Unlock()
	m.callMu.Lock()
	defer m.callMu.Unlock()

	self, ok := m.users[connID]
	if !ok {
		return nil, nil, false
	}
	self.Status = state.StatusOnline
	m.endCallLocked(self.Username, to)

	var other *state.User
	if o, ok := m.byName[to]; ok {
		o.Status = state.StatusOnline
		other = cloneUser(o)
	}
	return cloneUser(self), other, true
}

func (m *InMemoryManager) Disconnect(connID uuid.UUID) (*state.User, []*state.User) {
	m.userMu.Lock()
	defer m.userMu.Unlock()
	m.callMu.Lock()
	defer m.callMu.Unlock()

	removed, ok := m.removeLocked(connID)
	if !ok {
		return nil, nil
	}

	var counterparts []*state.User
	for _, end := range m.endAllCallsForLocked(removed.Username) {
		if o, ok := m.byName[end.Other]; ok {
			o.Status = state.StatusOnline
			counterparts = append(counterparts, cloneUser(o))
		}
	}
	return removed, counterparts
}

// --- Ring Expiry ---

func (m *InMemoryManager) OnRingExpiry(fn func(caller, recipient string)) {
	m.ringExpired = fn
}

func (m *InMemoryManager) ExpireCall(caller, recipient string) (*state.User, *state.User, bool) {
	m.userMu.Lock()
	defer m.userMu.Unlock()
	m.callMu.Lock()
	defer m.callMu.Unlock()

	key := pairKey(caller, recipient)
	entry, ok := m.calls[key]
	if !ok || entry.sess.Status != state.CallRinging {
		// Answered or ended while the timer was firing.
		return nil, nil, false
	}
	stopTimer(entry)
	delete(m.calls, key)

	var callerUser, recipientUser *state.User
	if u, ok := m.byName[caller]; ok {
		u.Status = state.StatusOnline
		callerUser = cloneUser(u)
	}
	if u, ok := m.byName[recipient]; ok {
		u.Status = state.StatusOnline
		recipientUser = cloneUser(u)
	}
	m.logger.Info("Ringing call expired", slog.String("caller", caller), slog.String("recipient", recipient))
	return callerUser, recipientUser, true
}
