package session

import (
	"sync"
)

// DefaultID is used when a client connects without naming a session.
const DefaultID = "default"

// Client is one connected peer. Send must not block; it reports whether the
// payload was accepted (a dead or saturated client returns false).
type Client interface {
	Role() Role
	Send(payload []byte) bool
}

// Session is one isolated broadcast room plus its cached visual state.
// Each session carries its own lock so rooms stay independent under load.
type Session struct {
	id string

	mu      sync.Mutex
	clients map[Client]bool
	snap    Snapshot
}

func (s *Session) ID() string { return s.id }

// Manager owns every live session: membership, state cache, and the
// empty-room teardown hook. The manager lock covers only the session maps;
// per-session state is guarded by the session's own mutex.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byClient map[Client]*Session

	// onEmpty runs synchronously after the last member of a session leaves,
	// with the session already removed. Used to tear down export resources.
	onEmpty func(id string)
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byClient: make(map[Client]*Session),
	}
}

// SetOnEmpty registers the teardown hook. Must be called before any Join.
func (m *Manager) SetOnEmpty(fn func(id string)) {
	m.onEmpty = fn
}

// Normalize maps an absent session id to DefaultID.
func Normalize(id string) string {
	if id == "" {
		return DefaultID
	}
	return id
}

// Join adds the client to the session, creating it on first join. Output
// clients are replayed the cached state first: settings, the explicit
// visibility frame, then the last show and show-ticker, so live traffic
// never precedes the catch-up.
func (m *Manager) Join(id string, c Client) *Session {
	id = Normalize(id)

	// Membership changes happen under the manager lock (with the session
	// lock nested) so a join can never race the empty-room teardown in
	// Leave and land in a deleted session.
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{id: id, clients: make(map[Client]bool)}
		m.sessions[id] = s
	}
	m.byClient[c] = s

	s.mu.Lock()
	s.clients[c] = true
	if c.Role() == Output {
		// Replay is delivered while the session lock is still held, before
		// any Broadcast can snapshot the new member, so catch-up frames
		// always precede live traffic. Send never blocks, so queuing under
		// the lock is fine.
		if len(s.snap.RawSettings) > 0 {
			c.Send(s.snap.RawSettings)
		}
		if len(s.snap.RawShow) > 0 || len(s.snap.RawTicker) > 0 {
			// Visibility travels ahead of the content so a renderer can
			// mount a post-clear payload without flashing it on air.
			c.Send(s.snap.VisibilityFrame())
		}
		if len(s.snap.RawShow) > 0 {
			c.Send(s.snap.RawShow)
		}
		if len(s.snap.RawTicker) > 0 {
			c.Send(s.snap.RawTicker)
		}
	}
	s.mu.Unlock()
	m.mu.Unlock()
	return s
}

// Leave removes the client from whichever session it belongs to. Safe to
// call twice; error and close paths both funnel here. The last member
// leaving deletes the session and fires the teardown hook.
func (m *Manager) Leave(c Client) {
	m.mu.Lock()
	s, ok := m.byClient[c]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.byClient, c)

	s.mu.Lock()
	delete(s.clients, c)
	empty := len(s.clients) == 0
	s.mu.Unlock()

	if empty {
		delete(m.sessions, s.id)
	}
	m.mu.Unlock()

	if empty && m.onEmpty != nil {
		m.onEmpty(s.id)
	}
}

// Broadcast fans payload out to every member of the session except the
// sender, in arrival order. Sends are non-blocking; slow clients drop.
func (m *Manager) Broadcast(id string, payload []byte, except Client) {
	m.mu.RLock()
	s, ok := m.sessions[Normalize(id)]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	peers := make([]Client, 0, len(s.clients))
	for c := range s.clients {
		if c != except {
			peers = append(peers, c)
		}
	}
	s.mu.Unlock()

	for _, c := range peers {
		c.Send(payload)
	}
}

// BroadcastAll sends payload to every connected client across all sessions.
// Used for export-config acks, which are global by contract.
func (m *Manager) BroadcastAll(payload []byte) {
	m.mu.RLock()
	clients := make([]Client, 0, len(m.byClient))
	for c := range m.byClient {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		c.Send(payload)
	}
}

// Apply runs the named state mutation and returns the resulting snapshot.
func (m *Manager) Apply(id, action string, data, settings []byte, raw []byte) (Snapshot, bool) {
	m.mu.RLock()
	s, ok := m.sessions[Normalize(id)]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	s.mu.Lock()
	s.snap.apply(action, data, settings, raw)
	snap := s.snap
	s.mu.Unlock()
	return snap, true
}

// Snapshot returns a copy of the session's cached state.
func (m *Manager) Snapshot(id string) (Snapshot, bool) {
	m.mu.RLock()
	s, ok := m.sessions[Normalize(id)]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	s.mu.Lock()
	snap := s.snap
	s.mu.Unlock()
	return snap, true
}

// MembersOf reports how many clients the session currently has.
func (m *Manager) MembersOf(id string) int {
	m.mu.RLock()
	s, ok := m.sessions[Normalize(id)]
	m.mu.RUnlock()
	if !ok {
		return 0
	}

	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	return n
}

// SessionIDs lists the ids of all live sessions.
func (m *Manager) SessionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
