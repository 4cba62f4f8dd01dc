package app

import (
	"time"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/rs/zerolog/log"
)

// Session is one connection's identity and role. Owned by the lobby loop.
type Session struct {
	ID           core.SessionID
	Name         string
	Role         domain.Role
	JoinedAt     time.Time
	RegisteredAt time.Time
	RemoteAddr   string
	ClientToken  string
	Voice        domain.ChannelName
	// Slow sessions miss lossy fan-out, see Target.Droppable.
	Slow         bool

	key       string
	conn      core.SignalConnection
	finalized bool
}

// Active reports whether the session finished its name claim.
func (s *Session) Active() bool { return s.finalized }

func (s *Session) IsAdmin() bool { return s.finalized && s.Role == domain.RoleAdmin }

// ConnInfo is what the transport knows about a connection before join.
type ConnInfo struct {
	RemoteAddr  string
	ClientToken string
}

type Registry struct {
	sessions map[core.SessionID]*Session
	max      int
	newID    func() core.SessionID
}

func NewRegistry(maxSessions int, newID func() core.SessionID) *Registry {
	if newID == nil {
		newID = core.NewSessionID
	}
	return &Registry{
		sessions: make(map[core.SessionID]*Session),
		max:      maxSessions,
		newID:    newID,
	}
}

// Register allocates a draft session that presence does not see yet.
func (r *Registry) Register(conn core.SignalConnection, info ConnInfo) (*Session, error) {
	if r.max > 0 && len(r.sessions) >= r.max {
		log.Warn().Str("module", "app.registry").Str("addr", info.RemoteAddr).Int("max", r.max).Msg("connection limit reached")
		return nil, core.ErrConnectionLimit
	}
	id := r.newID()
	for _, taken := r.sessions[id]; taken; _, taken = r.sessions[id] {
		id = r.newID()
	}
	s := &Session{
		ID:          id,
		RemoteAddr:  info.RemoteAddr,
		ClientToken: info.ClientToken,
		conn:        conn,
	}
	r.sessions[id] = s
	log.Debug().Str("module", "app.registry").Str("sid", string(id)).Msg("registered draft session")
	return s, nil
}

// Finalize promotes a draft after presence accepted its name.
func (r *Registry) Finalize(sid core.SessionID, name domain.DisplayName, role domain.Role, now time.Time) (*Session, bool) {
	s, ok := r.sessions[sid]
	if !ok || s.finalized {
		return nil, false
	}
	s.Name = name.Display
	s.key = name.Key
	s.Role = role
	s.JoinedAt = now
	s.finalized = true
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("name", s.Name).Str("role", string(role)).Msg("session finalized")
	return s, true
}

func (r *Registry) Get(sid core.SessionID) (*Session, bool) {
	s, ok := r.sessions[sid]
	return s, ok
}

// Remove drops sid and closes its connection. Removing twice is a no-op.
func (r *Registry) Remove(sid core.SessionID) (*Session, bool) {
	s, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sid)
	if s.conn != nil {
		s.conn.Close()
	}
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Bool("finalized", s.finalized).Msg("session removed")
	return s, true
}

// Count returns drafts plus active sessions.
func (r *Registry) Count() int { return len(r.sessions) }

func (r *Registry) Pending() int {
	n := 0
	for _, s := range r.sessions {
		if !s.finalized {
			n++
		}
	}
	return n
}

func (r *Registry) All() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
