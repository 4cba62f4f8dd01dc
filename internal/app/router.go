package app

import (
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/dkeye/Lobby/internal/protocol"
	"github.com/rs/zerolog/log"
)

type TargetKind int

const (
	TargetAll TargetKind = iota
	TargetAdmins
	TargetSession
	TargetVoiceChannel
)

// Target selects recipients of one fan-out.
type Target struct {
	Kind    TargetKind
	Session core.SessionID
	Channel domain.ChannelName
	Except  core.SessionID

	skipSlow bool
}

func All() Target {
	return Target{Kind: TargetAll}
}

func AdminsOnly() Target {
	return Target{Kind: TargetAdmins}
}

func ToSession(sid core.SessionID) Target {
	return Target{Kind: TargetSession, Session: sid}
}

func ToVoiceChannel(ch domain.ChannelName) Target {
	return Target{Kind: TargetVoiceChannel, Channel: ch}
}

func (t Target) Excluding(sid core.SessionID) Target {
	t.Except = sid
	return t
}

// Droppable marks the fan-out as lossy: sessions flagged slow are skipped.
func (t Target) Droppable() Target {
	t.skipSlow = true
	return t
}

// PublishResult reports delivery stats/backpressure to the loop.
type PublishResult struct {
	SendTo  int
	Dropped []*Session
}

// Router fans messages out to sessions. It never retries; failures go to
// onFailure so the loop can apply its policy.
type Router struct {
	reg       *Registry
	presence  *Presence
	voice     *VoiceRelay
	onFailure func(s *Session, err error)
}

func NewRouter(reg *Registry, presence *Presence) *Router {
	return &Router{reg: reg, presence: presence}
}

func (r *Router) resolve(t Target) []*Session {
	var ids []core.SessionID
	switch t.Kind {
	case TargetAll, TargetAdmins:
		ids = r.presence.Members()
	case TargetSession:
		ids = []core.SessionID{t.Session}
	case TargetVoiceChannel:
		if r.voice != nil {
			ids = r.voice.Members(t.Channel)
		}
	}

	out := make([]*Session, 0, len(ids))
	for _, sid := range ids {
		if sid == t.Except {
			continue
		}
		s, ok := r.reg.Get(sid)
		if !ok {
			continue
		}
		if t.Kind == TargetAdmins && !s.IsAdmin() {
			continue
		}
		if t.Kind != TargetSession && !s.Active() {
			continue
		}
		if t.skipSlow && s.Slow {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Send encodes msg once and enqueues it for every recipient of t.
func (r *Router) Send(t Target, msg any) PublishResult {
	res := r.deliver(t, msg)
	log.Debug().Str("module", "app.router").Int("target", int(t.Kind)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// deliver is Send without the debug line. The admin log uses it so its own
// fan-out does not feed back into the log stream.
func (r *Router) deliver(t Target, msg any) PublishResult {
	res := PublishResult{}
	recipients := r.resolve(t)
	if len(recipients) == 0 {
		return res
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode")
		return res
	}
	for _, s := range recipients {
		if err := s.conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, s)
			if r.onFailure != nil {
				r.onFailure(s, core.ErrTransport.Wrap(err))
			}
			continue
		}
		if !t.skipSlow {
			s.Slow = false
		}
		res.SendTo++
	}
	return res
}
