package app

import (
	"errors"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/rs/zerolog/log"
)

type presenceEntry struct {
	sid  core.SessionID
	name string
	key  string
}

// Presence arbitrates display names among active sessions.
type Presence struct {
	byKey  map[string]core.SessionID
	order  []presenceEntry
	maxLen int
}

func NewPresence(maxNameLen int) *Presence {
	return &Presence{
		byKey:  make(map[string]core.SessionID),
		maxLen: maxNameLen,
	}
}

// Check validates candidate without claiming it.
func (p *Presence) Check(candidate string) (domain.DisplayName, error) {
	name, err := domain.NewDisplayName(candidate, p.maxLen)
	switch {
	case errors.Is(err, domain.ErrUsernameEmpty):
		return domain.DisplayName{}, core.ErrNameEmpty
	case errors.Is(err, domain.ErrUsernameTooLong):
		return domain.DisplayName{}, core.ErrNameTooLong
	case err != nil:
		return domain.DisplayName{}, core.ErrMalformed.Wrap(err)
	}
	if _, taken := p.byKey[name.Key]; taken {
		return domain.DisplayName{}, core.ErrNameTaken
	}
	return name, nil
}

// Claim reserves candidate for sid.
func (p *Presence) Claim(sid core.SessionID, candidate string) (domain.DisplayName, error) {
	name, err := p.Check(candidate)
	if err != nil {
		log.Info().Str("module", "app.presence").Str("sid", string(sid)).Str("reason", core.ReasonOf(err)).Msg("name rejected")
		return domain.DisplayName{}, err
	}
	p.byKey[name.Key] = sid
	p.order = append(p.order, presenceEntry{sid: sid, name: name.Display, key: name.Key})
	return name, nil
}

// Release frees the name held by sid, making it reusable at once.
func (p *Presence) Release(sid core.SessionID) bool {
	for i, e := range p.order {
		if e.sid != sid {
			continue
		}
		delete(p.byKey, e.key)
		p.order = append(p.order[:i], p.order[i+1:]...)
		return true
	}
	return false
}

// Roster lists active names in join order.
func (p *Presence) Roster() []string {
	out := make([]string, len(p.order))
	for i, e := range p.order {
		out[i] = e.name
	}
	return out
}

// Members lists active session ids in join order.
func (p *Presence) Members() []core.SessionID {
	out := make([]core.SessionID, len(p.order))
	for i, e := range p.order {
		out[i] = e.sid
	}
	return out
}

func (p *Presence) Len() int { return len(p.order) }
