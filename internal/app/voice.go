package app

import (
	"encoding/json"
	"slices"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/dkeye/Lobby/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// VoiceRelay scopes peer signaling to named channels. It holds no media
// state and never looks inside a payload.
type VoiceRelay struct {
	channels   map[domain.ChannelName][]core.SessionID
	reg        *Registry
	router     *Router
	iceServers []webrtc.ICEServer
}

func NewVoiceRelay(reg *Registry, router *Router, iceServers []webrtc.ICEServer) *VoiceRelay {
	v := &VoiceRelay{
		channels:   make(map[domain.ChannelName][]core.SessionID),
		reg:        reg,
		router:     router,
		iceServers: iceServers,
	}
	router.voice = v
	return v
}

// Members lists a channel in join order.
func (v *VoiceRelay) Members(ch domain.ChannelName) []core.SessionID {
	return slices.Clone(v.channels[ch])
}

// Channels reports member counts per channel.
func (v *VoiceRelay) Channels() map[domain.ChannelName]int {
	out := make(map[domain.ChannelName]int, len(v.channels))
	for name, members := range v.channels {
		out[name] = len(members)
	}
	return out
}

// Join moves s into the channel named raw, announcing it to the members
// already there, and hands s the member list it should negotiate with.
func (v *VoiceRelay) Join(s *Session, raw string) error {
	name, err := domain.NewChannelName(raw)
	if err != nil {
		return core.ErrInvalidChannel.Wrap(err)
	}
	if s.Voice != name {
		v.Leave(s)
		v.router.Send(ToVoiceChannel(name), protocol.VoicePeer{
			Type:      protocol.TypeVoicePeerJoined,
			SessionID: s.ID,
			Name:      s.Name,
			Channel:   name,
		})
		v.channels[name] = append(v.channels[name], s.ID)
		s.Voice = name
		log.Info().Str("module", "app.voice").Str("sid", string(s.ID)).Str("channel", string(name)).Msg("voice join")
	}

	members := make([]protocol.VoiceMember, 0, len(v.channels[name]))
	for _, sid := range v.channels[name] {
		if sid == s.ID {
			continue
		}
		if peer, ok := v.reg.Get(sid); ok {
			members = append(members, protocol.VoiceMember{SessionID: sid, Name: peer.Name})
		}
	}
	v.router.Send(ToSession(s.ID), protocol.VoiceMembers{
		Type:       protocol.TypeVoiceMembers,
		Channel:    name,
		Members:    members,
		ICEServers: v.iceServers,
	})
	return nil
}

// Leave drops s from its channel and tells the rest. Idempotent.
func (v *VoiceRelay) Leave(s *Session) (domain.ChannelName, bool) {
	name := s.Voice
	if name == "" {
		return "", false
	}
	s.Voice = ""

	members := v.channels[name]
	if i := slices.Index(members, s.ID); i >= 0 {
		members = slices.Delete(members, i, i+1)
	}
	if len(members) == 0 {
		delete(v.channels, name)
	} else {
		v.channels[name] = members
	}

	v.router.Send(ToVoiceChannel(name), protocol.VoicePeer{
		Type:      protocol.TypeVoicePeerLeft,
		SessionID: s.ID,
		Name:      s.Name,
		Channel:   name,
	})
	log.Info().Str("module", "app.voice").Str("sid", string(s.ID)).Str("channel", string(name)).Msg("voice leave")
	return name, true
}

// Relay forwards payload from s to one co-member of its channel.
func (v *VoiceRelay) Relay(s *Session, to core.SessionID, payload json.RawMessage) error {
	if s.Voice == "" {
		return core.ErrNotInVoice
	}
	if to == s.ID {
		return core.ErrTargetUnavailable
	}
	peer, ok := v.reg.Get(to)
	if !ok || !peer.Active() || peer.Voice != s.Voice {
		return core.ErrTargetUnavailable
	}
	v.router.Send(ToSession(to), protocol.VoiceSignalOut{
		Type:    protocol.TypeVoiceSignal,
		From:    s.ID,
		Payload: payload,
	})
	return nil
}
