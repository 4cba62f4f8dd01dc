// Package protocol defines the lobby websocket messages. Inbound frames are
// parsed once into typed variants; outbound messages are plain structs.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/dkeye/Lobby/internal/core"
)

// Message types used by the websocket protocol.
const (
	TypeJoin        = "join"
	TypeChat        = "chat"
	TypeAdminLogin  = "admin_login"
	TypePlaybackCmd = "playback_cmd"
	TypeVoiceJoin   = "voice_join"
	TypeVoiceLeave  = "voice_leave"
	TypeVoiceSignal = "voice_signal"
	TypePing        = "ping"

	TypeWelcome         = "welcome"
	TypeRoster          = "roster"
	TypeUserJoined      = "user_joined"
	TypeUserLeft        = "user_left"
	TypeChatHistory     = "chat_history"
	TypePlaybackState   = "playback_state"
	TypeVoiceMembers    = "voice_members"
	TypeVoicePeerJoined = "voice_peer_joined"
	TypeVoicePeerLeft   = "voice_peer_left"
	TypeVoiceLeft       = "voice_left"
	TypeLog             = "log"
	TypeRole            = "role"
	TypePong            = "pong"
	TypeError           = "error"
)

// Inbound is one parsed client message.
type Inbound interface {
	inboundType() string
}

type Join struct {
	Name   string
	Role   string
	Secret string
}

// Chat text is opaque and may be ciphertext.
type Chat struct {
	Text string
}

type AdminLogin struct {
	Secret string
}

type PlaybackAction string

const (
	ActionLoad  PlaybackAction = "load"
	ActionPlay  PlaybackAction = "play"
	ActionPause PlaybackAction = "pause"
	ActionSeek  PlaybackAction = "seek"
)

type PlaybackCommand struct {
	Action          PlaybackAction
	TrackID         string
	DurationSeconds float64
	Position        float64
}

type VoiceJoin struct {
	Channel string
}

type VoiceLeave struct {
	Channel string
}

// VoiceSignal carries an offer, answer or candidate that is never decoded.
type VoiceSignal struct {
	To      string
	Payload json.RawMessage
}

// Ping.ClientTime is in client milliseconds and may be fractional.
type Ping struct {
	ClientTime float64
}

// Invalid stands in for a frame that failed to parse. Err is what the
// client gets told.
type Invalid struct {
	Err error
}

func (Join) inboundType() string            { return TypeJoin }
func (Chat) inboundType() string            { return TypeChat }
func (AdminLogin) inboundType() string      { return TypeAdminLogin }
func (PlaybackCommand) inboundType() string { return TypePlaybackCmd }
func (VoiceJoin) inboundType() string       { return TypeVoiceJoin }
func (VoiceLeave) inboundType() string      { return TypeVoiceLeave }
func (VoiceSignal) inboundType() string     { return TypeVoiceSignal }
func (Ping) inboundType() string            { return TypePing }

func (Invalid) inboundType() string {
	return ""
}

// TypeOf returns the wire type of m.
func TypeOf(m Inbound) string { return m.inboundType() }

type envelope struct {
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Role       string          `json:"role"`
	Secret     string          `json:"secret"`
	Password   string          `json:"password"`
	Text       string          `json:"text"`
	Message    string          `json:"message"`
	Action     string          `json:"action"`
	Args       json.RawMessage `json:"args"`
	Channel    string          `json:"channel"`
	To         string          `json:"to"`
	Payload    json.RawMessage `json:"payload"`
	ClientTime float64         `json:"clientTime"`
}

type playbackArgs struct {
	TrackID         string   `json:"trackId"`
	DurationSeconds *float64 `json:"durationSeconds"`
	Position        *float64 `json:"position"`
}

// Parse decodes one websocket frame into its variant.
func Parse(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, core.ErrMalformed.Wrap(err)
	}

	switch env.Type {
	case TypeJoin:
		secret := env.Secret
		if secret == "" {
			secret = env.Password
		}
		return Join{Name: env.Name, Role: env.Role, Secret: secret}, nil
	case TypeChat:
		text := env.Text
		if text == "" {
			text = env.Message
		}
		return Chat{Text: text}, nil
	case TypeAdminLogin:
		return AdminLogin{Secret: env.Secret}, nil
	case TypePlaybackCmd:
		return parsePlayback(env)
	case TypeVoiceJoin:
		return VoiceJoin{Channel: env.Channel}, nil
	case TypeVoiceLeave:
		return VoiceLeave{Channel: env.Channel}, nil
	case TypeVoiceSignal:
		payload := bytes.TrimSpace(env.Payload)
		if env.To == "" || len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
			return nil, core.ErrMalformed.Wrap(fmt.Errorf("voice_signal needs to and payload"))
		}
		return VoiceSignal{To: env.To, Payload: env.Payload}, nil
	case TypePing:
		return Ping{ClientTime: env.ClientTime}, nil
	case "":
		return nil, core.ErrMalformed.Wrap(fmt.Errorf("missing type"))
	}
	return nil, core.ErrUnknownType.Wrap(fmt.Errorf("type %q", env.Type))
}

func parsePlayback(env envelope) (Inbound, error) {
	var args playbackArgs
	if len(env.Args) > 0 {
		if err := json.Unmarshal(env.Args, &args); err != nil {
			return nil, core.ErrMalformed.Wrap(err)
		}
	}

	cmd := PlaybackCommand{Action: PlaybackAction(strings.ToLower(strings.TrimSpace(env.Action)))}
	switch cmd.Action {
	case ActionLoad:
		cmd.TrackID = strings.TrimSpace(args.TrackID)
		if args.DurationSeconds != nil && finite(*args.DurationSeconds) && *args.DurationSeconds > 0 {
			cmd.DurationSeconds = *args.DurationSeconds
		}
	case ActionSeek:
		if args.Position == nil || !finite(*args.Position) {
			return nil, core.ErrMalformed.Wrap(fmt.Errorf("seek needs position"))
		}
		cmd.Position = *args.Position
	case ActionPlay, ActionPause:
	default:
		return nil, core.ErrInvalidAction.Wrap(fmt.Errorf("action %q", env.Action))
	}
	return cmd, nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
