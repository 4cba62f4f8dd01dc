package protocol

import (
	"encoding/json"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/pion/webrtc/v4"
)

type Welcome struct {
	Type      string         `json:"type"`
	SessionID core.SessionID `json:"sessionId"`
	Name      string         `json:"name"`
	Role      domain.Role    `json:"role"`
}

type Roster struct {
	Type  string   `json:"type"`
	Names []string `json:"names"`
}

// UserEvent is user_joined or user_left.
type UserEvent struct {
	Type string      `json:"type"`
	Name string      `json:"name"`
	Role domain.Role `json:"role,omitempty"`
}

type ChatMessage struct {
	Type      string      `json:"type"`
	ID        string      `json:"id"`
	From      string      `json:"from"`
	Role      domain.Role `json:"role"`
	Text      string      `json:"text"`
	Timestamp int64       `json:"timestamp"`
}

type ChatHistory struct {
	Type     string        `json:"type"`
	Messages []ChatMessage `json:"messages"`
}

// PlaybackState is a full snapshot; PositionSeconds is the effective
// position at ServerTime (unix ms).
type PlaybackState struct {
	Type            string  `json:"type"`
	TrackID         string  `json:"trackId"`
	IsPlaying       bool    `json:"isPlaying"`
	PositionSeconds float64 `json:"positionSeconds"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	ServerTime      int64   `json:"serverTime"`
	UpdatedAt       int64   `json:"updatedAt"`
}

type VoiceMember struct {
	SessionID core.SessionID `json:"sessionId"`
	Name      string         `json:"name"`
}

type VoiceMembers struct {
	Type       string             `json:"type"`
	Channel    domain.ChannelName `json:"channel"`
	Members    []VoiceMember      `json:"members"`
	ICEServers []webrtc.ICEServer `json:"iceServers,omitempty"`
}

// VoicePeer is voice_peer_joined or voice_peer_left.
type VoicePeer struct {
	Type      string             `json:"type"`
	SessionID core.SessionID     `json:"sessionId"`
	Name      string             `json:"name,omitempty"`
	Channel   domain.ChannelName `json:"channel"`
}

type VoiceLeft struct {
	Type    string             `json:"type"`
	Channel domain.ChannelName `json:"channel"`
}

type VoiceSignalOut struct {
	Type    string          `json:"type"`
	From    core.SessionID  `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type Log struct {
	Type   string           `json:"type"`
	Record domain.LogRecord `json:"record"`
}

type RoleChanged struct {
	Type string      `json:"type"`
	Role domain.Role `json:"role"`
}

type Pong struct {
	Type       string  `json:"type"`
	ClientTime float64 `json:"clientTime,omitempty"`
	ServerTime int64   `json:"serverTime"`
}

type Error struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// NewError renders err for the client; only the reason leaves the server.
func NewError(err error) Error {
	return Error{Type: TypeError, Reason: core.ReasonOf(err)}
}

func NewChatMessage(e domain.ChatEntry) ChatMessage {
	return ChatMessage{
		Type:      TypeChat,
		ID:        e.ID,
		From:      e.From,
		Role:      e.Role,
		Text:      e.Text,
		Timestamp: e.Timestamp.UnixMilli(),
	}
}

// Encode marshals v into a frame.
func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}
