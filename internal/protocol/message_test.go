package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/Lobby/internal/core"
)

func TestParseVariants(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Inbound
	}{
		{"join", `{"type":"join","name":"Alice"}`, Join{Name: "Alice"}},
		{"join admin with password", `{"type":"join","name":"Root","role":"admin","password":"pw"}`, Join{Name: "Root", Role: "admin", Secret: "pw"}},
		{"chat", `{"type":"chat","text":"aGVsbG8="}`, Chat{Text: "aGVsbG8="}},
		{"chat legacy field", `{"type":"chat","message":"hi"}`, Chat{Text: "hi"}},
		{"admin login", `{"type":"admin_login","secret":"s"}`, AdminLogin{Secret: "s"}},
		{"play", `{"type":"playback_cmd","action":"Play"}`, PlaybackCommand{Action: ActionPlay}},
		{"load", `{"type":"playback_cmd","action":"load","args":{"trackId":" t1 ","durationSeconds":180}}`, PlaybackCommand{Action: ActionLoad, TrackID: "t1", DurationSeconds: 180}},
		{"load negative duration", `{"type":"playback_cmd","action":"load","args":{"trackId":"t1","durationSeconds":-4}}`, PlaybackCommand{Action: ActionLoad, TrackID: "t1"}},
		{"seek", `{"type":"playback_cmd","action":"seek","args":{"position":-3.5}}`, PlaybackCommand{Action: ActionSeek, Position: -3.5}},
		{"voice join", `{"type":"voice_join","channel":"general"}`, VoiceJoin{Channel: "general"}},
		{"voice leave", `{"type":"voice_leave"}`, VoiceLeave{}},
		{"ping", `{"type":"ping","clientTime":42}`, Ping{ClientTime: 42}},
		{"ping fractional", `{"type":"ping","clientTime":1234.567}`, Ping{ClientTime: 1234.567}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse([]byte(tc.raw))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestParseVoiceSignalKeepsPayloadVerbatim(t *testing.T) {
	raw := `{"type":"voice_signal","to":"peer-1","payload":{"sdp":"v=0","kind":"offer"}}`
	got, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sig, ok := got.(VoiceSignal)
	if !ok {
		t.Fatalf("got %T", got)
	}
	if sig.To != "peer-1" {
		t.Fatalf("to = %q", sig.To)
	}
	if string(sig.Payload) != `{"sdp":"v=0","kind":"offer"}` {
		t.Fatalf("payload rewritten: %s", sig.Payload)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `nope`, core.ErrMalformed},
		{"missing type", `{"name":"x"}`, core.ErrMalformed},
		{"unknown type", `{"type":"dance"}`, core.ErrUnknownType},
		{"bad action", `{"type":"playback_cmd","action":"rewind"}`, core.ErrInvalidAction},
		{"seek without position", `{"type":"playback_cmd","action":"seek"}`, core.ErrMalformed},
		{"bad args", `{"type":"playback_cmd","action":"load","args":"x"}`, core.ErrMalformed},
		{"signal without target", `{"type":"voice_signal","payload":{}}`, core.ErrMalformed},
		{"signal null payload", `{"type":"voice_signal","to":"a","payload":null}`, core.ErrMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNewErrorOnlyExposesReason(t *testing.T) {
	frame, err := Encode(NewError(core.ErrForbidden.Wrap(errors.New("secret mismatch"))))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(frame, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "error" || got["reason"] != "Forbidden" || len(got) != 2 {
		t.Fatalf("unexpected error frame: %v", got)
	}
}
