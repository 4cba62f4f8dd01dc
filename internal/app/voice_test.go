package app

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/dkeye/Lobby/internal/protocol"
	"github.com/pion/webrtc/v4"
)

func TestVoiceJoinAnnouncesAndListsPeers(t *testing.T) {
	c := newComponents()
	ice := []webrtc.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}}
	v := NewVoiceRelay(c.reg, c.router, ice)
	alice, aliceConn := c.member(t, "Alice", domain.RoleGuest)
	bob, bobConn := c.member(t, "Bob", domain.RoleGuest)

	if err := v.Join(alice, "general"); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if err := v.Join(bob, " general "); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	joined := aliceConn.ofType(protocol.TypeVoicePeerJoined)
	if len(joined) != 1 || joined[0]["sessionId"] != string(bob.ID) {
		t.Fatalf("alice peer_joined = %v", joined)
	}
	lists := bobConn.ofType(protocol.TypeVoiceMembers)
	if len(lists) != 1 {
		t.Fatalf("bob got %d member lists", len(lists))
	}
	members := lists[0]["members"].([]any)
	if len(members) != 1 || members[0].(map[string]any)["sessionId"] != string(alice.ID) {
		t.Fatalf("members = %v", members)
	}
	if _, ok := lists[0]["iceServers"]; !ok {
		t.Fatal("joiner must receive ice servers")
	}
	if len(bobConn.ofType(protocol.TypeVoicePeerJoined)) != 0 {
		t.Fatal("joiner must not be told about itself")
	}
}

func TestVoiceJoinRejectsBadChannel(t *testing.T) {
	c := newComponents()
	v := NewVoiceRelay(c.reg, c.router, nil)
	alice, _ := c.member(t, "Alice", domain.RoleGuest)

	for _, name := range []string{"", "  ", strings.Repeat("x", domain.MaxChannelNameLen+1)} {
		if err := v.Join(alice, name); !errors.Is(err, core.ErrInvalidChannel) {
			t.Fatalf("join %q: %v", name, err)
		}
	}
	if alice.Voice != "" {
		t.Fatal("rejected join changed membership")
	}
}

func TestVoiceSwitchChannelLeavesOld(t *testing.T) {
	c := newComponents()
	v := NewVoiceRelay(c.reg, c.router, nil)
	alice, _ := c.member(t, "Alice", domain.RoleGuest)
	bob, bobConn := c.member(t, "Bob", domain.RoleGuest)

	v.Join(alice, "a")
	v.Join(bob, "a")
	v.Join(alice, "b")

	if left := bobConn.ofType(protocol.TypeVoicePeerLeft); len(left) != 1 {
		t.Fatalf("bob peer_left = %v", left)
	}
	if got := v.Members("a"); len(got) != 1 || got[0] != bob.ID {
		t.Fatalf("channel a = %v", got)
	}
	if alice.Voice != "b" {
		t.Fatalf("alice voice = %q", alice.Voice)
	}
}

func TestVoiceLeavePrunesAndIsIdempotent(t *testing.T) {
	c := newComponents()
	v := NewVoiceRelay(c.reg, c.router, nil)
	alice, _ := c.member(t, "Alice", domain.RoleGuest)

	v.Join(alice, "general")
	if _, ok := v.Leave(alice); !ok {
		t.Fatal("first leave")
	}
	if _, ok := v.Leave(alice); ok {
		t.Fatal("second leave must be a no-op")
	}
	if n := len(v.Channels()); n != 0 {
		t.Fatalf("empty channel not pruned, %d left", n)
	}
}

func TestVoiceRelayScopedToChannel(t *testing.T) {
	c := newComponents()
	v := NewVoiceRelay(c.reg, c.router, nil)
	alice, _ := c.member(t, "Alice", domain.RoleGuest)
	bob, bobConn := c.member(t, "Bob", domain.RoleGuest)
	carol, carolConn := c.member(t, "Carol", domain.RoleGuest)

	v.Join(alice, "general")
	v.Join(bob, "general")
	v.Join(carol, "other")

	payload := json.RawMessage(`{"sdp":"v=0\r\n","kind":"offer"}`)
	if err := v.Relay(alice, bob.ID, payload); err != nil {
		t.Fatalf("relay to co-member: %v", err)
	}
	got := bobConn.ofType(protocol.TypeVoiceSignal)
	if len(got) != 1 || got[0]["from"] != string(alice.ID) {
		t.Fatalf("bob signals = %v", got)
	}
	if body, _ := json.Marshal(got[0]["payload"]); !jsonEqual(t, body, payload) {
		t.Fatalf("payload changed: %s", body)
	}

	if err := v.Relay(alice, carol.ID, payload); !errors.Is(err, core.ErrTargetUnavailable) {
		t.Fatalf("relay across channels: %v", err)
	}
	if err := v.Relay(alice, "gone", payload); !errors.Is(err, core.ErrTargetUnavailable) {
		t.Fatalf("relay to departed peer: %v", err)
	}
	if len(carolConn.ofType(protocol.TypeVoiceSignal)) != 0 {
		t.Fatal("carol must not see the signal")
	}

	v.Leave(alice)
	if err := v.Relay(alice, bob.ID, payload); !errors.Is(err, core.ErrNotInVoice) {
		t.Fatalf("relay outside a channel: %v", err)
	}
}

func jsonEqual(t *testing.T, a, b []byte) bool {
	t.Helper()
	var x, y any
	if err := json.Unmarshal(a, &x); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal(b, &y); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	xs, _ := json.Marshal(x)
	ys, _ := json.Marshal(y)
	return string(xs) == string(ys)
}
