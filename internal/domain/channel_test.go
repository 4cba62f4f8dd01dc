package domain

import (
	"strings"
	"testing"
)

func TestNewChannelName(t *testing.T) {
	if got, err := NewChannelName("  general "); err != nil || got != "general" {
		t.Fatalf("got %q, %v", got, err)
	}
	for _, raw := range []string{"", "   ", strings.Repeat("c", MaxChannelNameLen+1)} {
		if _, err := NewChannelName(raw); err != ErrChannelName {
			t.Fatalf("NewChannelName(%q) err = %v", raw, err)
		}
	}
}
