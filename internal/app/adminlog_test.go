package app

import (
	"testing"

	"github.com/dkeye/Lobby/internal/domain"
	"github.com/dkeye/Lobby/internal/protocol"
)

func TestAdminLogStreamsToAdminsOnly(t *testing.T) {
	c := newComponents()
	a := NewAdminLog(3, c.router)
	_, guestConn := c.member(t, "Guest", domain.RoleGuest)
	_, adminConn := c.member(t, "Root", domain.RoleAdmin)

	a.Emit(domain.LogRecord{Level: "info", Message: "one"})
	if len(guestConn.ofType(protocol.TypeLog)) != 0 {
		t.Fatal("guest received a log record")
	}
	if len(adminConn.ofType(protocol.TypeLog)) != 1 {
		t.Fatal("admin missed a live record")
	}
}

func TestAdminLogReplayIsChronological(t *testing.T) {
	c := newComponents()
	a := NewAdminLog(3, c.router)
	for _, msg := range []string{"1", "2", "3", "4", "5"} {
		a.Emit(domain.LogRecord{Level: "info", Message: msg})
	}

	admin, conn := c.member(t, "Root", domain.RoleAdmin)
	a.Replay(admin.ID)

	frames := conn.ofType(protocol.TypeLog)
	if len(frames) != 3 {
		t.Fatalf("replayed %d records, want 3", len(frames))
	}
	for i, want := range []string{"3", "4", "5"} {
		rec := frames[i]["record"].(map[string]any)
		if rec["message"] != want {
			t.Fatalf("record %d = %v, want %s", i, rec["message"], want)
		}
	}
}
