package app

import (
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/dkeye/Lobby/internal/protocol"
)

// AdminLog buffers recent server log records and streams them to admins.
type AdminLog struct {
	buf    *ring[domain.LogRecord]
	router *Router
}

func NewAdminLog(size int, router *Router) *AdminLog {
	return &AdminLog{buf: newRing[domain.LogRecord](size), router: router}
}

// Emit stores rec and sends it to every active admin.
func (a *AdminLog) Emit(rec domain.LogRecord) {
	a.buf.push(rec)
	a.router.deliver(AdminsOnly().Droppable(), protocol.Log{Type: protocol.TypeLog, Record: rec})
}

// Replay sends the buffered records to sid, oldest first.
func (a *AdminLog) Replay(sid core.SessionID) {
	for _, rec := range a.buf.items() {
		a.router.deliver(ToSession(sid), protocol.Log{Type: protocol.TypeLog, Record: rec})
	}
}
