package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/dkeye/Lobby/internal/protocol"
	"github.com/oklog/ulid/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrLobbyClosed = errors.New("lobby closed")

const systemSender = "System"

type Options struct {
	MaxSessions        int
	MaxNameLength      int
	ChatHistory        int
	LogBuffer          int
	EventBuffer        int
	AdminSecret        string
	AdminLoginAttempts int
	AdminLoginWindow   time.Duration
	JoinTimeout        time.Duration
	SweepInterval      time.Duration
	ICEServers         []webrtc.ICEServer
	Policy             Policy
	Now                func() time.Time
	NewID              func() core.SessionID
}

func DefaultOptions() Options {
	return Options{
		MaxSessions:        256,
		MaxNameLength:      domain.MaxUsernameLen,
		ChatHistory:        100,
		LogBuffer:          200,
		EventBuffer:        256,
		AdminLoginAttempts: 5,
		AdminLoginWindow:   time.Minute,
		JoinTimeout:        10 * time.Second,
		ICEServers:         []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	}
}

// Snapshot is a read-only view taken at the serialization point.
type Snapshot struct {
	Sessions      int                    `json:"sessions"`
	Pending       int                    `json:"pending"`
	Names         []string               `json:"names"`
	Playback      protocol.PlaybackState `json:"playback"`
	VoiceChannels []VoiceChannelInfo     `json:"voiceChannels"`
}

type VoiceChannelInfo struct {
	Name        domain.ChannelName `json:"name"`
	MemberCount int                `json:"memberCount"`
}

type registerReply struct {
	sid core.SessionID
	err error
}

type registerEvent struct {
	conn  core.SignalConnection
	info  ConnInfo
	reply chan registerReply
}

type messageEvent struct {
	sid core.SessionID
	msg protocol.Inbound
}

type disconnectEvent struct {
	sid core.SessionID
}

type snapshotEvent struct {
	reply chan Snapshot
}

// Lobby owns every piece of lobby state. All of it is touched only from
// the Run goroutine; other goroutines talk to it through events.
type Lobby struct {
	opts   Options
	events chan any
	logs   chan domain.LogRecord
	done   chan struct{}

	reg      *Registry
	presence *Presence
	router   *Router
	playback *Playback
	voice    *VoiceRelay
	adminLog *AdminLog
	limiter  *AttemptLimiter
	chat     *ring[domain.ChatEntry]

	removals []core.SessionID
}

func NewLobby(opts Options) *Lobby {
	def := DefaultOptions()
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}
	if opts.LogBuffer <= 0 {
		opts.LogBuffer = def.LogBuffer
	}
	if opts.MaxNameLength <= 0 {
		opts.MaxNameLength = def.MaxNameLength
	}
	if opts.Policy == nil {
		opts.Policy = SimplePolicy{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.JoinTimeout > 0 && opts.SweepInterval <= 0 {
		opts.SweepInterval = max(opts.JoinTimeout/4, 100*time.Millisecond)
	}

	reg := NewRegistry(opts.MaxSessions, opts.NewID)
	presence := NewPresence(opts.MaxNameLength)
	router := NewRouter(reg, presence)
	l := &Lobby{
		opts:     opts,
		events:   make(chan any, opts.EventBuffer),
		logs:     make(chan domain.LogRecord, opts.LogBuffer),
		done:     make(chan struct{}),
		reg:      reg,
		presence: presence,
		router:   router,
		playback: NewPlayback(router),
		voice:    NewVoiceRelay(reg, router, opts.ICEServers),
		adminLog: NewAdminLog(opts.LogBuffer, router),
		limiter:  NewAttemptLimiter(opts.AdminLoginAttempts, opts.AdminLoginWindow),
		chat:     newRing[domain.ChatEntry](opts.ChatHistory),
	}
	router.onFailure = l.onSendFailure
	return l
}

// Done is closed once Run has torn the lobby down.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Now is the lobby clock.
func (l *Lobby) Now() time.Time { return l.opts.Now() }

// Run processes events until ctx is cancelled, then closes every connection.
func (l *Lobby) Run(ctx context.Context) {
	log.Info().Str("module", "app.lobby").Int("max_sessions", l.opts.MaxSessions).Msg("lobby started")
	defer close(l.done)

	var sweep <-chan time.Time
	if l.opts.JoinTimeout > 0 {
		ticker := time.NewTicker(l.opts.SweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			l.teardown()
			return
		case ev := <-l.events:
			l.handle(ev)
		case rec := <-l.logs:
			l.adminLog.Emit(rec)
		case <-sweep:
			l.expireDrafts(l.opts.Now())
		}
		l.drainRemovals()
	}
}

func (l *Lobby) teardown() {
	sessions := l.reg.All()
	for _, s := range sessions {
		l.reg.Remove(s.ID)
	}
	log.Info().Str("module", "app.lobby").Int("closed", len(sessions)).Msg("lobby stopped")
}

func (l *Lobby) submit(ctx context.Context, ev any) error {
	select {
	case l.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLobbyClosed
	}
}

// Register admits conn as a draft session.
func (l *Lobby) Register(ctx context.Context, conn core.SignalConnection, info ConnInfo) (core.SessionID, error) {
	reply := make(chan registerReply, 1)
	if err := l.submit(ctx, registerEvent{conn: conn, info: info, reply: reply}); err != nil {
		return "", err
	}
	select {
	case r := <-reply:
		return r.sid, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.done:
		return "", ErrLobbyClosed
	}
}

// Submit queues one parsed inbound message from sid.
func (l *Lobby) Submit(ctx context.Context, sid core.SessionID, msg protocol.Inbound) error {
	return l.submit(ctx, messageEvent{sid: sid, msg: msg})
}

// Disconnect removes sid. Safe to call more than once.
func (l *Lobby) Disconnect(ctx context.Context, sid core.SessionID) error {
	return l.submit(ctx, disconnectEvent{sid: sid})
}

func (l *Lobby) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := l.submit(ctx, snapshotEvent{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-l.done:
		return Snapshot{}, ErrLobbyClosed
	}
}

// Emit hands a log record to the loop. Records are dropped when the queue is full.
func (l *Lobby) Emit(rec domain.LogRecord) bool {
	select {
	case l.logs <- rec:
		return true
	default:
		return false
	}
}

func (l *Lobby) handle(ev any) {
	switch e := ev.(type) {
	case registerEvent:
		s, err := l.reg.Register(e.conn, e.info)
		if err != nil {
			e.reply <- registerReply{err: err}
			return
		}
		s.RegisteredAt = l.opts.Now()
		e.reply <- registerReply{sid: s.ID}
	case messageEvent:
		l.onMessage(e.sid, e.msg)
	case disconnectEvent:
		l.queueRemoval(e.sid)
	case snapshotEvent:
		e.reply <- l.snapshot()
	default:
		log.Error().Str("module", "app.lobby").Str("event", fmt.Sprintf("%T", ev)).Msg("unknown event")
	}
}

func (l *Lobby) onMessage(sid core.SessionID, msg protocol.Inbound) {
	s, ok := l.reg.Get(sid)
	if !ok {
		return
	}
	now := l.opts.Now()

	if !s.Active() {
		if bad, ok := msg.(protocol.Invalid); ok {
			l.reject(s, bad.Err)
			return
		}
		join, ok := msg.(protocol.Join)
		if !ok {
			l.reject(s, core.ErrExpectedJoin)
			return
		}
		if err := l.finalize(s, join, now); err != nil {
			l.reject(s, err)
		}
		return
	}

	var err error
	switch m := msg.(type) {
	case protocol.Invalid:
		err = m.Err
	case protocol.Join:
		err = core.ErrAlreadyJoined
	case protocol.Chat:
		l.postChat(s, m.Text, now)
	case protocol.AdminLogin:
		err = l.adminLogin(s, m.Secret, now)
	case protocol.PlaybackCommand:
		err = l.playback.Apply(s, m, now)
	case protocol.VoiceJoin:
		err = l.voice.Join(s, m.Channel)
	case protocol.VoiceLeave:
		if name, left := l.voice.Leave(s); left {
			l.router.Send(ToSession(s.ID), protocol.VoiceLeft{Type: protocol.TypeVoiceLeft, Channel: name})
		}
	case protocol.VoiceSignal:
		if rerr := l.voice.Relay(s, core.SessionID(m.To), m.Payload); rerr != nil {
			log.Warn().Str("module", "app.voice").Str("sid", string(s.ID)).Str("to", m.To).Str("reason", core.ReasonOf(rerr)).Msg("signal dropped")
		}
	case protocol.Ping:
		l.router.Send(ToSession(s.ID), protocol.Pong{Type: protocol.TypePong, ClientTime: m.ClientTime, ServerTime: now.UnixMilli()})
	default:
		err = core.ErrUnknownType
	}
	if err != nil {
		log.Debug().Str("module", "app.lobby").Str("sid", string(s.ID)).Str("type", protocol.TypeOf(msg)).Err(err).Msg("request failed")
		l.router.Send(ToSession(s.ID), protocol.NewError(err))
	}
}

func (l *Lobby) finalize(s *Session, join protocol.Join, now time.Time) error {
	role, err := domain.ParseRole(join.Role)
	if err != nil {
		return core.ErrInvalidRole.Wrap(err)
	}
	if role == domain.RoleAdmin {
		if err := l.checkSecret(s, join.Secret, now); err != nil {
			return err
		}
	}
	name, err := l.presence.Claim(s.ID, join.Name)
	if err != nil {
		return err
	}
	if _, ok := l.reg.Finalize(s.ID, name, role, now); !ok {
		l.presence.Release(s.ID)
		return core.ErrAlreadyJoined
	}

	l.router.Send(ToSession(s.ID), protocol.Welcome{Type: protocol.TypeWelcome, SessionID: s.ID, Name: s.Name, Role: s.Role})
	l.router.Send(ToSession(s.ID), protocol.Roster{Type: protocol.TypeRoster, Names: l.presence.Roster()})
	l.router.Send(ToSession(s.ID), l.playback.State(now))
	if l.chat.len() > 0 {
		entries := l.chat.items()
		msgs := make([]protocol.ChatMessage, len(entries))
		for i, e := range entries {
			msgs[i] = protocol.NewChatMessage(e)
		}
		l.router.Send(ToSession(s.ID), protocol.ChatHistory{Type: protocol.TypeChatHistory, Messages: msgs})
	}
	if s.IsAdmin() {
		l.adminLog.Replay(s.ID)
	}

	l.router.Send(All(), protocol.UserEvent{Type: protocol.TypeUserJoined, Name: s.Name, Role: s.Role})
	l.systemChat(fmt.Sprintf("%s joined as %s.", s.Name, s.Role), now)
	log.Info().Str("module", "app.lobby").Str("sid", string(s.ID)).Str("client", s.ClientToken).Msgf("%s connected as %s.", s.Name, s.Role)
	return nil
}

// checkSecret limits attempts per remote address before comparing.
func (l *Lobby) checkSecret(s *Session, secret string, now time.Time) error {
	if !l.limiter.Allow(s.RemoteAddr, now) {
		log.Warn().Str("module", "app.lobby").Str("sid", string(s.ID)).Str("addr", s.RemoteAddr).Msg("admin login rate limited")
		return core.ErrRateLimited
	}
	want := l.opts.AdminSecret
	if want == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(want)) != 1 {
		log.Warn().Str("module", "app.lobby").Str("sid", string(s.ID)).Str("addr", s.RemoteAddr).Msg("admin login failed")
		return core.ErrForbidden
	}
	l.limiter.Reset(s.RemoteAddr)
	return nil
}

func (l *Lobby) adminLogin(s *Session, secret string, now time.Time) error {
	if !s.IsAdmin() {
		if err := l.checkSecret(s, secret, now); err != nil {
			return err
		}
		s.Role = domain.RoleAdmin
		log.Info().Str("module", "app.lobby").Str("sid", string(s.ID)).Msgf("%s logged in as admin.", s.Name)
		l.adminLog.Replay(s.ID)
	}
	l.router.Send(ToSession(s.ID), protocol.RoleChanged{Type: protocol.TypeRole, Role: s.Role})
	return nil
}

func (l *Lobby) postChat(s *Session, text string, now time.Time) {
	if strings.TrimSpace(text) == "" {
		return
	}
	l.appendChat(All(), s.Name, s.Role, text, now)
}

func (l *Lobby) systemChat(text string, now time.Time) {
	l.appendChat(All().Droppable(), systemSender, domain.RoleSystem, text, now)
}

func (l *Lobby) appendChat(t Target, from string, role domain.Role, text string, now time.Time) {
	entry := domain.ChatEntry{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		From:      from,
		Role:      role,
		Text:      text,
		Timestamp: now,
	}
	l.chat.push(entry)
	l.router.Send(t, protocol.NewChatMessage(entry))
}

// reject sends err to a draft and drops it. The error frame is flushed
// before the transport closes.
func (l *Lobby) reject(s *Session, err error) {
	log.Info().Str("module", "app.lobby").Str("sid", string(s.ID)).Str("reason", core.ReasonOf(err)).Msg("join rejected")
	l.router.Send(ToSession(s.ID), protocol.NewError(err))
	l.queueRemoval(s.ID)
}

// expireDrafts rejects drafts that did not join within JoinTimeout.
func (l *Lobby) expireDrafts(now time.Time) {
	for _, s := range l.reg.All() {
		if s.Active() || now.Sub(s.RegisteredAt) < l.opts.JoinTimeout {
			continue
		}
		l.reject(s, core.ErrJoinTimeout)
	}
}

func (l *Lobby) onSendFailure(s *Session, err error) {
	action := l.opts.Policy.OnBackPressure(s, err)
	log.Warn().Str("module", "app.lobby").Str("sid", string(s.ID)).Err(err).Int("action", int(action)).Msg("send failed")
	switch action {
	case KickMember:
		l.queueRemoval(s.ID)
	case MarkSlow:
		s.Slow = true
	}
}

func (l *Lobby) queueRemoval(sid core.SessionID) {
	l.removals = append(l.removals, sid)
}

// drainRemovals runs queued removals, including the ones their own
// broadcasts queue.
func (l *Lobby) drainRemovals() {
	for len(l.removals) > 0 {
		sid := l.removals[0]
		l.removals = l.removals[1:]
		l.remove(sid)
	}
}

func (l *Lobby) remove(sid core.SessionID) {
	s, ok := l.reg.Remove(sid)
	if !ok || !s.Active() {
		return
	}
	now := l.opts.Now()
	l.voice.Leave(s)
	l.presence.Release(sid)
	l.router.Send(All(), protocol.UserEvent{Type: protocol.TypeUserLeft, Name: s.Name})
	l.systemChat(fmt.Sprintf("%s left the lobby.", s.Name), now)
	log.Info().Str("module", "app.lobby").Str("sid", string(sid)).Msgf("%s disconnected.", s.Name)
}

func (l *Lobby) snapshot() Snapshot {
	channels := l.voice.Channels()
	infos := make([]VoiceChannelInfo, 0, len(channels))
	for name, n := range channels {
		infos = append(infos, VoiceChannelInfo{Name: name, MemberCount: n})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return Snapshot{
		Sessions:      l.reg.Count(),
		Pending:       l.reg.Pending(),
		Names:         l.presence.Roster(),
		Playback:      l.playback.State(l.opts.Now()),
		VoiceChannels: infos,
	}
}
