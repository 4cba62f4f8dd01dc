package app

import (
	"math"
	"time"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/dkeye/Lobby/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Playback is the shared playback state machine. Every transition that
// changes the record broadcasts the full snapshot.
type Playback struct {
	rec    domain.Playback
	router *Router
}

func NewPlayback(router *Router) *Playback {
	return &Playback{router: router}
}

func (p *Playback) Record() domain.Playback { return p.rec }

// State renders the record with the effective position at now.
func (p *Playback) State(now time.Time) protocol.PlaybackState {
	st := protocol.PlaybackState{
		Type:            protocol.TypePlaybackState,
		TrackID:         p.rec.TrackID,
		IsPlaying:       p.rec.IsPlaying,
		PositionSeconds: p.rec.PositionAt(now),
		DurationSeconds: p.rec.DurationSeconds,
		ServerTime:      now.UnixMilli(),
	}
	if !p.rec.LastUpdatedAt.IsZero() {
		st.UpdatedAt = p.rec.LastUpdatedAt.UnixMilli()
	}
	return st
}

// Apply runs cmd on behalf of s. Only admins may drive playback.
func (p *Playback) Apply(s *Session, cmd protocol.PlaybackCommand, now time.Time) error {
	if !s.IsAdmin() {
		return core.ErrForbidden
	}

	var (
		changed bool
		err     error
	)
	switch cmd.Action {
	case protocol.ActionLoad:
		changed, err = true, p.Load(cmd.TrackID, cmd.DurationSeconds, now)
	case protocol.ActionPlay:
		changed, err = p.Play(now)
	case protocol.ActionPause:
		changed, err = p.Pause(now)
	case protocol.ActionSeek:
		changed, err = true, p.Seek(cmd.Position, now)
	default:
		return core.ErrInvalidAction
	}
	if err != nil || !changed {
		return err
	}

	log.Info().
		Str("module", "app.playback").
		Str("sid", string(s.ID)).
		Str("action", string(cmd.Action)).
		Str("track", p.rec.TrackID).
		Bool("playing", p.rec.IsPlaying).
		Float64("position", p.rec.PositionSeconds).
		Msg("playback transition")
	p.router.Send(All(), p.State(now))
	return nil
}

// Load stops whatever played and cues trackID at zero.
func (p *Playback) Load(trackID string, durationSeconds float64, now time.Time) error {
	if trackID == "" {
		return core.ErrEmptyTrack
	}
	if durationSeconds < 0 || math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) {
		durationSeconds = 0
	}
	p.rec = domain.Playback{
		TrackID:         trackID,
		DurationSeconds: durationSeconds,
		LastUpdatedAt:   now,
	}
	return nil
}

// Play resumes from the frozen position. Playing again is a no-op.
func (p *Playback) Play(now time.Time) (bool, error) {
	if !p.rec.Loaded() {
		return false, core.ErrNoTrack
	}
	if p.rec.IsPlaying {
		return false, nil
	}
	p.rec.IsPlaying = true
	p.rec.LastUpdatedAt = now
	return true, nil
}

// Pause freezes the effective position. Pausing a paused track is a no-op.
func (p *Playback) Pause(now time.Time) (bool, error) {
	if !p.rec.Loaded() {
		return false, core.ErrNoTrack
	}
	if !p.rec.IsPlaying {
		return false, nil
	}
	p.rec.PositionSeconds = p.rec.PositionAt(now)
	p.rec.IsPlaying = false
	p.rec.LastUpdatedAt = now
	return true, nil
}

// Seek clamps to [0, duration] when the duration is known, else [0, inf).
func (p *Playback) Seek(to float64, now time.Time) error {
	if !p.rec.Loaded() {
		return core.ErrNoTrack
	}
	if math.IsNaN(to) || math.IsInf(to, 0) {
		return core.ErrMalformed
	}
	if to < 0 {
		to = 0
	}
	if p.rec.DurationSeconds > 0 && to > p.rec.DurationSeconds {
		to = p.rec.DurationSeconds
	}
	p.rec.PositionSeconds = to
	p.rec.LastUpdatedAt = now
	return nil
}
