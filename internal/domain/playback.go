package domain

import "time"

// Playback is the authoritative media position.
// PositionSeconds is relative to LastUpdatedAt while IsPlaying.
type Playback struct {
	TrackID         string
	IsPlaying       bool
	PositionSeconds float64
	// DurationSeconds is zero when the duration is unknown.
	DurationSeconds float64
	LastUpdatedAt   time.Time
}

func (p Playback) Loaded() bool { return p.TrackID != "" }

// PositionAt extrapolates the effective position at now.
func (p Playback) PositionAt(now time.Time) float64 {
	pos := p.PositionSeconds
	if p.IsPlaying {
		if elapsed := now.Sub(p.LastUpdatedAt).Seconds(); elapsed > 0 {
			pos += elapsed
		}
	}
	if p.DurationSeconds > 0 && pos > p.DurationSeconds {
		pos = p.DurationSeconds
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}
