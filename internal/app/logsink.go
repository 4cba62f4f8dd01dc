package app

import (
	"encoding/json"

	"github.com/dkeye/Lobby/internal/domain"
	"github.com/rs/zerolog"
)

// LogSink is a zerolog writer that feeds records into the lobby's admin
// log. It never blocks the logger.
type LogSink struct {
	lobby     *Lobby
	threshold zerolog.Level
}

var _ zerolog.LevelWriter = (*LogSink)(nil)

func NewLogSink(lobby *Lobby, threshold zerolog.Level) *LogSink {
	return &LogSink{lobby: lobby, threshold: threshold}
}

func (s *LogSink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.NoLevel, p)
}

func (s *LogSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level != zerolog.NoLevel && level < s.threshold {
		return len(p), nil
	}
	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		return len(p), nil
	}

	rec := domain.LogRecord{Time: s.lobby.Now()}
	if v, ok := fields[zerolog.LevelFieldName].(string); ok {
		rec.Level = v
		if level == zerolog.NoLevel {
			if parsed, err := zerolog.ParseLevel(v); err == nil && parsed < s.threshold {
				return len(p), nil
			}
		}
	}
	rec.Message, _ = fields[zerolog.MessageFieldName].(string)
	rec.Module, _ = fields["module"].(string)
	for _, k := range []string{zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName, "module"} {
		delete(fields, k)
	}
	if len(fields) > 0 {
		rec.Fields = fields
	}

	s.lobby.Emit(rec)
	return len(p), nil
}
