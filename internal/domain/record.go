package domain

import "time"

// ChatEntry is one line of lobby chat kept for late joiners.
type ChatEntry struct {
	ID        string
	From      string
	Role      Role
	Text      string
	Timestamp time.Time
}

// LogRecord is a server log line streamed to admins.
type LogRecord struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Module  string         `json:"module,omitempty"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}
