// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUnknownRole     = errors.New("unknown role")
)

type Role string

const (
	RoleGuest  Role = "guest"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// ParseRole accepts the roles a client may ask for on join.
// "user" is accepted as an alias of guest for older clients.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "guest", "user":
		return RoleGuest, nil
	case "admin":
		return RoleAdmin, nil
	}
	return "", ErrUnknownRole
}

// DisplayName is a trimmed, NFC-normalized name plus its comparison key.
type DisplayName struct {
	Display string
	Key     string
}

// NewDisplayName validates raw against maxLen runes (MaxUsernameLen if maxLen <= 0).
func NewDisplayName(raw string, maxLen int) (DisplayName, error) {
	if maxLen <= 0 {
		maxLen = MaxUsernameLen
	}
	display := norm.NFC.String(strings.TrimSpace(raw))
	if display == "" {
		return DisplayName{}, ErrUsernameEmpty
	}
	if utf8.RuneCountInString(display) > maxLen {
		return DisplayName{}, ErrUsernameTooLong
	}
	return DisplayName{Display: display, Key: NameKey(display)}, nil
}

// NameKey folds case so "Alice" and "ALICE " collide.
func NameKey(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}
