package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const MaxChannelNameLen = 36

var ErrChannelName = errors.New("invalid channel name")

type ChannelName string

func NewChannelName(raw string) (ChannelName, error) {
	name := strings.TrimSpace(raw)
	if name == "" || utf8.RuneCountInString(name) > MaxChannelNameLen {
		return "", ErrChannelName
	}
	return ChannelName(name), nil
}
