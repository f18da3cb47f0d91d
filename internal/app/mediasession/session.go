// Package mediasession integrates the playback controller with an OS level
// media control surface (lock screen, media keys, now playing widgets).
package mediasession

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var ErrUnknownCommand = errors.New("unknown media command")

// PlaybackState represents the playback state for media sessions.
type PlaybackState int

const (
	StateStopped PlaybackState = iota
	StatePlaying
	StatePaused
)

// String returns the string representation of the playback state.
func (s PlaybackState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Metadata contains track metadata for media session display.
type Metadata struct {
	TrackID    string
	Title      string
	Artist     string
	Album      string
	Duration   time.Duration
	ArtworkURL string
}

// Session is the interface for OS media session integration.
type Session interface {
	UpdateMetadata(metadata Metadata) error
	UpdatePlaybackState(state PlaybackState, position time.Duration) error
	SetCommandHandler(handler CommandHandler)
	Close() error
}

// Command represents a media command from the OS.
type Command int

const (
	CmdPlay Command = iota
	CmdPause
	CmdPlayPause
	CmdStop
	CmdNext
	CmdPrevious
	CmdSeek
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdPlay:
		return "play"
	case CmdPause:
		return "pause"
	case CmdPlayPause:
		return "playpause"
	case CmdStop:
		return "stop"
	case CmdNext:
		return "next"
	case CmdPrevious:
		return "previous"
	case CmdSeek:
		return "seek"
	default:
		return "unknown"
	}
}

// ParseCommand parses a command name as returned by Command.String.
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "play":
		return CmdPlay, nil
	case "pause":
		return CmdPause, nil
	case "playpause", "toggle":
		return CmdPlayPause, nil
	case "stop":
		return CmdStop, nil
	case "next", "nexttrack":
		return CmdNext, nil
	case "previous", "prev", "previoustrack":
		return CmdPrevious, nil
	case "seek", "seekto":
		return CmdSeek, nil
	default:
		return 0, errors.Wrapf(ErrUnknownCommand, "%q", s)
	}
}

// CommandHandler handles media commands from the OS.
type CommandHandler interface {
	OnCommand(cmd Command, data any) error
}

// CommandHandlerFunc is a function adapter for CommandHandler.
type CommandHandlerFunc func(cmd Command, data any) error

func (f CommandHandlerFunc) OnCommand(cmd Command, data any) error {
	return f(cmd, data)
}

// NoOpSession is a session that does nothing.
// Used when media session integration is not available.
type NoOpSession struct{}

// NewNoOpSession creates a new no-op session.
func NewNoOpSession() *NoOpSession {
	return &NoOpSession{}
}

func (s *NoOpSession) UpdateMetadata(Metadata) error {
	return nil
}

func (s *NoOpSession) UpdatePlaybackState(PlaybackState, time.Duration) error {
	return nil
}

func (s *NoOpSession) SetCommandHandler(CommandHandler) {
}

func (s *NoOpSession) Close() error {
	return nil
}
