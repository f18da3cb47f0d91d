// Package playback provides the playback session controller.
package playback

import (
	"time"

	"github.com/osa030/playdeck/internal/domain/track"
)

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No track loaded
	StatePlaying              // Track is playing
	StatePaused               // Track is loaded but not playing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Snapshot is the observable state of the controller at one instant.
type Snapshot struct {
	CurrentTrack  *track.Track
	State         State
	IsPlaying     bool
	CurrentTime   time.Duration
	Duration      time.Duration
	DurationKnown bool
	Volume        float64
	HasNext       bool
	HasPrevious   bool
	HistoryIndex  int
	HistoryLen    int
	QueueLen      int
	PlaylistID    string
}
