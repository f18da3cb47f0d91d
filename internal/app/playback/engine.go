package playback

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrAutoplayBlocked is returned by engines that refuse to start audio
// without a user gesture.
var ErrAutoplayBlocked = errors.New("autoplay blocked")

// Source describes the resource to load into the engine.
type Source struct {
	TrackID      string
	URL          string
	DurationHint time.Duration // Catalog duration, 0 if unknown
}

// EngineEventType represents an engine event type.
type EngineEventType int

const (
	EngineTimeUpdate    EngineEventType = iota // Playback position advanced
	EngineDurationKnown                        // Resource duration determined
	EngineEnded                                // Resource played to the end
	EngineError                                // Load or playback failure
)

// String returns the string representation of the engine event type.
func (e EngineEventType) String() string {
	switch e {
	case EngineTimeUpdate:
		return "time_update"
	case EngineDurationKnown:
		return "duration_known"
	case EngineEnded:
		return "ended"
	case EngineError:
		return "error"
	default:
		return "unknown"
	}
}

// EngineEvent is emitted by an Engine for the resource it was loaded with.
type EngineEvent struct {
	Type     EngineEventType
	Position time.Duration // EngineTimeUpdate
	Duration time.Duration // EngineDurationKnown
	Err      error         // EngineError
}

// EventHandler receives engine events for one loaded resource.
type EventHandler func(EngineEvent)

// Engine owns exactly one audio resource at a time.
//
// Load discards the previous resource and its handler before attaching the
// new ones. Handlers are always invoked asynchronously, never from inside an
// Engine method, and failures are reported as EngineError events rather than
// panics.
type Engine interface {
	Load(src Source, handler EventHandler) error
	Play(ctx context.Context) error
	Pause() error
	Seek(position time.Duration) error
	SetVolume(level float64) error
	Unload() error
}
