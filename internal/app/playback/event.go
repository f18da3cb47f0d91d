package playback

import "github.com/osa030/playdeck/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackChanged   EventType = iota // A new track became current
	EventStateChanged                    // Play/pause state changed
	EventProgress                        // Playback position changed
	EventDurationKnown                   // Duration of the current track determined
	EventVolumeChanged                   // Volume changed
	EventTrackEnded                      // Current track played to the end
	EventPlaybackFailed                  // Current track failed to load or play
	EventQueueChanged                    // Active queue set or cleared
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventStateChanged:
		return "state_changed"
	case EventProgress:
		return "progress"
	case EventDurationKnown:
		return "duration_known"
	case EventVolumeChanged:
		return "volume_changed"
	case EventTrackEnded:
		return "track_ended"
	case EventPlaybackFailed:
		return "playback_failed"
	case EventQueueChanged:
		return "queue_changed"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type    EventType
	Track   *track.Track // Track the event refers to (nil for some events)
	State   Snapshot     // Controller state right after the change
	Err     error        // EventPlaybackFailed only
	Message string       // User-facing message (EventPlaybackFailed only)
}
