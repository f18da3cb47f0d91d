package notification

import (
	"time"

	"github.com/osa030/playdeck/internal/app/playback"
	"github.com/osa030/playdeck/internal/domain/track"
)

// Type identifies a notification kind.
type Type string

const (
	TypeInitialState  Type = "initial_state"
	TypeTrackChanged  Type = "track_changed"
	TypeStateChanged  Type = "state_changed"
	TypeProgress      Type = "progress"
	TypeDuration      Type = "duration_known"
	TypeVolumeChanged Type = "volume_changed"
	TypeTrackEnded    Type = "track_ended"
	TypeError         Type = "playback_failed"
	TypeQueueChanged  Type = "queue_changed"
)

// Notification is a message pushed to subscribers.
type Notification struct {
	SequenceNo uint64       `json:"sequence_no"`
	Type       Type         `json:"type"`
	Timestamp  time.Time    `json:"timestamp"`
	Message    string       `json:"message,omitempty"`
	Player     *PlayerState `json:"player,omitempty"`
}

// PlayerState is the wire form of a playback snapshot.
type PlayerState struct {
	CurrentTrack *track.Track `json:"current_track"`
	State        string       `json:"state"`
	IsPlaying    bool         `json:"is_playing"`
	CurrentTime  float64      `json:"current_time"`
	Duration     *float64     `json:"duration"` // null until known
	Volume       float64      `json:"volume"`
	HasNext      bool         `json:"has_next"`
	HasPrevious  bool         `json:"has_previous"`
	HistoryIndex int          `json:"history_index"`
	HistoryLen   int          `json:"history_length"`
	QueueLen     int          `json:"queue_length"`
	PlaylistID   string       `json:"playlist_id,omitempty"`
}

// NewPlayerState converts a snapshot to its wire form.
func NewPlayerState(s playback.Snapshot) *PlayerState {
	ps := &PlayerState{
		CurrentTrack: s.CurrentTrack,
		State:        s.State.String(),
		IsPlaying:    s.IsPlaying,
		CurrentTime:  s.CurrentTime.Seconds(),
		Volume:       s.Volume,
		HasNext:      s.HasNext,
		HasPrevious:  s.HasPrevious,
		HistoryIndex: s.HistoryIndex,
		HistoryLen:   s.HistoryLen,
		QueueLen:     s.QueueLen,
		PlaylistID:   s.PlaylistID,
	}
	if s.DurationKnown {
		d := s.Duration.Seconds()
		ps.Duration = &d
	}
	return ps
}

// FromEvent builds the notification for a controller event.
func FromEvent(e playback.Event) *Notification {
	n := &Notification{
		Type:      eventType(e.Type),
		Timestamp: time.Now(),
		Player:    NewPlayerState(e.State),
	}
	if e.Type == playback.EventPlaybackFailed {
		n.Message = e.Message
	}
	return n
}

func eventType(t playback.EventType) Type {
	switch t {
	case playback.EventTrackChanged:
		return TypeTrackChanged
	case playback.EventStateChanged:
		return TypeStateChanged
	case playback.EventProgress:
		return TypeProgress
	case playback.EventDurationKnown:
		return TypeDuration
	case playback.EventVolumeChanged:
		return TypeVolumeChanged
	case playback.EventTrackEnded:
		return TypeTrackEnded
	case playback.EventPlaybackFailed:
		return TypeError
	case playback.EventQueueChanged:
		return TypeQueueChanged
	default:
		return Type(t.String())
	}
}
