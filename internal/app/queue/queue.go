// Package queue resolves what "next" and "previous" mean for the player.
//
// An active queue (an explicit playlist) wins when it contains the current
// track and wraps around circularly. Otherwise the session play history is
// used as a linear fallback.
package queue

import (
	"math/rand"

	"github.com/osa030/playdeck/internal/domain/track"
)

// Queue is an externally supplied ordered list of tracks.
type Queue struct {
	PlaylistID string        // Source playlist ID (optional)
	Tracks     []track.Track // Tracks in play order
}

// New creates a queue from a copy of the given tracks.
func New(playlistID string, tracks []track.Track) *Queue {
	copied := make([]track.Track, len(tracks))
	copy(copied, tracks)
	return &Queue{PlaylistID: playlistID, Tracks: copied}
}

// Len returns the number of tracks in the queue.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.Tracks)
}

// IndexOf returns the position of the track with the given ID, or -1.
func (q *Queue) IndexOf(id string) int {
	if q == nil {
		return -1
	}
	return track.IndexOf(q.Tracks, id)
}

// Contains reports whether the queue holds the track with the given ID.
func (q *Queue) Contains(id string) bool {
	return q.IndexOf(id) >= 0
}

// TrackIDs returns the IDs of the queued tracks in order.
func (q *Queue) TrackIDs() []string {
	if q == nil {
		return nil
	}
	return track.IDs(q.Tracks)
}

// Source identifies where a resolved target comes from.
type Source int

const (
	SourceQueue   Source = iota // Resolved from the active queue
	SourceHistory               // Resolved from the play history
)

// String returns the string representation of the source.
func (s Source) String() string {
	switch s {
	case SourceQueue:
		return "queue"
	case SourceHistory:
		return "history"
	default:
		return "unknown"
	}
}

// Target is a resolved next/previous track.
type Target struct {
	Track  track.Track
	Source Source
	Index  int // Position in the queue or in the history, depending on Source
}

// Position describes the state the resolver works on.
type Position struct {
	Current      *track.Track
	Queue        *Queue
	History      []track.Track
	HistoryIndex int
}

// Next returns the track that follows the current position.
func Next(p Position) (Target, bool) {
	return step(p, 1)
}

// Previous returns the track that precedes the current position.
func Previous(p Position) (Target, bool) {
	return step(p, -1)
}

// HasNext reports whether Next would return a track.
func HasNext(p Position) bool {
	_, ok := Next(p)
	return ok
}

// HasPrevious reports whether Previous would return a track.
func HasPrevious(p Position) bool {
	_, ok := Previous(p)
	return ok
}

func step(p Position, delta int) (Target, bool) {
	if p.Current != nil {
		if i := p.Queue.IndexOf(p.Current.ID); i >= 0 {
			n := p.Queue.Len()
			j := ((i+delta)%n + n) % n
			return Target{Track: p.Queue.Tracks[j], Source: SourceQueue, Index: j}, true
		}
	}

	// The index is checked on every call; a stale pointer must never read out of range.
	if p.HistoryIndex < 0 || p.HistoryIndex >= len(p.History) {
		return Target{}, false
	}
	j := p.HistoryIndex + delta
	if j < 0 || j >= len(p.History) {
		return Target{}, false
	}
	return Target{Track: p.History[j], Source: SourceHistory, Index: j}, true
}

// Shuffle returns a shuffled copy of the tracks.
func Shuffle(tracks []track.Track, rnd *rand.Rand) []track.Track {
	shuffled := make([]track.Track, len(tracks))
	copy(shuffled, tracks)
	shuffle := rand.Shuffle
	if rnd != nil {
		shuffle = rnd.Shuffle
	}
	shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}
