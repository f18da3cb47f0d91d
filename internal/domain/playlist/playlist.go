// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/playdeck/internal/domain/track"
)

// Playlist represents a catalog playlist with its ordered tracks.
type Playlist struct {
	ID          string        // Catalog playlist ID
	Name        string        // Playlist name
	Description string        // Playlist description
	IsPublic    bool          // Visibility
	OwnerName   string        // Owner display name (optional)
	Tracks      []track.Track // Tracks in playlist order
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	return track.IDs(p.Tracks)
}

// TotalDuration returns the total duration of all tracks in seconds.
func (p *Playlist) TotalDuration() int64 {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return int64(total.Seconds())
}

// PlayableTracks returns the tracks that have an audio resource, in order.
func (p *Playlist) PlayableTracks() []track.Track {
	result := make([]track.Track, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		if t.IsPlayable() {
			result = append(result, t)
		}
	}
	return result
}

// OrderBy returns the playlist tracks arranged by the given ID order.
// IDs that are not part of the playlist are skipped.
func (p *Playlist) OrderBy(ids []string) []track.Track {
	byID := make(map[string]track.Track, len(p.Tracks))
	for _, t := range p.Tracks {
		byID[t.ID] = t
	}

	result := make([]track.Track, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			result = append(result, t)
		}
	}
	return result
}
