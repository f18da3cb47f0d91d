// Package track provides the Track domain entity.
package track

import (
	"encoding/json"
	"math"
	"time"
)

// UnknownAlbum is displayed when a track carries no album name.
const UnknownAlbum = "Unknown"

// Track represents a playable unit from the catalog.
// Tracks are values: they are never mutated once created and are compared by ID.
type Track struct {
	ID            string        // Catalog track ID
	Title         string        // Track title
	Artist        string        // Artist name
	Album         string        // Album name (optional)
	Duration      time.Duration // Duration hint from the catalog (0 if unknown)
	CoverImageURL string        // Cover image URL (optional)
	AudioURL      string        // Audio resource URL; empty means not playable
}

// wireTrack is the JSON shape used by the catalog API and by persisted state.
type wireTrack struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Artist          string   `json:"artist"`
	Album           string   `json:"album,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	CoverImageURL   string   `json:"cover_image_url,omitempty"`
	AudioURL        string   `json:"audio_url,omitempty"`
}

// IsPlayable reports whether the track has an audio resource.
func (t Track) IsPlayable() bool {
	return t.AudioURL != ""
}

// SameAs reports whether both tracks share the same identity.
func (t Track) SameAs(other Track) bool {
	return t.ID == other.ID
}

// DisplayAlbum returns the album name, or UnknownAlbum when absent.
func (t Track) DisplayAlbum() string {
	if t.Album == "" {
		return UnknownAlbum
	}
	return t.Album
}

// MarshalJSON encodes the track in catalog shape.
func (t Track) MarshalJSON() ([]byte, error) {
	w := wireTrack{
		ID:            t.ID,
		Title:         t.Title,
		Artist:        t.Artist,
		Album:         t.Album,
		CoverImageURL: t.CoverImageURL,
		AudioURL:      t.AudioURL,
	}
	if t.Duration > 0 {
		secs := t.Duration.Seconds()
		w.DurationSeconds = &secs
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a track from catalog shape.
func (t *Track) UnmarshalJSON(data []byte) error {
	var w wireTrack
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = Track{
		ID:            w.ID,
		Title:         w.Title,
		Artist:        w.Artist,
		Album:         w.Album,
		CoverImageURL: w.CoverImageURL,
		AudioURL:      w.AudioURL,
	}
	if w.DurationSeconds != nil && *w.DurationSeconds > 0 && !math.IsInf(*w.DurationSeconds, 0) {
		t.Duration = time.Duration(*w.DurationSeconds * float64(time.Second))
	}
	return nil
}

// IDs returns the IDs of the given tracks in order.
func IDs(tracks []Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}

// IndexOf returns the position of the track with the given ID, or -1.
func IndexOf(tracks []Track, id string) int {
	for i, t := range tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
