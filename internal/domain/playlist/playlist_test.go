package playlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/playdeck/internal/domain/track"
)

func TestPlaylist_TrackIDs(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []track.Track
		expected []string
	}{
		{
			name:     "empty playlist",
			tracks:   []track.Track{},
			expected: []string{},
		},
		{
			name: "single track",
			tracks: []track.Track{
				{ID: "track-1"},
			},
			expected: []string{"track-1"},
		},
		{
			name: "multiple tracks",
			tracks: []track.Track{
				{ID: "track-1"},
				{ID: "track-2"},
				{ID: "track-3"},
			},
			expected: []string{"track-1", "track-2", "track-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{
				ID:     "playlist-1",
				Tracks: tt.tracks,
			}

			assert.Equal(t, tt.expected, p.TrackIDs())
		})
	}
}

func TestPlaylist_TotalDuration(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []track.Track
		expected int64
	}{
		{
			name:     "empty playlist",
			tracks:   []track.Track{},
			expected: 0,
		},
		{
			name: "multiple tracks",
			tracks: []track.Track{
				{ID: "track-1", Duration: 2 * time.Minute},
				{ID: "track-2", Duration: 3*time.Minute + 30*time.Second},
				{ID: "track-3"}, // unknown duration
			},
			expected: 330,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{ID: "playlist-1", Tracks: tt.tracks}
			assert.Equal(t, tt.expected, p.TotalDuration())
		})
	}
}

func TestPlaylist_PlayableTracks(t *testing.T) {
	p := &Playlist{
		ID: "playlist-1",
		Tracks: []track.Track{
			{ID: "a", AudioURL: "https://x/a.mp3"},
			{ID: "b"},
			{ID: "c", AudioURL: "https://x/c.mp3"},
		},
	}

	assert.Equal(t, []string{"a", "c"}, track.IDs(p.PlayableTracks()))
}

func TestPlaylist_OrderBy(t *testing.T) {
	p := &Playlist{
		ID:     "playlist-1",
		Tracks: []track.Track{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}

	got := p.OrderBy([]string{"c", "missing", "a", "b"})
	assert.Equal(t, []string{"c", "a", "b"}, track.IDs(got))
}
