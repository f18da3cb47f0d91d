package playback

import "github.com/osa030/playdeck/internal/domain/track"

// PushRecent returns a new recent list with t at the front, any earlier
// entry with the same ID removed, truncated to capacity.
func PushRecent(recent []track.Track, t track.Track, capacity int) []track.Track {
	if capacity <= 0 {
		return []track.Track{}
	}

	result := make([]track.Track, 0, min(len(recent)+1, capacity))
	result = append(result, t)
	for _, r := range recent {
		if len(result) >= capacity {
			break
		}
		if r.SameAs(t) {
			continue
		}
		result = append(result, r)
	}
	return result
}
