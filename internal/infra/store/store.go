// Package store persists player state (last played track, recent tracks and
// the active playlist snapshot) to a durable key-value backend.
package store

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/osa030/playdeck/internal/domain/track"
)

// Storage keys.
const (
	KeyLastPlayed     = "player.last_played"
	KeyRecentTracks   = "player.recent_tracks"
	KeyActivePlaylist = "player.active_playlist"
)

// formatVersion is the envelope version written by this package.
const formatVersion = 1

var (
	ErrNotFound = errors.New("key not found")
	ErrCorrupt  = errors.New("stored value is corrupt")
)

// KV is a durable string-keyed byte store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error) // ErrNotFound when absent
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// PlaylistSnapshot records the active queue so that queue-mode navigation
// can be resumed after a restart.
type PlaylistSnapshot struct {
	PlaylistID string   `json:"playlist_id,omitempty"`
	TrackIDs   []string `json:"track_ids"`
}

// envelope wraps every stored value with a format version.
type envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// Store provides typed access to persisted player state.
type Store struct {
	kv KV
}

// New creates a store on top of the given backend.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// LastPlayed returns the last played track, or nil if none is stored.
func (s *Store) LastPlayed(ctx context.Context) (*track.Track, error) {
	var t track.Track
	found, err := s.get(ctx, KeyLastPlayed, &t)
	if err != nil || !found {
		return nil, err
	}
	return &t, nil
}

// SetLastPlayed stores the last played track.
func (s *Store) SetLastPlayed(ctx context.Context, t track.Track) error {
	return s.set(ctx, KeyLastPlayed, t)
}

// RecentTracks returns the recent tracks, most recent first.
func (s *Store) RecentTracks(ctx context.Context) ([]track.Track, error) {
	var tracks []track.Track
	if _, err := s.get(ctx, KeyRecentTracks, &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// SetRecentTracks stores the recent tracks list.
func (s *Store) SetRecentTracks(ctx context.Context, tracks []track.Track) error {
	if tracks == nil {
		tracks = []track.Track{}
	}
	return s.set(ctx, KeyRecentTracks, tracks)
}

// ActivePlaylist returns the active playlist snapshot, or nil if none is stored.
func (s *Store) ActivePlaylist(ctx context.Context) (*PlaylistSnapshot, error) {
	var snap PlaylistSnapshot
	found, err := s.get(ctx, KeyActivePlaylist, &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

// SetActivePlaylist stores the active playlist snapshot.
func (s *Store) SetActivePlaylist(ctx context.Context, snap PlaylistSnapshot) error {
	return s.set(ctx, KeyActivePlaylist, snap)
}

// ClearActivePlaylist removes the active playlist snapshot.
func (s *Store) ClearActivePlaylist(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyActivePlaylist); err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, "failed to clear active playlist")
	}
	return nil
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

func (s *Store) get(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to read %s", key)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, errors.Mark(errors.Wrapf(err, "failed to decode %s", key), ErrCorrupt)
	}
	if env.Version != formatVersion {
		return false, errors.Mark(errors.Newf("unsupported format version %d for %s", env.Version, key), ErrCorrupt)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return false, errors.Mark(errors.Wrapf(err, "failed to decode %s", key), ErrCorrupt)
	}
	return true, nil
}

func (s *Store) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", key)
	}
	raw, err := json.Marshal(envelope{Version: formatVersion, Data: data})
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", key)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return errors.Wrapf(err, "failed to write %s", key)
	}
	return nil
}
