// Package session provides the session manager.
package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/app/mediasession"
	"github.com/osa030/playdeck/internal/app/notification"
	"github.com/osa030/playdeck/internal/app/playback"
	"github.com/osa030/playdeck/internal/domain/playlist"
	"github.com/osa030/playdeck/internal/domain/track"
)

var (
	ErrNoCatalog      = errors.New("catalog is not configured")
	ErrAlreadyStarted = errors.New("session already started")
)

// Catalog looks up tracks and playlists by ID.
type Catalog interface {
	Track(ctx context.Context, id string) (track.Track, error)
	Playlist(ctx context.Context, id string) (*playlist.Playlist, error)
}

// Manager wires the playback controller to the media session and to
// notification subscribers, and resolves catalog IDs for play requests.
type Manager struct {
	mu sync.RWMutex

	// Components
	playback     *playback.Controller
	notification *notification.Manager
	bridge       *mediasession.Bridge
	remote       *mediasession.Remote
	catalog      Catalog

	started bool

	// Channels
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new session manager. media may be nil when no OS
// media integration is available; catalog may be nil.
func NewManager(
	pb *playback.Controller,
	notif *notification.Manager,
	media mediasession.Session,
	catalog Catalog,
) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		playback:     pb,
		notification: notif,
		bridge:       mediasession.NewBridge(media, pb),
		catalog:      catalog,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	if r, ok := media.(*mediasession.Remote); ok {
		m.remote = r
	}
	return m
}

// Start starts the event loop and publishes the restored state.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	snap := m.playback.Snapshot()
	m.bridge.Sync(snap)
	if snap.CurrentTrack != nil {
		zlog.Info().Msgf("session started: restored_track_id=%s queue_length=%d", snap.CurrentTrack.ID, snap.QueueLen)
	} else {
		zlog.Info().Msg("session started")
	}

	go m.playbackLoop()
	return nil
}

// Done is closed when the event loop exits.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Playback returns the playback controller.
func (m *Manager) Playback() *playback.Controller {
	return m.playback
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// Remote returns the in-process media session, nil when not enabled.
func (m *Manager) Remote() *mediasession.Remote {
	return m.remote
}

// PlayTrackByID looks the track up in the catalog and plays it.
func (m *Manager) PlayTrackByID(ctx context.Context, id string) (track.Track, error) {
	if m.catalog == nil {
		return track.Track{}, ErrNoCatalog
	}

	t, err := m.catalog.Track(ctx, id)
	if err != nil {
		return track.Track{}, errors.Wrapf(err, "failed to look up track %s", id)
	}
	if err := m.playback.PlayTrack(t); err != nil {
		return t, err
	}
	return t, nil
}

// PlayPlaylist loads a catalog playlist as the active queue and plays it.
func (m *Manager) PlayPlaylist(ctx context.Context, playlistID string, start int, shuffle bool) (*playlist.Playlist, error) {
	if m.catalog == nil {
		return nil, ErrNoCatalog
	}

	pl, err := m.catalog.Playlist(ctx, playlistID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load playlist %s", playlistID)
	}

	zlog.Info().Msgf("playing playlist: playlist_id=%s name=%q tracks=%d shuffle=%t", pl.ID, pl.Name, len(pl.Tracks), shuffle)
	if err := m.playback.PlayQueue(pl.Tracks, pl.ID, start, shuffle); err != nil {
		return pl, err
	}
	return pl, nil
}

// Close stops the event loop and releases all components.
func (m *Manager) Close() {
	m.cancel()
	m.playback.Close()
	if err := m.bridge.Close(); err != nil {
		zlog.Warn().Err(err).Msg("failed to close media session")
	}
	m.notification.Close()

	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if started {
		<-m.done
	}
}

// playbackLoop handles playback events.
func (m *Manager) playbackLoop() {
	restarted := false
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback loop panicked: %v", r)
			// Restart loop to keep the session responsive
			zlog.Info().Msg("restarting playback loop")
			restarted = true
			go m.playbackLoop()
		}
		if !restarted {
			close(m.done)
		}
	}()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-m.playback.Events():
			if !ok {
				return
			}
			m.handlePlaybackEvent(event)
		}
	}
}

// handlePlaybackEvent handles playback events.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	trackID := ""
	if event.Track != nil {
		trackID = event.Track.ID
	}

	switch event.Type {
	case playback.EventProgress:
		zlog.Debug().Msgf("playback event: type=%s track_id=%s position=%v", event.Type, trackID, event.State.CurrentTime)
	case playback.EventPlaybackFailed:
		zlog.Warn().Err(event.Err).Msgf("playback event: type=%s track_id=%s", event.Type, trackID)
	default:
		zlog.Info().Msgf("playback event: type=%s track_id=%s state=%s", event.Type, trackID, event.State.State)
	}

	m.bridge.Sync(event.State)
	m.notification.Broadcast(notification.FromEvent(event))
}
