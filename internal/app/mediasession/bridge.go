package mediasession

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/app/playback"
)

// Player is the control surface the bridge routes commands to.
type Player interface {
	Resume() error
	Pause() error
	TogglePlay() error
	PlayNext() error
	PlayPrevious() error
	SeekTo(position time.Duration) error
}

// Bridge keeps a media session in step with the playback controller and
// routes OS commands back to it.
type Bridge struct {
	mu      sync.Mutex
	session Session
	player  Player

	trackID string
	state   PlaybackState
	synced  bool
}

// NewBridge creates a bridge. A nil session disables the bridge.
func NewBridge(session Session, player Player) *Bridge {
	b := &Bridge{session: session, player: player, state: StateStopped}
	if session != nil {
		session.SetCommandHandler(CommandHandlerFunc(b.handle))
	}
	return b
}

// Sync pushes metadata when the current track changed and the playback
// state when it changed.
func (b *Bridge) Sync(s playback.Snapshot) {
	if b.session == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	trackID := ""
	if s.CurrentTrack != nil {
		trackID = s.CurrentTrack.ID
	}
	state := sessionState(s)

	trackChanged := !b.synced || trackID != b.trackID
	if trackChanged && s.CurrentTrack != nil {
		t := s.CurrentTrack
		md := Metadata{
			TrackID:    t.ID,
			Title:      t.Title,
			Artist:     t.Artist,
			Album:      t.DisplayAlbum(),
			Duration:   t.Duration,
			ArtworkURL: t.CoverImageURL,
		}
		if s.DurationKnown {
			md.Duration = s.Duration
		}
		if err := b.session.UpdateMetadata(md); err != nil {
			zlog.Warn().Err(err).Msgf("mediasession: failed to update metadata: track_id=%s", t.ID)
		}
	}

	if trackChanged || state != b.state {
		if err := b.session.UpdatePlaybackState(state, s.CurrentTime); err != nil {
			zlog.Warn().Err(err).Msgf("mediasession: failed to update playback state: state=%s", state)
		}
	}

	b.trackID = trackID
	b.state = state
	b.synced = true
}

// Close closes the underlying session.
func (b *Bridge) Close() error {
	if b.session == nil {
		return nil
	}
	return b.session.Close()
}

func (b *Bridge) handle(cmd Command, data any) error {
	zlog.Info().Msgf("mediasession: command received: command=%s", cmd)

	switch cmd {
	case CmdPlay:
		return b.player.Resume()
	case CmdPause, CmdStop:
		return b.player.Pause()
	case CmdPlayPause:
		return b.player.TogglePlay()
	case CmdNext:
		return b.player.PlayNext()
	case CmdPrevious:
		return b.player.PlayPrevious()
	case CmdSeek:
		pos, err := seekPosition(data)
		if err != nil {
			return err
		}
		return b.player.SeekTo(pos)
	default:
		return errors.Wrapf(ErrUnknownCommand, "%d", int(cmd))
	}
}

func sessionState(s playback.Snapshot) PlaybackState {
	switch s.State {
	case playback.StatePlaying:
		return StatePlaying
	case playback.StatePaused:
		return StatePaused
	default:
		return StateStopped
	}
}

// seekPosition accepts a duration or a number of seconds.
func seekPosition(data any) (time.Duration, error) {
	switch v := data.(type) {
	case time.Duration:
		return v, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, errors.Newf("invalid seek position: %v", data)
	}
}
