package mediasession

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

var (
	ErrNoHandler     = errors.New("no command handler registered")
	ErrSessionClosed = errors.New("media session closed")
)

// NowPlaying is what the remote surface currently displays.
type NowPlaying struct {
	Metadata *Metadata
	State    PlaybackState
	Position time.Duration
}

// Remote is an in-process media session. It keeps the last published
// metadata and state for remote displays and forwards key presses to the
// registered handler.
type Remote struct {
	mu       sync.RWMutex
	metadata *Metadata
	state    PlaybackState
	position time.Duration
	handler  CommandHandler
	closed   bool
}

var _ Session = (*Remote)(nil)

// NewRemote creates a new remote session.
func NewRemote() *Remote {
	return &Remote{state: StateStopped}
}

// UpdateMetadata records the now playing metadata.
func (r *Remote) UpdateMetadata(metadata Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrSessionClosed
	}
	r.metadata = &metadata
	return nil
}

// UpdatePlaybackState records the playback state and position.
func (r *Remote) UpdatePlaybackState(state PlaybackState, position time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrSessionClosed
	}
	r.state = state
	r.position = position
	return nil
}

// SetCommandHandler registers the handler that receives key presses.
func (r *Remote) SetCommandHandler(handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
}

// Close detaches the handler. Later updates and presses fail.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.handler = nil
	return nil
}

// NowPlaying returns a copy of the displayed state.
func (r *Remote) NowPlaying() NowPlaying {
	r.mu.RLock()
	defer r.mu.RUnlock()

	np := NowPlaying{State: r.state, Position: r.position}
	if r.metadata != nil {
		m := *r.metadata
		np.Metadata = &m
	}
	return np
}

// Press delivers a media key press to the handler.
func (r *Remote) Press(cmd Command, data any) error {
	r.mu.RLock()
	h := r.handler
	closed := r.closed
	r.mu.RUnlock()

	if closed {
		return ErrSessionClosed
	}
	if h == nil {
		return ErrNoHandler
	}

	zlog.Debug().Msgf("mediasession: key pressed: command=%s", cmd)
	return h.OnCommand(cmd, data)
}
