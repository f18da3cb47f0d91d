package playback

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/app/queue"
	"github.com/osa030/playdeck/internal/domain/track"
	"github.com/osa030/playdeck/internal/infra/store"
)

// Errors
var (
	ErrNoTrack        = errors.New("no track loaded")
	ErrNotPlayable    = errors.New("track has no audio url")
	ErrPlaybackFailed = errors.New("playback failed")
	ErrClosed         = errors.New("controller closed")
)

const (
	defaultRecentCapacity = 10
	persistTimeout        = 5 * time.Second
	eventBufferSize       = 64
)

// Persistence stores the player state that survives restarts.
type Persistence interface {
	LastPlayed(ctx context.Context) (*track.Track, error)
	SetLastPlayed(ctx context.Context, t track.Track) error
	RecentTracks(ctx context.Context) ([]track.Track, error)
	SetRecentTracks(ctx context.Context, tracks []track.Track) error
	ActivePlaylist(ctx context.Context) (*store.PlaylistSnapshot, error)
	SetActivePlaylist(ctx context.Context, snap store.PlaylistSnapshot) error
	ClearActivePlaylist(ctx context.Context) error
}

// TrackResolver turns a stored playlist snapshot back into full tracks.
type TrackResolver interface {
	ResolveSnapshot(ctx context.Context, snap store.PlaylistSnapshot) ([]track.Track, error)
}

// Config holds controller configuration.
type Config struct {
	DefaultVolume         float64    // Initial volume (0..1)
	RecentCapacity        int        // Maximum number of recent tracks kept
	AutoAdvance           bool       // Play the next track when one ends
	PlaybackFailedMessage string     // Format with the track title
	Rand                  *rand.Rand // Shuffle source, nil for a time-seeded one
}

// Controller owns the playback session: current track, play state, volume,
// session history and the active queue.
type Controller struct {
	mu sync.RWMutex

	engine   Engine
	persist  Persistence
	resolver TrackResolver
	config   Config
	rnd      *rand.Rand

	// Current track state
	current       *track.Track
	loaded        bool // Engine holds current's resource and can play it
	playing       bool
	position      time.Duration
	duration      time.Duration
	durationKnown bool
	volume        float64

	// Navigation
	history      []track.Track
	historyIndex int
	active       *queue.Queue

	// generation is bumped on every load; engine callbacks carry the
	// generation they were registered with.
	generation uint64

	eventCh chan Event
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a playback controller and restores the last played
// track (paused) and the active queue from persistence. Restore failures are
// logged and never fatal. resolver may be nil.
func NewController(ctx context.Context, config Config, engine Engine, persist Persistence, resolver TrackResolver) *Controller {
	if config.RecentCapacity <= 0 {
		config.RecentCapacity = defaultRecentCapacity
	}
	rnd := config.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		engine:       engine,
		persist:      persist,
		resolver:     resolver,
		config:       config,
		rnd:          rnd,
		volume:       clampVolume(config.DefaultVolume),
		history:      make([]track.Track, 0),
		historyIndex: -1,
		eventCh:      make(chan Event, eventBufferSize),
		ctx:          cctx,
		cancel:       cancel,
	}

	c.restore(ctx)
	return c
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// PlayTrack makes t the current track, appends it to the session history and
// starts playback. A track without an audio URL is rejected with
// ErrNotPlayable and leaves the state unchanged.
func (c *Controller) PlayTrack(t track.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.playTrackLocked(t)
}

// Pause pauses playback. No-op when nothing is loaded or already paused.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pauseLocked()
}

// Resume resumes the current track.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.resumeLocked()
}

// TogglePlay pauses when playing and resumes otherwise. No-op without a
// current track.
func (c *Controller) TogglePlay() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.closed {
		return nil
	}
	if c.playing {
		return c.pauseLocked()
	}
	return c.resumeLocked()
}

// SeekTo moves the playback position. Ignored until the duration of the
// current track is known; the position is clamped to [0, duration].
func (c *Controller) SeekTo(position time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.closed || !c.durationKnown || c.duration <= 0 {
		return nil
	}

	position = max(0, min(position, c.duration))
	if c.loaded {
		if err := c.engine.Seek(position); err != nil {
			zlog.Warn().Err(err).Msgf("playback: seek failed: track_id=%s position=%v", c.current.ID, position)
			return errors.Wrap(err, "failed to seek")
		}
	}
	c.position = position

	c.sendEventLocked(Event{Type: EventProgress, Track: c.current})
	return nil
}

// SetVolume sets the volume, clamped to [0, 1]. The level is kept for the
// session only and reapplied to every newly loaded track.
func (c *Controller) SetVolume(level float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if math.IsNaN(level) || c.closed {
		return nil
	}

	c.volume = clampVolume(level)
	if c.loaded {
		if err := c.engine.SetVolume(c.volume); err != nil {
			zlog.Warn().Err(err).Msgf("playback: set volume failed: level=%.2f", c.volume)
		}
	}

	c.sendEventLocked(Event{Type: EventVolumeChanged, Track: c.current})
	return nil
}

// PlayNext plays the next track. Walks forward in the session history when
// the current track is behind its tail, otherwise advances the active queue
// (wrapping at the end). No-op when there is no next track.
func (c *Controller) PlayNext() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stepLocked(1)
}

// PlayPrevious plays the previous track, mirroring PlayNext.
func (c *Controller) PlayPrevious() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stepLocked(-1)
}

// SetQueue replaces the active queue. An empty list clears it.
func (c *Controller) SetQueue(tracks []track.Track, playlistID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setQueueLocked(tracks, playlistID)
}

// ClearQueue removes the active queue.
func (c *Controller) ClearQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setQueueLocked(nil, "")
}

// PlayQueue sets tracks as the active queue and plays the track at start,
// optionally shuffling first. Tracks without audio are skipped forward.
func (c *Controller) PlayQueue(tracks []track.Track, playlistID string, start int, shuffle bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(tracks) == 0 {
		return errors.Wrap(ErrNotPlayable, "queue is empty")
	}
	if shuffle {
		tracks = queue.Shuffle(tracks, c.rnd)
	}
	if start < 0 || start >= len(tracks) {
		start = 0
	}

	for i := range tracks {
		t := tracks[(start+i)%len(tracks)]
		if !t.IsPlayable() {
			continue
		}
		c.setQueueLocked(tracks, playlistID)
		return c.playTrackLocked(t)
	}

	return errors.Wrapf(ErrNotPlayable, "no playable track in queue of %d", len(tracks))
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.snapshotLocked()
}

// History returns a copy of the tracks played this session, oldest first.
func (c *Controller) History() []track.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]track.Track, len(c.history))
	copy(result, c.history)
	return result
}

// Queue returns a copy of the active queue, nil if none.
func (c *Controller) Queue() *queue.Queue {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.active == nil {
		return nil
	}
	return queue.New(c.active.PlaylistID, c.active.Tracks)
}

// RecentTracks returns the persisted recent tracks, most recent first.
// Unreadable storage yields an empty list.
func (c *Controller) RecentTracks(ctx context.Context) []track.Track {
	tracks, err := c.persist.RecentTracks(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msg("playback: failed to load recent tracks")
		return []track.Track{}
	}
	if tracks == nil {
		tracks = []track.Track{}
	}
	return tracks
}

// Close unloads the engine and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.generation++
	if err := c.engine.Unload(); err != nil {
		zlog.Warn().Err(err).Msg("playback: unload on close failed")
	}
	c.cancel()
	close(c.eventCh)
}

// playTrackLocked must be called with lock held.
func (c *Controller) playTrackLocked(t track.Track) error {
	if c.closed {
		return ErrClosed
	}
	if !t.IsPlayable() {
		zlog.Warn().Msgf("playback: track has no audio: track_id=%s title=%q", t.ID, t.Title)
		return errors.Wrapf(ErrNotPlayable, "track %s", t.ID)
	}

	c.history = append(c.history, t)
	c.historyIndex = len(c.history) - 1
	c.rememberLocked(t)

	return c.startLocked(t, true)
}

// startLocked loads t into the engine and, when play is set, starts it.
// Must be called with lock held.
func (c *Controller) startLocked(t track.Track, play bool) error {
	changed := c.current == nil || c.current.ID != t.ID || !c.loaded
	cur := t
	c.current = &cur
	c.playing = false
	c.loaded = false
	c.position = 0
	c.duration = 0
	c.durationKnown = false

	c.generation++
	gen := c.generation
	id := t.ID
	handler := func(ev EngineEvent) {
		c.onEngineEvent(gen, id, ev)
	}

	src := Source{TrackID: t.ID, URL: t.AudioURL, DurationHint: t.Duration}
	if err := c.engine.Load(src, handler); err != nil {
		c.sendEventLocked(Event{Type: EventTrackChanged, Track: c.current})
		c.failLocked(err)
		return errors.Mark(errors.Wrapf(err, "failed to start track %s", c.current.ID), ErrPlaybackFailed)
	}
	c.loaded = true
	if err := c.engine.SetVolume(c.volume); err != nil {
		zlog.Warn().Err(err).Msgf("playback: set volume failed: level=%.2f", c.volume)
	}

	if !play {
		if changed {
			c.sendEventLocked(Event{Type: EventTrackChanged, Track: c.current})
		}
		return nil
	}

	// track_changed carries the playing state, so start the engine first.
	if err := c.engine.Play(c.ctx); err != nil {
		c.sendEventLocked(Event{Type: EventTrackChanged, Track: c.current})
		c.failLocked(err)
		return errors.Mark(errors.Wrapf(err, "failed to start track %s", c.current.ID), ErrPlaybackFailed)
	}
	c.playing = true
	zlog.Info().Msgf("playback: track started: track_id=%s title=%q", t.ID, t.Title)
	c.sendEventLocked(Event{Type: EventTrackChanged, Track: c.current})
	c.sendEventLocked(Event{Type: EventStateChanged, Track: c.current})
	return nil
}

// playLocked must be called with lock held and the current track loaded.
func (c *Controller) playLocked() error {
	if err := c.engine.Play(c.ctx); err != nil {
		c.failLocked(err)
		return errors.Mark(errors.Wrapf(err, "failed to start track %s", c.current.ID), ErrPlaybackFailed)
	}
	c.playing = true
	c.sendEventLocked(Event{Type: EventStateChanged, Track: c.current})
	return nil
}

func (c *Controller) pauseLocked() error {
	if c.current == nil || !c.playing || c.closed {
		return nil
	}

	if c.loaded {
		if err := c.engine.Pause(); err != nil {
			zlog.Warn().Err(err).Msgf("playback: pause failed: track_id=%s", c.current.ID)
		}
	}
	c.playing = false
	c.sendEventLocked(Event{Type: EventStateChanged, Track: c.current})
	return nil
}

func (c *Controller) resumeLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.current == nil {
		return ErrNoTrack
	}
	if c.playing {
		return nil
	}

	// A failed track is reloaded on resume.
	if !c.loaded {
		return c.startLocked(*c.current, true)
	}
	return c.playLocked()
}

func (c *Controller) stepLocked(delta int) error {
	if c.closed {
		return ErrClosed
	}

	pos := c.positionLocked()
	var (
		target queue.Target
		ok     bool
	)
	if delta > 0 {
		target, ok = queue.Next(pos)
	} else {
		target, ok = queue.Previous(pos)
	}
	if !ok {
		return nil
	}

	if target.Source == queue.SourceHistory {
		c.historyIndex = target.Index
		c.rememberLocked(target.Track)
		return c.startLocked(target.Track, true)
	}

	// Skip tracks without audio, at most one full lap.
	for range c.active.Len() {
		if target.Track.IsPlayable() {
			return c.playTrackLocked(target.Track)
		}
		cur := target.Track
		pos.Current = &cur
		if delta > 0 {
			target, ok = queue.Next(pos)
		} else {
			target, ok = queue.Previous(pos)
		}
		if !ok || target.Source != queue.SourceQueue {
			break
		}
	}

	zlog.Warn().Msgf("playback: no playable track in queue: playlist_id=%s", c.active.PlaylistID)
	return errors.Wrap(ErrNotPlayable, "no playable track in queue")
}

func (c *Controller) setQueueLocked(tracks []track.Track, playlistID string) {
	ctx, cancel := context.WithTimeout(c.ctx, persistTimeout)
	defer cancel()

	if len(tracks) == 0 {
		c.active = nil
		if err := c.persist.ClearActivePlaylist(ctx); err != nil {
			zlog.Warn().Err(err).Msg("playback: failed to clear active playlist")
		}
	} else {
		c.active = queue.New(playlistID, tracks)
		snap := store.PlaylistSnapshot{PlaylistID: playlistID, TrackIDs: c.active.TrackIDs()}
		if err := c.persist.SetActivePlaylist(ctx, snap); err != nil {
			zlog.Warn().Err(err).Msgf("playback: failed to store active playlist: playlist_id=%s", playlistID)
		}
	}

	zlog.Debug().Msgf("playback: queue changed: playlist_id=%s tracks=%d", playlistID, len(tracks))
	c.sendEventLocked(Event{Type: EventQueueChanged, Track: c.current})
}

// rememberLocked records t as last played and pushes it to the recent list.
// Persistence failures are logged; playback continues.
func (c *Controller) rememberLocked(t track.Track) {
	ctx, cancel := context.WithTimeout(c.ctx, persistTimeout)
	defer cancel()

	recent, err := c.persist.RecentTracks(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msg("playback: failed to read recent tracks, starting a new list")
		recent = nil
	}
	if err := c.persist.SetRecentTracks(ctx, PushRecent(recent, t, c.config.RecentCapacity)); err != nil {
		zlog.Warn().Err(err).Msgf("playback: failed to store recent tracks: track_id=%s", t.ID)
	}
	if err := c.persist.SetLastPlayed(ctx, t); err != nil {
		zlog.Warn().Err(err).Msgf("playback: failed to store last played: track_id=%s", t.ID)
	}
}

// failLocked handles a load or playback failure of the current track.
// The track stays current so the user can see what failed.
func (c *Controller) failLocked(cause error) {
	if c.current == nil {
		return
	}

	wasPlaying := c.playing
	c.playing = false
	c.loaded = false

	msg := c.config.PlaybackFailedMessage
	if msg == "" {
		msg = "Cannot play %q."
	}
	zlog.Error().Err(cause).Msgf("playback: track failed: track_id=%s title=%q", c.current.ID, c.current.Title)

	c.sendEventLocked(Event{
		Type:    EventPlaybackFailed,
		Track:   c.current,
		Err:     errors.Mark(errors.Wrapf(cause, "track %s", c.current.ID), ErrPlaybackFailed),
		Message: fmt.Sprintf(msg, c.current.Title),
	})
	if wasPlaying {
		c.sendEventLocked(Event{Type: EventStateChanged, Track: c.current})
	}
}

// onEngineEvent applies an engine event if it belongs to the current load.
func (c *Controller) onEngineEvent(gen uint64, trackID string, ev EngineEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.generation || c.current == nil || c.current.ID != trackID {
		zlog.Debug().Msgf("playback: stale engine event discarded: type=%s track_id=%s", ev.Type, trackID)
		return
	}

	switch ev.Type {
	case EngineTimeUpdate:
		pos := max(0, ev.Position)
		if c.durationKnown {
			pos = min(pos, c.duration)
		}
		c.position = pos
		c.sendEventLocked(Event{Type: EventProgress, Track: c.current})

	case EngineDurationKnown:
		if ev.Duration > 0 {
			c.duration = ev.Duration
			c.durationKnown = true
		} else {
			c.duration = 0
			c.durationKnown = false
		}
		c.sendEventLocked(Event{Type: EventDurationKnown, Track: c.current})

	case EngineEnded:
		c.playing = false
		if c.durationKnown {
			c.position = c.duration
		}
		zlog.Info().Msgf("playback: track ended: track_id=%s", trackID)
		c.sendEventLocked(Event{Type: EventTrackEnded, Track: c.current})
		c.sendEventLocked(Event{Type: EventStateChanged, Track: c.current})

		if c.config.AutoAdvance {
			if err := c.stepLocked(1); err != nil {
				zlog.Warn().Err(err).Msg("playback: auto advance failed")
			}
		}

	case EngineError:
		cause := ev.Err
		if cause == nil {
			cause = errors.New("unknown engine error")
		}
		c.failLocked(cause)
	}
}

func (c *Controller) restore(ctx context.Context) {
	last, err := c.persist.LastPlayed(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msg("playback: failed to restore last played track")
	} else if last != nil && last.IsPlayable() {
		c.mu.Lock()
		if err := c.startLocked(*last, false); err != nil {
			zlog.Warn().Err(err).Msgf("playback: failed to load restored track: track_id=%s", last.ID)
		} else {
			zlog.Info().Msgf("playback: restored last played track: track_id=%s", last.ID)
		}
		c.mu.Unlock()
	}

	if c.resolver == nil {
		return
	}
	snap, err := c.persist.ActivePlaylist(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msg("playback: failed to restore active playlist")
		return
	}
	if snap == nil || len(snap.TrackIDs) == 0 {
		return
	}
	tracks, err := c.resolver.ResolveSnapshot(ctx, *snap)
	if err != nil {
		zlog.Warn().Err(err).Msgf("playback: failed to resolve active playlist: playlist_id=%s", snap.PlaylistID)
		return
	}
	if len(tracks) == 0 {
		return
	}

	c.mu.Lock()
	c.active = queue.New(snap.PlaylistID, tracks)
	c.mu.Unlock()
	zlog.Info().Msgf("playback: restored active playlist: playlist_id=%s tracks=%d", snap.PlaylistID, len(tracks))
}

func (c *Controller) positionLocked() queue.Position {
	return queue.Position{
		Current:      c.current,
		Queue:        c.active,
		History:      c.history,
		HistoryIndex: c.historyIndex,
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	var cur *track.Track
	if c.current != nil {
		t := *c.current
		cur = &t
	}

	state := StateIdle
	switch {
	case c.current != nil && c.playing:
		state = StatePlaying
	case c.current != nil:
		state = StatePaused
	}

	pos := c.positionLocked()
	return Snapshot{
		CurrentTrack:  cur,
		State:         state,
		IsPlaying:     c.playing,
		CurrentTime:   c.position,
		Duration:      c.duration,
		DurationKnown: c.durationKnown,
		Volume:        c.volume,
		HasNext:       queue.HasNext(pos),
		HasPrevious:   queue.HasPrevious(pos),
		HistoryIndex:  c.historyIndex,
		HistoryLen:    len(c.history),
		QueueLen:      c.active.Len(),
		PlaylistID:    c.playlistIDLocked(),
	}
}

func (c *Controller) playlistIDLocked() string {
	if c.active == nil {
		return ""
	}
	return c.active.PlaylistID
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	e.State = c.snapshotLocked()
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
		// Channel full, drop event
	}
}

func clampVolume(v float64) float64 {
	return max(0, min(v, 1))
}
