package playback

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/playdeck/internal/domain/track"
	"github.com/osa030/playdeck/internal/infra/store"
)

// fakeEngine records calls and lets tests fire engine events.
type fakeEngine struct {
	mu       sync.Mutex
	src      Source
	handler  EventHandler
	handlers []EventHandler // every handler ever registered, in load order
	playing  bool
	volume   float64
	seekTo   time.Duration
	loads    int
	playErr  error
	loadErr  error
	unloaded bool
}

func (f *fakeEngine) Load(src Source, handler EventHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return f.loadErr
	}
	f.src = src
	f.handler = handler
	f.handlers = append(f.handlers, handler)
	f.playing = false
	f.loads++
	return nil
}

func (f *fakeEngine) Play(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.playing = true
	return nil
}

func (f *fakeEngine) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	return nil
}

func (f *fakeEngine) Seek(position time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seekTo = position
	return nil
}

func (f *fakeEngine) SetVolume(level float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = level
	return nil
}

func (f *fakeEngine) Unload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloaded = true
	f.handler = nil
	return nil
}

// emit fires an event on the current handler, outside any engine method.
func (f *fakeEngine) emit(ev EngineEvent) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (f *fakeEngine) state() (Source, bool, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.src, f.playing, f.volume
}

type fakeResolver struct {
	tracks []track.Track
	err    error
}

func (r *fakeResolver) ResolveSnapshot(context.Context, store.PlaylistSnapshot) ([]track.Track, error) {
	return r.tracks, r.err
}

func song(id string) track.Track {
	return track.Track{
		ID:       id,
		Title:    "Song " + id,
		Artist:   "Artist",
		Duration: 3 * time.Minute,
		AudioURL: "https://x/" + id + ".mp3",
	}
}

func testConfig() Config {
	return Config{
		DefaultVolume:         0.7,
		RecentCapacity:        10,
		PlaybackFailedMessage: "Cannot play %q.",
		Rand:                  rand.New(rand.NewSource(1)),
	}
}

func newTestController(t *testing.T, cfg Config) (*Controller, *fakeEngine, *store.Store) {
	t.Helper()
	eng := &fakeEngine{}
	st := store.New(store.NewMemoryKV())
	c := NewController(context.Background(), cfg, eng, st, nil)
	t.Cleanup(c.Close)
	return c, eng, st
}

// drain returns every event currently buffered.
func drain(c *Controller) []Event {
	var events []Event
	for {
		select {
		case e, ok := <-c.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		default:
			return events
		}
	}
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestController_PlayTrack(t *testing.T) {
	c, eng, _ := newTestController(t, testConfig())

	require.NoError(t, c.PlayTrack(track.Track{ID: "1", Title: "Song A", AudioURL: "https://x/a.mp3"}))

	s := c.Snapshot()
	require.NotNil(t, s.CurrentTrack)
	assert.Equal(t, "1", s.CurrentTrack.ID)
	assert.True(t, s.IsPlaying)
	assert.Equal(t, StatePlaying, s.State)
	assert.Equal(t, []string{"1"}, track.IDs(c.History()))
	assert.False(t, s.HasPrevious)
	assert.False(t, s.HasNext)
	assert.Equal(t, 0, s.HistoryIndex)

	src, playing, volume := eng.state()
	assert.Equal(t, "https://x/a.mp3", src.URL)
	assert.Equal(t, "1", src.TrackID)
	assert.True(t, playing)
	assert.InDelta(t, 0.7, volume, 1e-9)

	types := eventTypes(drain(c))
	assert.Contains(t, types, EventTrackChanged)
	assert.Contains(t, types, EventStateChanged)
}

func TestController_PlayTrackRejectsUnplayable(t *testing.T) {
	c, eng, _ := newTestController(t, testConfig())
	require.NoError(t, c.PlayTrack(song("1")))
	before := c.Snapshot()
	drain(c)

	err := c.PlayTrack(track.Track{ID: "2", Title: "No audio"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotPlayable))

	assert.Equal(t, before, c.Snapshot())
	assert.Equal(t, []string{"1"}, track.IDs(c.History()))
	assert.Empty(t, drain(c))

	src, _, _ := eng.state()
	assert.Equal(t, "1", src.TrackID)
}

func TestController_HistoryGrowsByOnePerPlay(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())

	ids := []string{"1", "2", "1", "3"}
	for i, id := range ids {
		require.NoError(t, c.PlayTrack(song(id)))
		s := c.Snapshot()
		assert.Equal(t, i+1, s.HistoryLen)
		assert.Equal(t, s.HistoryLen-1, s.HistoryIndex)
	}
	assert.Equal(t, ids, track.IDs(c.History()))
}

func TestController_PlayPreviousFromHistory(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())
	require.NoError(t, c.PlayTrack(song("1")))
	require.NoError(t, c.PlayTrack(song("2")))

	require.NoError(t, c.PlayPrevious())

	s := c.Snapshot()
	assert.Equal(t, "1", s.CurrentTrack.ID)
	assert.Equal(t, 0, s.HistoryIndex)
	assert.Equal(t, 2, s.HistoryLen)
	assert.False(t, s.HasPrevious)
	assert.True(t, s.HasNext)

	require.NoError(t, c.PlayNext())
	s = c.Snapshot()
	assert.Equal(t, "2", s.CurrentTrack.ID)
	assert.Equal(t, 1, s.HistoryIndex)
	assert.False(t, s.HasNext)
}

func TestController_NextPreviousNoopAtBounds(t *testing.T) {
	c, eng, _ := newTestController(t, testConfig())

	require.NoError(t, c.PlayNext())
	require.NoError(t, c.PlayPrevious())
	assert.Nil(t, c.Snapshot().CurrentTrack)

	require.NoError(t, c.PlayTrack(song("1")))
	loads := eng.loads
	require.NoError(t, c.PlayNext())
	require.NoError(t, c.PlayPrevious())
	assert.Equal(t, loads, eng.loads)
	assert.Equal(t, "1", c.Snapshot().CurrentTrack.ID)
}

func TestController_QueueWraps(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())
	tracks := []track.Track{song("a"), song("b"), song("c")}

	require.NoError(t, c.PlayQueue(tracks, "pl-1", 2, false))
	assert.Equal(t, "c", c.Snapshot().CurrentTrack.ID)

	require.NoError(t, c.PlayNext())
	s := c.Snapshot()
	assert.Equal(t, "a", s.CurrentTrack.ID)
	assert.Equal(t, "pl-1", s.PlaylistID)
	assert.Equal(t, 3, s.QueueLen)

	require.NoError(t, c.PlayPrevious())
	assert.Equal(t, "c", c.Snapshot().CurrentTrack.ID)

	// Queue navigation goes through PlayTrack, so history keeps growing.
	assert.Equal(t, []string{"c", "a", "c"}, track.IDs(c.History()))
}

func TestController_QueueSkipsUnplayable(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())
	broken := track.Track{ID: "b", Title: "broken"}
	tracks := []track.Track{song("a"), broken, song("c")}

	require.NoError(t, c.PlayQueue(tracks, "", 1, false))
	assert.Equal(t, "c", c.Snapshot().CurrentTrack.ID)

	require.NoError(t, c.PlayPrevious())
	assert.Equal(t, "a", c.Snapshot().CurrentTrack.ID)
}

func TestController_PlayQueueWithoutPlayableTracks(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())

	err := c.PlayQueue([]track.Track{{ID: "x"}, {ID: "y"}}, "pl", 0, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotPlayable))
	assert.Nil(t, c.Snapshot().CurrentTrack)
	assert.Equal(t, 0, c.Snapshot().QueueLen)

	err = c.PlayQueue(nil, "pl", 0, false)
	assert.True(t, errors.Is(err, ErrNotPlayable))
}

func TestController_PlayQueueShuffle(t *testing.T) {
	c, _, st := newTestController(t, testConfig())
	tracks := []track.Track{song("1"), song("2"), song("3"), song("4"), song("5")}

	require.NoError(t, c.PlayQueue(tracks, "pl-9", 0, true))

	q := c.Queue()
	require.NotNil(t, q)
	assert.ElementsMatch(t, track.IDs(tracks), q.TrackIDs())
	assert.Equal(t, q.Tracks[0].ID, c.Snapshot().CurrentTrack.ID)

	snap, err := st.ActivePlaylist(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "pl-9", snap.PlaylistID)
	assert.Equal(t, q.TrackIDs(), snap.TrackIDs)
}

func TestController_ClearQueueFallsBackToHistory(t *testing.T) {
	c, _, st := newTestController(t, testConfig())
	require.NoError(t, c.PlayTrack(song("h")))
	require.NoError(t, c.PlayQueue([]track.Track{song("a"), song("b")}, "pl", 0, false))
	assert.True(t, c.Snapshot().HasNext)

	c.ClearQueue()
	s := c.Snapshot()
	assert.Equal(t, 0, s.QueueLen)
	assert.False(t, s.HasNext)
	assert.True(t, s.HasPrevious)

	snap, err := st.ActivePlaylist(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestController_TogglePlay(t *testing.T) {
	c, eng, _ := newTestController(t, testConfig())

	require.NoError(t, c.TogglePlay())
	assert.Nil(t, c.Snapshot().CurrentTrack)

	require.NoError(t, c.PlayTrack(song("1")))
	require.NoError(t, c.TogglePlay())
	assert.False(t, c.Snapshot().IsPlaying)
	assert.Equal(t, StatePaused, c.Snapshot().State)
	_, playing, _ := eng.state()
	assert.False(t, playing)

	require.NoError(t, c.TogglePlay())
	assert.True(t, c.Snapshot().IsPlaying)
	_, playing, _ = eng.state()
	assert.True(t, playing)
}

func TestController_ResumeWithoutTrack(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())
	assert.True(t, errors.Is(c.Resume(), ErrNoTrack))
	assert.NoError(t, c.Pause())
}

func TestController_SeekTo(t *testing.T) {
	c, eng, _ := newTestController(t, testConfig())
	require.NoError(t, c.PlayTrack(song("1")))

	// Duration unknown: ignored.
	require.NoError(t, c.SeekTo(30*time.Second))
	assert.Equal(t, time.Duration(0), c.Snapshot().CurrentTime)

	eng.emit(EngineEvent{Type: EngineDurationKnown, Duration: 100 * time.Second})
	require.True(t, c.Snapshot().DurationKnown)

	tests := []struct {
		name     string
		seek     time.Duration
		expected time.Duration
	}{
		{"within range", 30 * time.Second, 30 * time.Second},
		{"negative clamps to zero", -5 * time.Second, 0},
		{"past end clamps to duration", 500 * time.Second, 100 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, c.SeekTo(tt.seek))
			assert.Equal(t, tt.expected, c.Snapshot().CurrentTime)
			assert.Equal(t, tt.expected, eng.seekTo)
		})
	}
}

func TestController_SetVolume(t *testing.T) {
	c, eng, _ := newTestController(t, testConfig())
	assert.InDelta(t, 0.7, c.Snapshot().Volume, 1e-9)

	tests := []struct {
		level    float64
		expected float64
	}{
		{0.3, 0.3},
		{-1, 0},
		{1.5, 1},
		{0, 0},
	}
	for _, tt := range tests {
		require.NoError(t, c.SetVolume(tt.level))
		assert.InDelta(t, tt.expected, c.Snapshot().Volume, 1e-9)
	}

	// Volume is reapplied to every newly loaded track.
	require.NoError(t, c.SetVolume(0.4))
	require.NoError(t, c.PlayTrack(song("1")))
	_, _, volume := eng.state()
	assert.InDelta(t, 0.4, volume, 1e-9)
}

func TestController_ProgressAndEnd(t *testing.T) {
	c, eng, _ := newTestController(t, testConfig())
	require.NoError(t, c.PlayTrack(song("1")))
	drain(c)

	eng.emit(EngineEvent{Type: EngineDurationKnown, Duration: 10 * time.Second})
	eng.emit(EngineEvent{Type: EngineTimeUpdate, Position: 4 * time.Second})
	s := c.Snapshot()
	assert.Equal(t, 4*time.Second, s.CurrentTime)
	assert.LessOrEqual(t, s.CurrentTime, s.Duration)

	eng.emit(EngineEvent{Type: EngineTimeUpdate, Position: 12 * time.Second})
	assert.Equal(t, 10*time.Second, c.Snapshot().CurrentTime)

	eng.emit(EngineEvent{Type: EngineEnded})
	s = c.Snapshot()
	assert.False(t, s.IsPlaying)
	assert.Equal(t, "1", s.CurrentTrack.ID)

	types := eventTypes(drain(c))
	assert.Equal(t, []EventType{EventDurationKnown, EventProgress, EventProgress, EventTrackEnded, EventStateChanged}, types)
}

func TestController_EndWithAutoAdvance(t *testing.T) {
	cfg := testConfig()
	cfg.AutoAdvance = true
	c, eng, _ := newTestController(t, cfg)

	require.NoError(t, c.PlayQueue([]track.Track{song("a"), song("b")}, "pl", 0, false))
	eng.emit(EngineEvent{Type: EngineEnded})

	s := c.Snapshot()
	assert.Equal(t, "b", s.CurrentTrack.ID)
	assert.True(t, s.IsPlaying)
}

func TestController_EndStopsWithoutAutoAdvance(t *testing.T) {
	c, eng, _ := newTestController(t, testConfig())

	require.NoError(t, c.PlayQueue([]track.Track{song("a"), song("b")}, "pl", 0, false))
	eng.emit(EngineEvent{Type: EngineEnded})

	s := c.Snapshot()
	assert.Equal(t, "a", s.CurrentTrack.ID)
	assert.False(t, s.IsPlaying)
}

func TestController_EngineError(t *testing.T) {
	c, eng, _ := newTestController(t, testConfig())
	require.NoError(t, c.PlayTrack(song("1")))
	drain(c)

	eng.emit(EngineEvent{Type: EngineError, Err: errors.New("404")})

	s := c.Snapshot()
	assert.False(t, s.IsPlaying)
	require.NotNil(t, s.CurrentTrack)
	assert.Equal(t, "1", s.CurrentTrack.ID)

	events := drain(c)
	require.NotEmpty(t, events)
	assert.Equal(t, EventPlaybackFailed, events[0].Type)
	assert.Equal(t, `Cannot play "Song 1".`, events[0].Message)
	assert.True(t, errors.Is(events[0].Err, ErrPlaybackFailed))

	// Resume reloads the failed track.
	loads := eng.loads
	require.NoError(t, c.Resume())
	assert.Equal(t, loads+1, eng.loads)
	assert.True(t, c.Snapshot().IsPlaying)
}

func TestController_StaleEventsDiscarded(t *testing.T) {
	c, eng, _ := newTestController(t, testConfig())
	require.NoError(t, c.PlayTrack(song("2")))
	staleHandler := eng.handler
	require.NoError(t, c.PlayTrack(song("3")))
	drain(c)

	staleHandler(EngineEvent{Type: EngineError, Err: errors.New("late failure")})
	staleHandler(EngineEvent{Type: EngineTimeUpdate, Position: time.Minute})

	s := c.Snapshot()
	assert.Equal(t, "3", s.CurrentTrack.ID)
	assert.True(t, s.IsPlaying)
	assert.Equal(t, time.Duration(0), s.CurrentTime)
	assert.Empty(t, drain(c))
}

func TestController_StaleEventsSameTrackReplayed(t *testing.T) {
	c, eng, _ := newTestController(t, testConfig())
	require.NoError(t, c.PlayTrack(song("1")))
	first := eng.handler
	require.NoError(t, c.PlayTrack(song("1")))

	first(EngineEvent{Type: EngineEnded})
	assert.True(t, c.Snapshot().IsPlaying)
}

func TestController_PlayRejected(t *testing.T) {
	c, eng, _ := newTestController(t, testConfig())
	eng.playErr = ErrAutoplayBlocked

	err := c.PlayTrack(song("1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlaybackFailed))

	s := c.Snapshot()
	assert.False(t, s.IsPlaying)
	assert.Equal(t, "1", s.CurrentTrack.ID)
	assert.Contains(t, eventTypes(drain(c)), EventPlaybackFailed)
}

func TestController_PersistsRecentAndLastPlayed(t *testing.T) {
	cfg := testConfig()
	cfg.RecentCapacity = 3
	c, _, st := newTestController(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3", "1", "4"} {
		require.NoError(t, c.PlayTrack(song(id)))
	}

	assert.Equal(t, []string{"4", "1", "3"}, track.IDs(c.RecentTracks(ctx)))

	last, err := st.LastPlayed(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "4", last.ID)
}

func TestController_RestoresLastPlayedPaused(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemoryKV())
	require.NoError(t, st.SetLastPlayed(ctx, song("7")))
	require.NoError(t, st.SetActivePlaylist(ctx, store.PlaylistSnapshot{PlaylistID: "pl", TrackIDs: []string{"6", "7", "8"}}))

	eng := &fakeEngine{}
	resolver := &fakeResolver{tracks: []track.Track{song("6"), song("7"), song("8")}}
	c := NewController(ctx, testConfig(), eng, st, resolver)
	defer c.Close()

	s := c.Snapshot()
	require.NotNil(t, s.CurrentTrack)
	assert.Equal(t, "7", s.CurrentTrack.ID)
	assert.False(t, s.IsPlaying)
	assert.Equal(t, StatePaused, s.State)
	assert.Equal(t, 0, s.HistoryLen)
	assert.Equal(t, 3, s.QueueLen)
	assert.True(t, s.HasNext)

	_, playing, _ := eng.state()
	assert.False(t, playing)

	require.NoError(t, c.PlayNext())
	assert.Equal(t, "8", c.Snapshot().CurrentTrack.ID)
}

func TestController_RestoreToleratesCorruptStore(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, store.KeyLastPlayed, []byte("{not json")))
	require.NoError(t, kv.Set(ctx, store.KeyRecentTracks, []byte("[]")))

	c := NewController(ctx, testConfig(), &fakeEngine{}, store.New(kv), &fakeResolver{})
	defer c.Close()

	assert.Nil(t, c.Snapshot().CurrentTrack)

	require.NoError(t, c.PlayTrack(song("1")))
	assert.Equal(t, []string{"1"}, track.IDs(c.RecentTracks(ctx)))
}

func TestController_RecentTracksCorruptStore(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, store.KeyRecentTracks, []byte("{not json")))

	c := NewController(ctx, testConfig(), &fakeEngine{}, store.New(kv), nil)
	defer c.Close()

	recent := c.RecentTracks(ctx)
	require.NotNil(t, recent)
	assert.Empty(t, recent)

	require.NoError(t, c.PlayTrack(song("1")))
	assert.Equal(t, []string{"1"}, track.IDs(c.RecentTracks(ctx)))
}

func TestController_TrackChangedCarriesPlayingState(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())

	require.NoError(t, c.PlayTrack(song("1")))
	require.NoError(t, c.PlayTrack(song("2")))

	events := drain(c)
	require.Equal(t, []EventType{EventTrackChanged, EventStateChanged, EventTrackChanged, EventStateChanged}, eventTypes(events))
	for _, e := range events {
		assert.True(t, e.State.IsPlaying, e.Type.String())
		assert.Equal(t, StatePlaying, e.State.State, e.Type.String())
	}
}

func TestController_Close(t *testing.T) {
	eng := &fakeEngine{}
	c := NewController(context.Background(), testConfig(), eng, store.New(store.NewMemoryKV()), nil)
	require.NoError(t, c.PlayTrack(song("1")))
	handler := eng.handler

	c.Close()
	c.Close()

	assert.True(t, eng.unloaded)
	assert.True(t, errors.Is(c.PlayTrack(song("2")), ErrClosed))
	handler(EngineEvent{Type: EngineEnded})

	// Channel is closed after buffered events are drained.
	for range c.Events() {
	}
}

func TestPushRecent(t *testing.T) {
	tests := []struct {
		name     string
		recent   []string
		push     string
		capacity int
		expected []string
	}{
		{"empty", nil, "1", 10, []string{"1"}},
		{"front insert", []string{"1", "2"}, "3", 10, []string{"3", "1", "2"}},
		{"dedupe", []string{"1", "2", "3"}, "2", 10, []string{"2", "1", "3"}},
		{"truncate", []string{"1", "2", "3"}, "4", 3, []string{"4", "1", "2"}},
		{"zero capacity", []string{"1"}, "2", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recent := make([]track.Track, 0, len(tt.recent))
			for _, id := range tt.recent {
				recent = append(recent, song(id))
			}
			got := PushRecent(recent, song(tt.push), tt.capacity)
			assert.Equal(t, tt.expected, track.IDs(got))
		})
	}
}
