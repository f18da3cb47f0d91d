package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/playdeck/internal/app/playback"
)

type recorder struct {
	mu     sync.Mutex
	events []playback.EngineEvent
}

func (r *recorder) handle(ev playback.EngineEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) has(typ playback.EngineEventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

func (r *recorder) first(typ playback.EngineEventType) (playback.EngineEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return playback.EngineEvent{}, false
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func audioServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestStream() *Stream {
	return NewStream(Config{TickInterval: 10 * time.Millisecond, ProbeTimeout: time.Second})
}

func TestStream_PlaysToEnd(t *testing.T) {
	srv := audioServer(t, http.StatusOK)
	s := newTestStream()
	rec := &recorder{}

	src := playback.Source{TrackID: "1", URL: srv.URL + "/a.mp3", DurationHint: 60 * time.Millisecond}
	require.NoError(t, s.Load(src, rec.handle))
	require.NoError(t, s.Play(context.Background()))

	require.Eventually(t, func() bool { return rec.has(playback.EngineEnded) }, 2*time.Second, 5*time.Millisecond)

	ev, ok := rec.first(playback.EngineDurationKnown)
	require.True(t, ok)
	assert.Equal(t, 60*time.Millisecond, ev.Duration)
	assert.True(t, rec.has(playback.EngineTimeUpdate))
	assert.Equal(t, 60*time.Millisecond, s.Position())
}

func TestStream_WithoutDurationHintNeverEnds(t *testing.T) {
	srv := audioServer(t, http.StatusOK)
	s := NewStream(Config{TickInterval: 5 * time.Millisecond, ProbeTimeout: time.Second})
	rec := &recorder{}

	require.NoError(t, s.Load(playback.Source{TrackID: "1", URL: srv.URL + "/a.mp3"}, rec.handle))
	require.NoError(t, s.Play(context.Background()))

	require.Eventually(t, func() bool { return s.Position() >= 100*time.Millisecond }, 2*time.Second, 5*time.Millisecond)

	assert.True(t, rec.has(playback.EngineTimeUpdate))
	assert.False(t, rec.has(playback.EngineDurationKnown))
	assert.False(t, rec.has(playback.EngineEnded))
	require.NoError(t, s.Unload())
}

func TestStream_ProbeFailure(t *testing.T) {
	tests := []struct {
		name string
		url  func(t *testing.T) string
	}{
		{"not found", func(t *testing.T) string { return audioServer(t, http.StatusNotFound).URL + "/missing.mp3" }},
		{"connection refused", func(t *testing.T) string {
			srv := httptest.NewServer(http.NotFoundHandler())
			u := srv.URL
			srv.Close()
			return u + "/gone.mp3"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStream()
			rec := &recorder{}
			require.NoError(t, s.Load(playback.Source{TrackID: "x", URL: tt.url(t)}, rec.handle))
			require.NoError(t, s.Play(context.Background()))

			require.Eventually(t, func() bool { return rec.has(playback.EngineError) }, 2*time.Second, 5*time.Millisecond)
			ev, _ := rec.first(playback.EngineError)
			assert.True(t, errors.Is(ev.Err, ErrUnreachable))
			assert.False(t, rec.has(playback.EngineDurationKnown))
		})
	}
}

func TestStream_HeadNotAllowedFallsBackToGet(t *testing.T) {
	var mu sync.Mutex
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		assert.Equal(t, "bytes=0-0", r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	s := newTestStream()
	rec := &recorder{}
	require.NoError(t, s.Load(playback.Source{TrackID: "1", URL: srv.URL, DurationHint: time.Minute}, rec.handle))

	require.Eventually(t, func() bool { return rec.has(playback.EngineDurationKnown) }, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{http.MethodHead, http.MethodGet}, methods)
	mu.Unlock()
}

func TestStream_PauseSeekVolume(t *testing.T) {
	srv := audioServer(t, http.StatusOK)
	s := newTestStream()
	rec := &recorder{}

	require.NoError(t, s.Load(playback.Source{TrackID: "1", URL: srv.URL, DurationHint: time.Minute}, rec.handle))
	require.Eventually(t, func() bool { return rec.has(playback.EngineDurationKnown) }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Seek(30*time.Second))
	assert.Equal(t, 30*time.Second, s.Position())

	require.NoError(t, s.Seek(2*time.Minute))
	assert.Equal(t, time.Minute, s.Position())

	require.NoError(t, s.Seek(-time.Second))
	assert.Equal(t, time.Duration(0), s.Position())

	require.NoError(t, s.Play(context.Background()))
	require.Eventually(t, func() bool { return s.Position() > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Pause())
	paused := s.Position()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, paused, s.Position())

	require.NoError(t, s.SetVolume(1.7))
	assert.InDelta(t, 1.0, s.Volume(), 1e-9)
	require.NoError(t, s.SetVolume(0.25))
	assert.InDelta(t, 0.25, s.Volume(), 1e-9)
}

func TestStream_LoadDiscardsPreviousHandler(t *testing.T) {
	srv := audioServer(t, http.StatusOK)
	s := newTestStream()
	first := &recorder{}
	second := &recorder{}

	require.NoError(t, s.Load(playback.Source{TrackID: "1", URL: srv.URL, DurationHint: time.Minute}, first.handle))
	require.NoError(t, s.Play(context.Background()))
	require.NoError(t, s.Load(playback.Source{TrackID: "2", URL: srv.URL, DurationHint: time.Minute}, second.handle))
	require.NoError(t, s.Play(context.Background()))

	require.Eventually(t, func() bool { return second.has(playback.EngineTimeUpdate) }, 2*time.Second, 5*time.Millisecond)
	before := first.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, first.count())
}

func TestStream_NotLoaded(t *testing.T) {
	s := newTestStream()
	assert.ErrorIs(t, s.Play(context.Background()), ErrNotLoaded)
	assert.ErrorIs(t, s.Pause(), ErrNotLoaded)
	assert.ErrorIs(t, s.Seek(time.Second), ErrNotLoaded)
	assert.Error(t, s.Load(playback.Source{TrackID: "1"}, nil))

	srv := audioServer(t, http.StatusOK)
	require.NoError(t, s.Load(playback.Source{TrackID: "1", URL: srv.URL}, nil))
	require.NoError(t, s.Unload())
	assert.ErrorIs(t, s.Play(context.Background()), ErrNotLoaded)
}
