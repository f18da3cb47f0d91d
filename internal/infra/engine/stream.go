// Package engine provides a playback engine that streams audio resources
// over HTTP and reports progress in real time.
package engine

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/app/playback"
)

var (
	ErrNotLoaded   = errors.New("no resource loaded")
	ErrUnreachable = errors.New("audio source not reachable")
)

// Config represents stream engine configuration.
type Config struct {
	TickInterval time.Duration // Interval between progress updates
	ProbeTimeout time.Duration // Timeout for the resource probe
	HTTPClient   *http.Client  // Optional, for tests
}

// Stream is a playback.Engine that probes the audio URL and then advances a
// wall clock position while playing. It does not decode or output audio.
type Stream struct {
	mu     sync.Mutex
	config Config
	client *http.Client

	gen     uint64
	src     playback.Source
	handler playback.EventHandler
	loaded  bool
	ready   bool // Probe succeeded

	playing  bool
	position time.Duration
	duration time.Duration
	volume   float64
	lastTick time.Time

	cancelProbe context.CancelFunc
	cancelTick  context.CancelFunc
}

var _ playback.Engine = (*Stream)(nil)

// NewStream creates a new stream engine.
func NewStream(cfg Config) *Stream {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 250 * time.Millisecond
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Stream{
		config: cfg,
		client: client,
		volume: 1,
	}
}

// Load replaces the current resource and starts probing the new one.
func (s *Stream) Load(src playback.Source, handler playback.EventHandler) error {
	if src.URL == "" {
		return errors.New("audio url is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.gen++
	s.src = src
	s.handler = handler
	s.loaded = true

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ProbeTimeout)
	s.cancelProbe = cancel
	go s.probe(ctx, s.gen, src)

	zlog.Debug().Msgf("engine: loading: track_id=%s url=%s", src.TrackID, src.URL)
	return nil
}

// Play starts or resumes playback. A finished resource restarts from zero.
func (s *Stream) Play(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotLoaded
	}
	if s.playing {
		return nil
	}
	if s.duration > 0 && s.position >= s.duration {
		s.position = 0
	}
	s.playing = true
	if s.ready {
		s.startTickLocked()
	}
	return nil
}

// Pause stops advancing the position.
func (s *Stream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotLoaded
	}
	s.advanceLocked()
	s.stopTickLocked()
	s.playing = false
	return nil
}

// Seek moves the position, clamped to the known duration.
func (s *Stream) Seek(position time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotLoaded
	}
	position = max(0, position)
	if s.duration > 0 {
		position = min(position, s.duration)
	}
	s.position = position
	s.lastTick = time.Now()
	return nil
}

// SetVolume stores the output level.
func (s *Stream) SetVolume(level float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = max(0, min(level, 1))
	return nil
}

// Unload releases the current resource. Pending events are dropped.
func (s *Stream) Unload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.gen++
	s.loaded = false
	s.handler = nil
	return nil
}

// Position returns the current playback position.
func (s *Stream) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advanceLocked()
	return s.position
}

// Volume returns the output level.
func (s *Stream) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Stream) resetLocked() {
	if s.cancelProbe != nil {
		s.cancelProbe()
		s.cancelProbe = nil
	}
	s.stopTickLocked()
	s.ready = false
	s.playing = false
	s.position = 0
	s.duration = 0
}

func (s *Stream) probe(ctx context.Context, gen uint64, src playback.Source) {
	err := s.reach(ctx, src.URL)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	h := s.handler
	if err != nil {
		s.playing = false
		s.mu.Unlock()
		zlog.Warn().Err(err).Msgf("engine: probe failed: track_id=%s", src.TrackID)
		dispatch(h, playback.EngineEvent{Type: playback.EngineError, Err: err})
		return
	}
	s.ready = true
	s.duration = src.DurationHint
	if s.playing {
		s.startTickLocked()
	}
	s.mu.Unlock()

	// Without a hint the duration stays unknown and the stream never ends.
	if src.DurationHint > 0 {
		dispatch(h, playback.EngineEvent{Type: playback.EngineDurationKnown, Duration: src.DurationHint})
	}
}

// reach checks that the resource answers with a 2xx status. Servers that
// reject HEAD are retried with a one byte ranged GET.
func (s *Stream) reach(ctx context.Context, url string) error {
	status, err := s.request(ctx, http.MethodHead, url)
	if err != nil {
		return err
	}
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		status, err = s.request(ctx, http.MethodGet, url)
		if err != nil {
			return err
		}
	}
	if status < 200 || status >= 300 {
		return errors.Mark(errors.Newf("audio source returned status %d", status), ErrUnreachable)
	}
	return nil
}

func (s *Stream) request(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, errors.Mark(errors.Wrap(err, "failed to reach audio source"), ErrUnreachable)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (s *Stream) startTickLocked() {
	s.stopTickLocked()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelTick = cancel
	s.lastTick = time.Now()
	go s.tick(ctx, s.gen)
}

func (s *Stream) stopTickLocked() {
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
}

// advanceLocked moves the position by the wall time since the last tick.
func (s *Stream) advanceLocked() {
	if !s.playing || !s.ready {
		return
	}
	now := time.Now()
	s.position += now.Sub(s.lastTick)
	s.lastTick = now
	if s.duration > 0 && s.position > s.duration {
		s.position = s.duration
	}
}

func (s *Stream) tick(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if gen != s.gen || !s.playing || ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		s.advanceLocked()
		pos := s.position
		ended := s.duration > 0 && pos >= s.duration
		if ended {
			s.playing = false
			s.stopTickLocked()
		}
		h := s.handler
		s.mu.Unlock()

		dispatch(h, playback.EngineEvent{Type: playback.EngineTimeUpdate, Position: pos})
		if ended {
			dispatch(h, playback.EngineEvent{Type: playback.EngineEnded})
			return
		}
	}
}

// dispatch must be called without the engine lock held.
func dispatch(h playback.EventHandler, ev playback.EngineEvent) {
	if h != nil {
		h(ev)
	}
}
