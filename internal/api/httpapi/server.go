// Package httpapi provides the JSON control surface over HTTP.
package httpapi

import (
	"net/http"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/app/session"
)

const (
	// TokenHeader is the header name for the control token.
	TokenHeader = "X-Playdeck-Token"

	maxBodyBytes = 1 << 20
)

// Config represents HTTP API configuration.
type Config struct {
	Token              string // Required in TokenHeader when set
	NotPlayableMessage string // Format with the track title
}

// Server serves the player, media and event endpoints.
type Server struct {
	session *session.Manager
	config  Config
}

// NewServer creates a new HTTP API server.
func NewServer(sess *session.Manager, cfg Config) *Server {
	if cfg.NotPlayableMessage == "" {
		cfg.NotPlayableMessage = `"%s" has no audio available.`
	}
	return &Server{
		session: sess,
		config:  cfg,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/player", s.handleGetPlayer)
	mux.HandleFunc("POST /api/v1/player/play", s.handlePlay)
	mux.HandleFunc("POST /api/v1/player/pause", s.handlePause)
	mux.HandleFunc("POST /api/v1/player/resume", s.handleResume)
	mux.HandleFunc("POST /api/v1/player/toggle", s.handleToggle)
	mux.HandleFunc("POST /api/v1/player/seek", s.handleSeek)
	mux.HandleFunc("POST /api/v1/player/volume", s.handleVolume)
	mux.HandleFunc("POST /api/v1/player/next", s.handleNext)
	mux.HandleFunc("POST /api/v1/player/previous", s.handlePrevious)
	mux.HandleFunc("GET /api/v1/player/queue", s.handleGetQueue)
	mux.HandleFunc("POST /api/v1/player/queue", s.handleSetQueue)
	mux.HandleFunc("DELETE /api/v1/player/queue", s.handleClearQueue)
	mux.HandleFunc("GET /api/v1/player/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/player/recent", s.handleRecent)
	mux.HandleFunc("GET /api/v1/player/events", s.handleEvents)

	mux.HandleFunc("GET /api/v1/media/nowplaying", s.handleNowPlaying)
	mux.HandleFunc("POST /api/v1/media/keys/{command}", s.handleMediaKey)

	return s.logRequests(s.requireToken(mux))
}

// requireToken rejects requests without the configured token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.config.Token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(TokenHeader)
		if token == "" || token != s.config.Token {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		zlog.Debug().Msgf("http: request: method=%s path=%s status=%d duration=%v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
