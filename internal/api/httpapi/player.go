package httpapi

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/app/notification"
	"github.com/osa030/playdeck/internal/domain/track"
)

type playRequest struct {
	Track   *track.Track `json:"track"`
	TrackID string       `json:"track_id"`
}

type seekRequest struct {
	Seconds *float64 `json:"seconds"`
}

type volumeRequest struct {
	Level *float64 `json:"level"`
}

type queueRequest struct {
	PlaylistID string        `json:"playlist_id"`
	Tracks     []track.Track `json:"tracks"`
	Start      int           `json:"start"`
	Shuffle    bool          `json:"shuffle"`
}

type queueResponse struct {
	PlaylistID string        `json:"playlist_id,omitempty"`
	Tracks     []track.Track `json:"tracks"`
}

type historyResponse struct {
	Tracks []track.Track `json:"tracks"`
	Index  int           `json:"index"`
}

type tracksResponse struct {
	Tracks []track.Track `json:"tracks"`
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, _ *http.Request) {
	s.writeState(w)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err, nil)
		return
	}

	pb := s.session.Playback()
	switch {
	case req.Track != nil:
		zlog.Info().Msgf("http: play track: track_id=%s", req.Track.ID)
		if err := pb.PlayTrack(*req.Track); err != nil {
			s.writeError(w, err, req.Track)
			return
		}
	case strings.TrimSpace(req.TrackID) != "":
		zlog.Info().Msgf("http: play track by id: track_id=%s", req.TrackID)
		t, err := s.session.PlayTrackByID(r.Context(), strings.TrimSpace(req.TrackID))
		if err != nil {
			s.writeError(w, err, &t)
			return
		}
	default:
		s.writeError(w, errors.Wrap(errBadRequest, "track or track_id is required"), nil)
		return
	}

	s.writeState(w)
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.control(w, s.session.Playback().Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.control(w, s.session.Playback().Resume)
}

func (s *Server) handleToggle(w http.ResponseWriter, _ *http.Request) {
	s.control(w, s.session.Playback().TogglePlay)
}

func (s *Server) handleNext(w http.ResponseWriter, _ *http.Request) {
	s.control(w, s.session.Playback().PlayNext)
}

func (s *Server) handlePrevious(w http.ResponseWriter, _ *http.Request) {
	s.control(w, s.session.Playback().PlayPrevious)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err, nil)
		return
	}
	if req.Seconds == nil || math.IsNaN(*req.Seconds) || math.IsInf(*req.Seconds, 0) {
		s.writeError(w, errors.Wrap(errBadRequest, "seconds is required"), nil)
		return
	}

	position := time.Duration(*req.Seconds * float64(time.Second))
	s.control(w, func() error { return s.session.Playback().SeekTo(position) })
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err, nil)
		return
	}
	if req.Level == nil || math.IsNaN(*req.Level) {
		s.writeError(w, errors.Wrap(errBadRequest, "level is required"), nil)
		return
	}

	level := *req.Level
	s.control(w, func() error { return s.session.Playback().SetVolume(level) })
}

func (s *Server) handleGetQueue(w http.ResponseWriter, _ *http.Request) {
	resp := queueResponse{Tracks: []track.Track{}}
	if q := s.session.Playback().Queue(); q != nil {
		resp.PlaylistID = q.PlaylistID
		resp.Tracks = q.Tracks
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetQueue(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err, nil)
		return
	}

	switch {
	case len(req.Tracks) > 0:
		if err := s.session.Playback().PlayQueue(req.Tracks, req.PlaylistID, req.Start, req.Shuffle); err != nil {
			s.writeError(w, err, nil)
			return
		}
	case strings.TrimSpace(req.PlaylistID) != "":
		if _, err := s.session.PlayPlaylist(r.Context(), strings.TrimSpace(req.PlaylistID), req.Start, req.Shuffle); err != nil {
			s.writeError(w, err, nil)
			return
		}
	default:
		s.writeError(w, errors.Wrap(errBadRequest, "playlist_id or tracks is required"), nil)
		return
	}

	s.writeState(w)
}

func (s *Server) handleClearQueue(w http.ResponseWriter, _ *http.Request) {
	s.session.Playback().ClearQueue()
	s.writeState(w)
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	pb := s.session.Playback()
	writeJSON(w, http.StatusOK, historyResponse{
		Tracks: pb.History(),
		Index:  pb.Snapshot().HistoryIndex,
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tracksResponse{Tracks: s.session.Playback().RecentTracks(r.Context())})
}

// control runs a controller operation and answers with the new state.
func (s *Server) control(w http.ResponseWriter, op func() error) {
	if err := op(); err != nil {
		var current *track.Track
		if snap := s.session.Playback().Snapshot(); snap.CurrentTrack != nil {
			current = snap.CurrentTrack
		}
		s.writeError(w, err, current)
		return
	}
	s.writeState(w)
}

func (s *Server) writeState(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, notification.NewPlayerState(s.session.Playback().Snapshot()))
}
