package httpapi

import (
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/app/mediasession"
)

type nowPlayingResponse struct {
	TrackID    string  `json:"track_id,omitempty"`
	Title      string  `json:"title,omitempty"`
	Artist     string  `json:"artist,omitempty"`
	Album      string  `json:"album,omitempty"`
	Duration   float64 `json:"duration"`
	ArtworkURL string  `json:"artwork_url,omitempty"`
	State      string  `json:"state"`
	Position   float64 `json:"position"`
}

type mediaKeyRequest struct {
	Seconds *float64 `json:"seconds"`
}

func (s *Server) handleNowPlaying(w http.ResponseWriter, _ *http.Request) {
	remote := s.session.Remote()
	if remote == nil {
		s.writeError(w, errMediaUnavailable, nil)
		return
	}

	np := remote.NowPlaying()
	resp := nowPlayingResponse{
		State:    np.State.String(),
		Position: np.Position.Seconds(),
	}
	if md := np.Metadata; md != nil {
		resp.TrackID = md.TrackID
		resp.Title = md.Title
		resp.Artist = md.Artist
		resp.Album = md.Album
		resp.Duration = md.Duration.Seconds()
		resp.ArtworkURL = md.ArtworkURL
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMediaKey simulates an OS media key press on the remote session.
func (s *Server) handleMediaKey(w http.ResponseWriter, r *http.Request) {
	remote := s.session.Remote()
	if remote == nil {
		s.writeError(w, errMediaUnavailable, nil)
		return
	}

	cmd, err := mediasession.ParseCommand(r.PathValue("command"))
	if err != nil {
		s.writeError(w, err, nil)
		return
	}

	var data any
	if cmd == mediasession.CmdSeek {
		var req mediaKeyRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err, nil)
			return
		}
		if req.Seconds == nil {
			s.writeError(w, errors.Wrap(errBadRequest, "seconds is required for seek"), nil)
			return
		}
		data = *req.Seconds
	}

	zlog.Debug().Msgf("http: media key: command=%s", cmd)
	s.control(w, func() error { return remote.Press(cmd, data) })
}
