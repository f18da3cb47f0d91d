package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/app/mediasession"
	"github.com/osa030/playdeck/internal/app/playback"
	"github.com/osa030/playdeck/internal/app/session"
	"github.com/osa030/playdeck/internal/domain/track"
	"github.com/osa030/playdeck/internal/infra/catalog"
)

var (
	errBadRequest       = errors.New("bad request")
	errMediaUnavailable = errors.New("media session is not enabled")
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Err(err).Msg("http: failed to write response")
	}
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.Mark(errors.Wrap(err, "invalid request body"), errBadRequest)
	}
	return nil
}

// writeError maps err to a status code. t, when set, is the track the
// request was about and is used for the user-facing message.
func (s *Server) writeError(w http.ResponseWriter, err error, t *track.Track) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	switch {
	case errors.Is(err, playback.ErrNotPlayable) && t != nil:
		resp.Message = fmt.Sprintf(s.config.NotPlayableMessage, t.Title)
	case status >= http.StatusInternalServerError:
		zlog.Error().Err(err).Msg("http: request failed")
	}

	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, catalog.ErrInvalidInput),
		errors.Is(err, mediasession.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, errMediaUnavailable):
		return http.StatusNotFound
	case errors.Is(err, playback.ErrNoTrack):
		return http.StatusConflict
	case errors.Is(err, playback.ErrNotPlayable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, playback.ErrPlaybackFailed):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrNoCatalog),
		errors.Is(err, playback.ErrClosed),
		errors.Is(err, mediasession.ErrNoHandler),
		errors.Is(err, mediasession.ErrSessionClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
