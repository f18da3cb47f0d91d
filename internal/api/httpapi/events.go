package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/app/notification"
)

const eventBuffer = 32

var errStreamClosed = errors.New("event stream closed")

// handleEvents streams notifications as server-sent events. The first event
// is always the current player state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	notifManager := s.session.GetNotificationManager()

	initial := &notification.Notification{
		SequenceNo: notifManager.NextSequenceNo(),
		Type:       notification.TypeInitialState,
		Timestamp:  time.Now(),
		Player:     notification.NewPlayerState(s.session.Playback().Snapshot()),
	}
	if err := writeEvent(w, rc, initial); err != nil {
		zlog.Debug().Err(err).Msg("http: failed to send initial state")
		return
	}

	stream := newEventStream()
	defer stream.close()

	subscriptionID := notifManager.Subscribe(stream)
	defer notifManager.Unsubscribe(subscriptionID)
	zlog.Debug().Msgf("http: event stream opened: subscription_id=%s", subscriptionID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.session.Done():
			return
		case n := <-stream.ch:
			if err := writeEvent(w, rc, n); err != nil {
				zlog.Debug().Err(err).Msgf("http: event stream closed: subscription_id=%s", subscriptionID)
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, n *notification.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "failed to encode notification")
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", n.SequenceNo, n.Type, data); err != nil {
		return errors.Wrap(err, "failed to write event")
	}
	return rc.Flush()
}

// eventStream adapts an SSE response to notification.Stream.
type eventStream struct {
	ch   chan *notification.Notification
	done chan struct{}
}

func newEventStream() *eventStream {
	return &eventStream{
		ch:   make(chan *notification.Notification, eventBuffer),
		done: make(chan struct{}),
	}
}

func (e *eventStream) Send(n *notification.Notification) error {
	select {
	case e.ch <- n:
		return nil
	case <-e.done:
		return errStreamClosed
	}
}

func (e *eventStream) close() {
	close(e.done)
}
