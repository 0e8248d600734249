package sse

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deckbeam/deckbeam/pkg/event"
)

// Session is one live stream connection. Frames are enqueued on a bounded
// channel and drained by the serve loop; a full channel drops the frame so a
// stalled connection never blocks the publisher or other subscribers. A
// dropped change is harmless: the client reconciles from the next frame or
// its poll fallback.
type Session struct {
	frames    chan frame
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

func newSession(buffer int, logger zerolog.Logger) *Session {
	return &Session{
		frames: make(chan frame, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send serializes payload and enqueues it. Never blocks: frames for a closed
// session are discarded, frames for a full one are dropped with a log line.
func (s *Session) Send(name string, payload any) {
	select {
	case <-s.done:
		return
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", name).Msg("encode frame")
		return
	}

	select {
	case s.frames <- frame{name: name, data: data}:
	default:
		s.logger.Warn().Str("event", name).Msg("session buffer full, frame dropped")
	}
}

// close marks the session dead so Send discards further frames. Idempotent;
// serve's defer is the only caller but double-close must stay harmless.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// serve writes frames until the connection ends. The first frame is a ping so
// the client can confirm liveness before any real event; further pings follow
// on the heartbeat interval. Any write failure tears the connection down.
func (s *Session) serve(w http.ResponseWriter, r *http.Request, heartbeat time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	defer s.close()

	if err := s.ping(w); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case f := <-s.frames:
			if err := writeFrame(w, f); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if err := s.ping(w); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func (s *Session) ping(w http.ResponseWriter) error {
	data, err := json.Marshal(event.Ping{Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}

	return writeFrame(w, frame{name: event.NamePing, data: data})
}
