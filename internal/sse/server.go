// Package sse exposes every topic as a long-lived server-sent-events stream.
// Each connection owns exactly one hub subscription and one session; teardown
// runs on every exit path, whatever ended the connection.
package sse

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/deckbeam/deckbeam/internal/core"
	"github.com/deckbeam/deckbeam/pkg/event"
	"github.com/deckbeam/deckbeam/pkg/topic"
)

const (
	DefaultHeartbeat  = 25 * time.Second
	DefaultBufferSize = 32
)

type Options struct {
	Hub        *core.Hub
	Heartbeat  time.Duration
	BufferSize int
	Logger     zerolog.Logger
}

type Server struct {
	hub       *core.Hub
	heartbeat time.Duration
	buffer    int
	logger    zerolog.Logger
}

func New(options Options) *Server {
	if options.Heartbeat <= 0 {
		options.Heartbeat = DefaultHeartbeat
	}

	if options.BufferSize <= 0 {
		options.BufferSize = DefaultBufferSize
	}

	return &Server{
		hub:       options.Hub,
		heartbeat: options.Heartbeat,
		buffer:    options.BufferSize,
		logger:    options.Logger.With().Str("component", "sse").Logger(),
	}
}

func (s *Server) HandleFunc() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		filter, err := parseSelector(r.URL.Query())
		if err != nil {
			http.Error(w, "Bad request.", http.StatusBadRequest)
			return
		}

		session := newSession(s.buffer, s.logger)

		unsubscribe, err := s.hub.Subscribe(filter, func(change event.Change) {
			session.Send(change.Name(), change)
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("subscribe")
			http.Error(w, "Internal server error.", http.StatusInternalServerError)
			return
		}
		defer unsubscribe()

		session.serve(w, r, s.heartbeat)
	}
}

// parseSelector maps query parameters onto a topic filter: either
// ?topic=activeContainerChanged, or ?containerId=...&screenKey=... with
// screenKey optional to watch every screen of the container.
func parseSelector(query url.Values) (topic.Filter, error) {
	if scope := query.Get("topic"); scope != "" {
		if scope != topic.GlobalValue {
			return topic.Filter{}, fmt.Errorf("unknown topic %q", scope)
		}
		if query.Get("containerId") != "" || query.Get("screenKey") != "" {
			return topic.Filter{}, fmt.Errorf("global topic takes no screen selector")
		}

		return topic.GlobalFilter(), nil
	}

	return topic.NewScreenFilter(query.Get("containerId"), query.Get("screenKey"))
}
