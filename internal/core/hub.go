package core

import (
	"fmt"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/deckbeam/deckbeam/pkg/event"
	"github.com/deckbeam/deckbeam/pkg/topic"
)

// Hub is the in-process relay between mutations and stream subscribers. It
// stores nothing: a change published while no matching subscriber is
// registered is simply lost, and viewers reconcile via a fresh fetch.
//
// One hub instance serves the whole process; it is built by the composition
// root and handed to every handler that needs it. Subscribers in another
// process never see events published here. Scaling past a single instance
// needs an external broker.
type Hub struct {
	mux           sync.RWMutex
	subscriptions map[string]*subscription
	logger        zerolog.Logger
}

type subscription struct {
	filter topic.Filter
	fn     func(event.Change)
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subscriptions: make(map[string]*subscription),
		logger:        logger.With().Str("component", "hub").Logger(),
	}
}

// Subscribe registers fn for every change matching filter and returns a
// function that removes the registration. Calling the returned function more
// than once is a no-op after the first call.
//
// fn runs on the publisher's goroutine and must only enqueue; it must never
// perform network writes itself.
func (h *Hub) Subscribe(filter topic.Filter, fn func(event.Change)) (func(), error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("subscription id: %w", err)
	}

	h.mux.Lock()
	h.subscriptions[id] = &subscription{filter: filter, fn: fn}
	h.mux.Unlock()

	h.logger.Debug().Str("subscription", id).Msg("subscribed")

	return func() {
		h.mux.Lock()
		_, ok := h.subscriptions[id]
		delete(h.subscriptions, id)
		h.mux.Unlock()

		if ok {
			h.logger.Debug().Str("subscription", id).Msg("unsubscribed")
		}
	}, nil
}

// Publish invokes the callback of every subscription whose filter matches
// the change's topic. The registry is snapshotted first, so a publish racing
// an unsubscribe may deliver to the departing subscriber one last time.
func (h *Hub) Publish(change event.Change) {
	name := change.Topic()

	h.mux.RLock()
	matched := make([]*subscription, 0, len(h.subscriptions))
	for _, sub := range h.subscriptions {
		if sub.filter.Match(name) {
			matched = append(matched, sub)
		}
	}
	h.mux.RUnlock()

	for _, sub := range matched {
		sub.fn(change)
	}
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mux.RLock()
	defer h.mux.RUnlock()

	return len(h.subscriptions)
}
