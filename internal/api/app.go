// Package api wires the store, hub and stream endpoint into one HTTP app.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/deckbeam/deckbeam/internal/core"
	"github.com/deckbeam/deckbeam/internal/sse"
	"github.com/deckbeam/deckbeam/internal/store"
	"github.com/deckbeam/deckbeam/pkg/event"
)

type Options struct {
	Addr       string
	Store      *store.Store
	Hub        *core.Hub
	Heartbeat  time.Duration
	BufferSize int
	Logger     zerolog.Logger
}

type App struct {
	addr   string
	store  *store.Store
	hub    *core.Hub
	stream *sse.Server
	logger zerolog.Logger
}

func New(options Options) *App {
	return &App{
		addr:  options.Addr,
		store: options.Store,
		hub:   options.Hub,
		stream: sse.New(sse.Options{
			Hub:        options.Hub,
			Heartbeat:  options.Heartbeat,
			BufferSize: options.BufferSize,
			Logger:     options.Logger,
		}),
		logger: options.Logger.With().Str("component", "api").Logger(),
	}
}

func (app *App) Router() http.Handler {
	router := httprouter.New()

	router.GET("/events", app.stream.HandleFunc())
	router.GET("/containers/:id/screens/:key", app.snapshot())
	router.POST("/containers", app.createContainer())
	router.POST("/containers/:id/screens", app.createScreen())
	router.PUT("/containers/:id/screens/:key/slides", app.updateSlides())
	router.PUT("/containers/:id/settings", app.updateSettings())
	router.PUT("/active-container", app.setActiveContainer())

	return router
}

// Listen serves until ctx is cancelled. Stream handlers watch their request
// context, which derives from ctx, so shutdown ends every open connection and
// its teardown path runs.
func (app *App) Listen(ctx context.Context) error {
	server := &http.Server{
		Addr:        app.addr,
		Handler:     app.Router(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			app.logger.Error().Err(err).Msg("shutdown")
		}
	}()

	app.logger.Info().Str("addr", app.addr).Msg("listening")

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (app *App) snapshot() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		snapshot, err := app.store.Snapshot(r.Context(), p.ByName("id"), p.ByName("key"))
		if err != nil {
			app.writeError(w, err)
			return
		}

		app.writeJSON(w, http.StatusOK, snapshot)
	}
}

func (app *App) createContainer() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var input struct {
			Name             string `json:"name"`
			DefaultScreenKey string `json:"defaultScreenKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Name == "" {
			http.Error(w, "Bad request.", http.StatusBadRequest)
			return
		}

		container, err := app.store.CreateContainer(r.Context(), input.Name, input.DefaultScreenKey)
		if err != nil {
			app.writeError(w, err)
			return
		}

		app.writeJSON(w, http.StatusCreated, container)
	}
}

func (app *App) createScreen() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var input struct {
			Key   string `json:"key"`
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Key == "" {
			http.Error(w, "Bad request.", http.StatusBadRequest)
			return
		}

		screen, err := app.store.CreateScreen(r.Context(), p.ByName("id"), input.Key, input.Title)
		if err != nil {
			app.writeError(w, err)
			return
		}

		app.writeJSON(w, http.StatusCreated, screen)
	}
}

func (app *App) updateSlides() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var slides json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&slides); err != nil {
			http.Error(w, "Bad request.", http.StatusBadRequest)
			return
		}

		screen, err := app.store.GetScreen(r.Context(), p.ByName("id"), p.ByName("key"))
		if err != nil {
			app.writeError(w, err)
			return
		}

		bump, err := app.store.UpdateSlides(r.Context(), screen.ID, slides)
		if err != nil {
			app.writeError(w, err)
			return
		}

		app.publishScreenChanged(bump)
		app.writeJSON(w, http.StatusOK, map[string]int64{"revision": bump.Revision})
	}
}

func (app *App) updateSettings() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var settings json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			http.Error(w, "Bad request.", http.StatusBadRequest)
			return
		}

		bumps, err := app.store.UpdateContainerSettings(r.Context(), p.ByName("id"), settings)
		if err != nil {
			app.writeError(w, err)
			return
		}

		revisions := make(map[string]int64, len(bumps))
		for _, bump := range bumps {
			app.publishScreenChanged(bump)
			revisions[bump.ScreenKey] = bump.Revision
		}

		app.writeJSON(w, http.StatusOK, revisions)
	}
}

func (app *App) setActiveContainer() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var input struct {
			ContainerID string `json:"containerId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.ContainerID == "" {
			http.Error(w, "Bad request.", http.StatusBadRequest)
			return
		}

		container, err := app.store.SetActiveContainer(r.Context(), input.ContainerID)
		if err != nil {
			app.writeError(w, err)
			return
		}

		app.publish(event.ActiveContainerChanged{
			ContainerID:      container.ID,
			DefaultScreenKey: container.DefaultScreenKey,
			Timestamp:        time.Now().UTC(),
		})

		app.writeJSON(w, http.StatusOK, container)
	}
}

func (app *App) publishScreenChanged(bump store.Bump) {
	app.publish(event.ScreenChanged{
		ContainerID: bump.ContainerID,
		ScreenKey:   bump.ScreenKey,
		Revision:    bump.Revision,
		Timestamp:   time.Now().UTC(),
	})
}

// publish is fire-and-forget: the mutation is committed by the time we get
// here, so a failing subscriber callback must not surface to the caller.
func (app *App) publish(change event.Change) {
	defer func() {
		if r := recover(); r != nil {
			app.logger.Error().Interface("panic", r).Str("event", change.Name()).Msg("publish failed")
		}
	}()

	app.hub.Publish(change)
}

func (app *App) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		app.logger.Error().Err(err).Msg("write response")
	}
}

func (app *App) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrContainerNotFound), errors.Is(err, store.ErrScreenNotFound):
		http.Error(w, "Not found.", http.StatusNotFound)
	default:
		app.logger.Error().Err(err).Msg("internal error")
		http.Error(w, "Internal server error.", http.StatusInternalServerError)
	}
}
