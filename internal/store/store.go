// Package store persists containers and screens and owns each screen's
// revision counter. Every mutation that changes visible content advances the
// counter inside the same transaction, so a failed mutation never leaves a
// dangling revision and a committed one always has its bump.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrContainerNotFound = errors.New("container not found")
	ErrScreenNotFound    = errors.New("screen not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS containers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	default_screen_key TEXT NOT NULL DEFAULT 'main',
	active INTEGER NOT NULL DEFAULT 0,
	settings TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS screens (
	id TEXT PRIMARY KEY,
	container_id TEXT NOT NULL REFERENCES containers(id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	slides TEXT NOT NULL DEFAULT '[]',
	revision INTEGER NOT NULL DEFAULT 0,
	UNIQUE(container_id, key)
);
`

type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

type Container struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	DefaultScreenKey string `json:"defaultScreenKey"`
	Active           bool   `json:"active"`
}

type Screen struct {
	ID          string          `json:"id"`
	ContainerID string          `json:"containerId"`
	Key         string          `json:"key"`
	Title       string          `json:"title"`
	Slides      json.RawMessage `json:"slides"`
	Revision    int64           `json:"revision"`
}

// Bump identifies a screen whose revision counter just advanced. Revision is
// the post-increment value.
type Bump struct {
	ScreenID    string
	ContainerID string
	ScreenKey   string
	Revision    int64
}

// Snapshot is the full rendering payload for a screen, including the current
// revision.
type Snapshot struct {
	ContainerID string          `json:"containerId"`
	ScreenKey   string          `json:"screenKey"`
	Title       string          `json:"title"`
	Slides      json.RawMessage `json:"slides"`
	Revision    int64           `json:"revision"`
}

func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// PRAGMAs are per-connection and :memory: databases are per-connection
	// too; a single pooled connection keeps both coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
	s.logger.Debug().Str("path", path).Msg("database ready")

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateContainer(ctx context.Context, name, defaultScreenKey string) (Container, error) {
	if defaultScreenKey == "" {
		defaultScreenKey = "main"
	}

	id, err := gonanoid.New()
	if err != nil {
		return Container{}, fmt.Errorf("container id: %w", err)
	}

	container := Container{
		ID:               id,
		Name:             name,
		DefaultScreenKey: defaultScreenKey,
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO containers (id, name, default_screen_key) VALUES (?, ?, ?)",
		container.ID, container.Name, container.DefaultScreenKey,
	)
	if err != nil {
		return Container{}, fmt.Errorf("create container: %w", err)
	}

	return container, nil
}

func (s *Store) CreateScreen(ctx context.Context, containerID, key, title string) (Screen, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM containers WHERE id = ?", containerID,
	).Scan(&exists)
	if err != nil {
		return Screen{}, fmt.Errorf("check container: %w", err)
	}
	if exists == 0 {
		return Screen{}, ErrContainerNotFound
	}

	id, err := gonanoid.New()
	if err != nil {
		return Screen{}, fmt.Errorf("screen id: %w", err)
	}

	screen := Screen{
		ID:          id,
		ContainerID: containerID,
		Key:         key,
		Title:       title,
		Slides:      json.RawMessage("[]"),
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO screens (id, container_id, key, title) VALUES (?, ?, ?, ?)",
		screen.ID, screen.ContainerID, screen.Key, screen.Title,
	)
	if err != nil {
		return Screen{}, fmt.Errorf("create screen: %w", err)
	}

	return screen, nil
}

func (s *Store) GetScreen(ctx context.Context, containerID, key string) (Screen, error) {
	var screen Screen
	var slides string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, container_id, key, title, slides, revision FROM screens WHERE container_id = ? AND key = ?",
		containerID, key,
	).Scan(&screen.ID, &screen.ContainerID, &screen.Key, &screen.Title, &slides, &screen.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return Screen{}, ErrScreenNotFound
	}
	if err != nil {
		return Screen{}, fmt.Errorf("get screen: %w", err)
	}

	screen.Slides = json.RawMessage(slides)

	return screen, nil
}

func (s *Store) ListScreens(ctx context.Context, containerID string) ([]Screen, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, container_id, key, title, slides, revision FROM screens WHERE container_id = ? ORDER BY key",
		containerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list screens: %w", err)
	}
	defer rows.Close()

	var screens []Screen
	for rows.Next() {
		var screen Screen
		var slides string

		if err := rows.Scan(&screen.ID, &screen.ContainerID, &screen.Key, &screen.Title, &slides, &screen.Revision); err != nil {
			return nil, fmt.Errorf("scan screen: %w", err)
		}

		screen.Slides = json.RawMessage(slides)
		screens = append(screens, screen)
	}

	return screens, rows.Err()
}

// Snapshot returns the full rendering payload for one screen.
func (s *Store) Snapshot(ctx context.Context, containerID, key string) (Snapshot, error) {
	screen, err := s.GetScreen(ctx, containerID, key)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		ContainerID: screen.ContainerID,
		ScreenKey:   screen.Key,
		Title:       screen.Title,
		Slides:      screen.Slides,
		Revision:    screen.Revision,
	}, nil
}

// Bump advances the revision counter of one screen. Callers that mutate
// content should prefer the mutation methods below, which bump inside the
// same transaction as the content change.
func (s *Store) Bump(ctx context.Context, screenID string) (Bump, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Bump{}, fmt.Errorf("begin bump: %w", err)
	}
	defer tx.Rollback()

	bump, err := bumpTx(ctx, tx, screenID)
	if err != nil {
		return Bump{}, err
	}

	if err := tx.Commit(); err != nil {
		return Bump{}, fmt.Errorf("commit bump: %w", err)
	}

	return bump, nil
}

// UpdateSlides replaces a screen's slide payload. One logical content change,
// one bump, regardless of how many slides moved.
func (s *Store) UpdateSlides(ctx context.Context, screenID string, slides json.RawMessage) (Bump, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Bump{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE screens SET slides = ? WHERE id = ?", string(slides), screenID,
	)
	if err != nil {
		return Bump{}, fmt.Errorf("update slides: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Bump{}, err
	} else if n == 0 {
		return Bump{}, ErrScreenNotFound
	}

	bump, err := bumpTx(ctx, tx, screenID)
	if err != nil {
		return Bump{}, err
	}

	if err := tx.Commit(); err != nil {
		return Bump{}, fmt.Errorf("commit update: %w", err)
	}

	return bump, nil
}

// UpdateContainerSettings applies a container-wide setting change and bumps
// every screen of the container once, atomically: if anything fails, no
// counter advances.
func (s *Store) UpdateContainerSettings(ctx context.Context, containerID string, settings json.RawMessage) ([]Bump, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE containers SET settings = ? WHERE id = ?", string(settings), containerID,
	)
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrContainerNotFound
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM screens WHERE container_id = ? ORDER BY key", containerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list screens: %w", err)
	}

	var screenIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan screen: %w", err)
		}
		screenIDs = append(screenIDs, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	bumps := make([]Bump, 0, len(screenIDs))
	for _, id := range screenIDs {
		bump, err := bumpTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		bumps = append(bumps, bump)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	return bumps, nil
}

// SetActiveContainer marks one container active and every other inactive.
func (s *Store) SetActiveContainer(ctx context.Context, containerID string) (Container, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Container{}, fmt.Errorf("begin activate: %w", err)
	}
	defer tx.Rollback()

	var container Container
	err = tx.QueryRowContext(ctx,
		"SELECT id, name, default_screen_key FROM containers WHERE id = ?", containerID,
	).Scan(&container.ID, &container.Name, &container.DefaultScreenKey)
	if errors.Is(err, sql.ErrNoRows) {
		return Container{}, ErrContainerNotFound
	}
	if err != nil {
		return Container{}, fmt.Errorf("get container: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE containers SET active = (id = ?)", containerID); err != nil {
		return Container{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Container{}, fmt.Errorf("commit activate: %w", err)
	}

	container.Active = true

	return container, nil
}

func bumpTx(ctx context.Context, tx *sql.Tx, screenID string) (Bump, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE screens SET revision = revision + 1 WHERE id = ?", screenID,
	)
	if err != nil {
		return Bump{}, fmt.Errorf("bump revision: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Bump{}, err
	} else if n == 0 {
		return Bump{}, ErrScreenNotFound
	}

	bump := Bump{ScreenID: screenID}
	err = tx.QueryRowContext(ctx,
		"SELECT container_id, key, revision FROM screens WHERE id = ?", screenID,
	).Scan(&bump.ContainerID, &bump.ScreenKey, &bump.Revision)
	if err != nil {
		return Bump{}, fmt.Errorf("read revision: %w", err)
	}

	return bump, nil
}
