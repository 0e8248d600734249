// Package client implements the viewer-side live refresh controller. One
// Client watches one screen: it streams change announcements, fetches a fresh
// snapshot whenever a newer revision is announced, and degrades to
// fixed-interval polling after repeated transport failures.
//
// Announcements are a hint to refetch, never a source of truth: the local
// revision only ever advances to a value confirmed by a fetched snapshot.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"

	"github.com/deckbeam/deckbeam/pkg/event"
)

// State of the live refresh controller.
type State string

const (
	StateStreaming State = "streaming"
	StatePolling   State = "polling"
	StateIdle      State = "idle"
)

const (
	DefaultPollInterval   = 15 * time.Second
	DefaultErrorThreshold = 3
	DefaultRetryDelay     = time.Second
)

// Snapshot is the fetched rendering payload for the watched screen. Payload
// holds the full decoded body; Revision is lifted from its fixed path.
type Snapshot struct {
	ContainerID string         `json:"containerId"`
	ScreenKey   string         `json:"screenKey"`
	Revision    int64          `json:"revision"`
	Payload     map[string]any `json:"-"`
}

type Options struct {
	// BaseURL of the deckbeam server, e.g. "http://localhost:6750".
	BaseURL     string
	ContainerID string
	ScreenKey   string

	// OnSnapshot is invoked from the controller goroutine each time a fresh
	// snapshot is adopted.
	OnSnapshot func(Snapshot)

	HTTPClient     *http.Client
	PollInterval   time.Duration
	RetryDelay     time.Duration
	ErrorThreshold int
	Logger         zerolog.Logger
}

// Client is single-use: Start begins refreshing, Close ends it for good. A
// client that degraded to polling stays polling until closed; re-entering
// streaming takes a fresh client, mirroring a viewer remount.
type Client struct {
	options Options

	mux        sync.Mutex
	state      State
	revision   int64
	errorCount int

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

func New(options Options) (*Client, error) {
	if options.BaseURL == "" {
		return nil, fmt.Errorf("live refresh: base URL cannot be empty")
	}

	if options.ContainerID == "" || options.ScreenKey == "" {
		return nil, fmt.Errorf("live refresh: containerId and screenKey cannot be empty")
	}

	if options.HTTPClient == nil {
		options.HTTPClient = http.DefaultClient
	}

	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}

	if options.RetryDelay <= 0 {
		options.RetryDelay = DefaultRetryDelay
	}

	if options.ErrorThreshold <= 0 {
		options.ErrorThreshold = DefaultErrorThreshold
	}

	return &Client{
		options: options,
		state:   StateIdle,
		done:    make(chan struct{}),
		logger: options.Logger.With().
			Str("component", "live-refresh").
			Str("containerId", options.ContainerID).
			Str("screenKey", options.ScreenKey).
			Logger(),
	}, nil
}

// Start begins live refresh from the given snapshot's revision.
func (c *Client) Start(initial Snapshot) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mux.Lock()
	c.revision = initial.Revision
	c.state = StateStreaming
	c.cancel = cancel
	c.mux.Unlock()

	go c.run(ctx)
}

// Close stops all timers and connections and moves the client to Idle.
// Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mux.Lock()
		cancel := c.cancel
		c.state = StateIdle
		c.mux.Unlock()

		if cancel != nil {
			cancel()
			<-c.done
		}

		c.mux.Lock()
		c.state = StateIdle
		c.mux.Unlock()
	})
}

func (c *Client) State() State {
	c.mux.Lock()
	defer c.mux.Unlock()

	return c.state
}

// Revision reports the last revision confirmed by a fetch.
func (c *Client) Revision() int64 {
	c.mux.Lock()
	defer c.mux.Unlock()

	return c.revision
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	for c.State() == StateStreaming {
		err := c.stream(ctx)
		if ctx.Err() != nil {
			return
		}

		c.logger.Warn().Err(err).Msg("stream transport error")

		if c.recordTransportError() {
			c.logger.Info().Msg("error threshold reached, falling back to polling")
			break
		}

		select {
		case <-time.After(c.options.RetryDelay):
		case <-ctx.Done():
			return
		}
	}

	if c.State() == StatePolling {
		c.poll(ctx)
	}
}

// stream holds one connection open and dispatches its frames. It returns the
// transport error that ended the connection.
func (c *Client) stream(ctx context.Context) error {
	streamURL := fmt.Sprintf("%s/events?containerId=%s&screenKey=%s",
		c.options.BaseURL,
		url.QueryEscape(c.options.ContainerID),
		url.QueryEscape(c.options.ScreenKey),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.options.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream endpoint returned %s", resp.Status)
	}

	reader := bufio.NewReader(resp.Body)
	var name, data string

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if name != "" {
				c.handleFrame(ctx, name, data)
			}
			name, data = "", ""
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, name, data string) {
	switch name {
	case event.NamePing:
		c.resetLiveness()

	case event.NameScreenChanged:
		var changed event.ScreenChanged
		if err := json.Unmarshal([]byte(data), &changed); err != nil {
			c.logger.Warn().Err(err).Msg("malformed screenChanged frame")
			return
		}

		if changed.Revision > c.Revision() {
			c.reconcile(ctx, changed.Revision)
		}

	case event.NameActiveContainerChanged:
		// Not relevant to a single-screen watcher.

	default:
		c.logger.Debug().Str("event", name).Msg("ignoring unknown frame")
	}
}

// reconcile fetches a fresh snapshot after an announcement. A snapshot older
// than the announced revision raced a later change and is discarded; a later
// event or poll tick catches up.
func (c *Client) reconcile(ctx context.Context, announced int64) {
	snapshot, err := c.fetchSnapshot(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("snapshot fetch failed")
		return
	}

	if snapshot.Revision < announced {
		c.logger.Debug().
			Int64("announced", announced).
			Int64("fetched", snapshot.Revision).
			Msg("stale snapshot discarded")
		return
	}

	c.adopt(snapshot)
}

func (c *Client) poll(ctx context.Context) {
	ticker := time.NewTicker(c.options.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snapshot, err := c.fetchSnapshot(ctx)
			if err != nil {
				c.logger.Warn().Err(err).Msg("poll fetch failed")
				continue
			}

			if snapshot.Revision > c.Revision() {
				c.adopt(snapshot)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) fetchSnapshot(ctx context.Context) (Snapshot, error) {
	snapshotURL := fmt.Sprintf("%s/containers/%s/screens/%s",
		c.options.BaseURL,
		url.PathEscape(c.options.ContainerID),
		url.PathEscape(c.options.ScreenKey),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, snapshotURL, nil)
	if err != nil {
		return Snapshot{}, err
	}

	resp, err := c.options.HTTPClient.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("snapshot endpoint returned %s", resp.Status)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{Payload: payload}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &snapshot,
	})
	if err != nil {
		return Snapshot{}, err
	}

	if err := decoder.Decode(payload); err != nil {
		return Snapshot{}, err
	}

	return snapshot, nil
}

func (c *Client) adopt(snapshot Snapshot) {
	c.mux.Lock()
	c.revision = snapshot.Revision
	c.mux.Unlock()

	if c.options.OnSnapshot != nil {
		c.options.OnSnapshot(snapshot)
	}
}

// resetLiveness zeroes the transport error counter. Heartbeats are the
// liveness signal: a connection that still pings is healthy, whatever came
// before.
func (c *Client) resetLiveness() {
	c.mux.Lock()
	c.errorCount = 0
	c.mux.Unlock()
}

// recordTransportError counts one failure and reports whether the threshold
// was reached, switching the client to polling if so.
func (c *Client) recordTransportError() bool {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.errorCount++
	if c.errorCount < c.options.ErrorThreshold {
		return false
	}

	c.state = StatePolling

	return true
}
