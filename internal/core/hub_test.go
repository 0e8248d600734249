package core_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckbeam/deckbeam/internal/core"
	"github.com/deckbeam/deckbeam/pkg/event"
	"github.com/deckbeam/deckbeam/pkg/topic"
)

func newHub() *core.Hub {
	return core.NewHub(zerolog.Nop())
}

func screenChanged(containerID, screenKey string, revision int64) event.ScreenChanged {
	return event.ScreenChanged{
		ContainerID: containerID,
		ScreenKey:   screenKey,
		Revision:    revision,
		Timestamp:   time.Now(),
	}
}

func TestHubExactFilter(t *testing.T) {
	hub := newHub()

	filter, err := topic.NewScreenFilter("lobby", "main")
	require.NoError(t, err)

	var got []event.Change
	unsubscribe, err := hub.Subscribe(filter, func(change event.Change) {
		got = append(got, change)
	})
	require.NoError(t, err)
	defer unsubscribe()

	hub.Publish(screenChanged("lobby", "main", 1))
	hub.Publish(screenChanged("lobby", "side", 1))
	hub.Publish(screenChanged("atrium", "main", 1))
	hub.Publish(event.ActiveContainerChanged{ContainerID: "lobby", DefaultScreenKey: "main", Timestamp: time.Now()})

	require.Len(t, got, 1)
	changed, ok := got[0].(event.ScreenChanged)
	require.True(t, ok)
	assert.Equal(t, "main", changed.ScreenKey)
}

func TestHubContainerWideFilter(t *testing.T) {
	hub := newHub()

	filter, err := topic.NewScreenFilter("lobby", "")
	require.NoError(t, err)

	var got []event.Change
	unsubscribe, err := hub.Subscribe(filter, func(change event.Change) {
		got = append(got, change)
	})
	require.NoError(t, err)
	defer unsubscribe()

	hub.Publish(screenChanged("lobby", "main", 1))
	hub.Publish(screenChanged("lobby", "side", 2))
	hub.Publish(screenChanged("atrium", "main", 1))

	require.Len(t, got, 2)
}

func TestHubGlobalFilter(t *testing.T) {
	hub := newHub()

	var got []event.Change
	unsubscribe, err := hub.Subscribe(topic.GlobalFilter(), func(change event.Change) {
		got = append(got, change)
	})
	require.NoError(t, err)
	defer unsubscribe()

	hub.Publish(screenChanged("lobby", "main", 1))
	hub.Publish(event.ActiveContainerChanged{ContainerID: "lobby", DefaultScreenKey: "main", Timestamp: time.Now()})

	require.Len(t, got, 1)
	_, ok := got[0].(event.ActiveContainerChanged)
	assert.True(t, ok)
}

func TestHubDeliveryOrder(t *testing.T) {
	hub := newHub()

	filter, err := topic.NewScreenFilter("lobby", "main")
	require.NoError(t, err)

	var revisions []int64
	unsubscribe, err := hub.Subscribe(filter, func(change event.Change) {
		revisions = append(revisions, change.(event.ScreenChanged).Revision)
	})
	require.NoError(t, err)
	defer unsubscribe()

	for rev := int64(1); rev <= 5; rev++ {
		hub.Publish(screenChanged("lobby", "main", rev))
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, revisions)
}

func TestHubSiblingScreensDoNotCrossMatch(t *testing.T) {
	hub := newHub()

	mainFilter, err := topic.NewScreenFilter("lobby", "main")
	require.NoError(t, err)
	sideFilter, err := topic.NewScreenFilter("lobby", "side")
	require.NoError(t, err)

	var mainCount, sideCount int
	unsubMain, err := hub.Subscribe(mainFilter, func(event.Change) { mainCount++ })
	require.NoError(t, err)
	defer unsubMain()
	unsubSide, err := hub.Subscribe(sideFilter, func(event.Change) { sideCount++ })
	require.NoError(t, err)
	defer unsubSide()

	hub.Publish(screenChanged("lobby", "main", 5))

	assert.Equal(t, 1, mainCount)
	assert.Equal(t, 0, sideCount)
}

func TestHubUnsubscribeIdempotent(t *testing.T) {
	hub := newHub()

	filter, err := topic.NewScreenFilter("lobby", "main")
	require.NoError(t, err)

	var count int
	unsubscribe, err := hub.Subscribe(filter, func(event.Change) { count++ })
	require.NoError(t, err)

	other, err := hub.Subscribe(filter, func(event.Change) {})
	require.NoError(t, err)
	defer other()

	unsubscribe()
	unsubscribe()

	assert.Equal(t, 1, hub.Len())

	hub.Publish(screenChanged("lobby", "main", 1))
	assert.Equal(t, 0, count)
}

func TestHubDuplicatePublish(t *testing.T) {
	hub := newHub()

	filter, err := topic.NewScreenFilter("lobby", "main")
	require.NoError(t, err)

	var got []event.Change
	unsubscribe, err := hub.Subscribe(filter, func(change event.Change) { got = append(got, change) })
	require.NoError(t, err)
	defer unsubscribe()

	change := screenChanged("lobby", "main", 3)
	hub.Publish(change)
	hub.Publish(change)

	require.Len(t, got, 2)
	assert.Equal(t, got[0], got[1])
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := newHub()

	assert.NotPanics(t, func() {
		hub.Publish(screenChanged("lobby", "main", 1))
	})
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := newHub()

	filter, err := topic.NewScreenFilter("lobby", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				unsubscribe, err := hub.Subscribe(filter, func(event.Change) {})
				if err != nil {
					t.Error(err)
					return
				}
				hub.Publish(screenChanged("lobby", "main", int64(j)))
				unsubscribe()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Len())
}
