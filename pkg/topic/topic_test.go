package topic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckbeam/deckbeam/pkg/topic"
)

func TestNewScreenName(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		name, err := topic.NewScreenName("lobby", "main")
		require.NoError(t, err)
		assert.Equal(t, "lobby", name.ContainerID)
		assert.Equal(t, "main", name.ScreenKey)
		assert.False(t, name.Global)
	})

	t.Run("empty containerId", func(t *testing.T) {
		_, err := topic.NewScreenName("", "main")
		require.Error(t, err)
	})

	t.Run("empty screenKey", func(t *testing.T) {
		_, err := topic.NewScreenName("lobby", "")
		require.Error(t, err)
	})
}

func TestNewScreenFilter(t *testing.T) {
	t.Run("exact", func(t *testing.T) {
		_, err := topic.NewScreenFilter("lobby", "main")
		require.NoError(t, err)
	})

	t.Run("all screens of container", func(t *testing.T) {
		_, err := topic.NewScreenFilter("lobby", "")
		require.NoError(t, err)
	})

	t.Run("empty containerId", func(t *testing.T) {
		_, err := topic.NewScreenFilter("", "main")
		require.Error(t, err)
	})
}

func TestFilterMatch(t *testing.T) {
	mustName := func(containerID, screenKey string) topic.Name {
		name, err := topic.NewScreenName(containerID, screenKey)
		require.NoError(t, err)
		return name
	}

	t.Run("exact filter", func(t *testing.T) {
		filter, err := topic.NewScreenFilter("lobby", "main")
		require.NoError(t, err)

		assert.True(t, filter.Match(mustName("lobby", "main")))
		assert.False(t, filter.Match(mustName("lobby", "side")))
		assert.False(t, filter.Match(mustName("atrium", "main")))
		assert.False(t, filter.Match(topic.GlobalName()))
	})

	t.Run("container-wide filter", func(t *testing.T) {
		filter, err := topic.NewScreenFilter("lobby", "")
		require.NoError(t, err)

		assert.True(t, filter.Match(mustName("lobby", "main")))
		assert.True(t, filter.Match(mustName("lobby", "side")))
		assert.False(t, filter.Match(mustName("atrium", "main")))
		assert.False(t, filter.Match(topic.GlobalName()))
	})

	t.Run("global filter", func(t *testing.T) {
		filter := topic.GlobalFilter()

		assert.True(t, filter.Match(topic.GlobalName()))
		assert.False(t, filter.Match(mustName("lobby", "main")))
	})
}
