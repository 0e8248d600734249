// Package topic defines the notification scopes a viewer can subscribe to:
// a single screen, every screen of a container, or the global
// active-container scope.
package topic

import "fmt"

// GlobalValue is the literal selector for the global scope.
const GlobalValue = "activeContainerChanged"

// Name identifies the scope a change event belongs to. Either Global is set,
// or ContainerID and ScreenKey are. Equality is structural.
type Name struct {
	Global      bool   `json:"global,omitempty"`
	ContainerID string `json:"containerId,omitempty"`
	ScreenKey   string `json:"screenKey,omitempty"`
}

func NewScreenName(containerID, screenKey string) (Name, error) {
	if containerID == "" {
		return Name{}, fmt.Errorf("topic name: containerId cannot be empty")
	}

	if screenKey == "" {
		return Name{}, fmt.Errorf("topic name: screenKey cannot be empty")
	}

	return Name{ContainerID: containerID, ScreenKey: screenKey}, nil
}

func GlobalName() Name {
	return Name{Global: true}
}

// Filter selects which names a subscription receives. A screen filter with
// an empty ScreenKey matches every screen of its container. The global
// filter matches only the global name; there is no cross-matching.
type Filter struct {
	Global      bool   `json:"global,omitempty"`
	ContainerID string `json:"containerId,omitempty"`
	ScreenKey   string `json:"screenKey,omitempty"`
}

func NewScreenFilter(containerID, screenKey string) (Filter, error) {
	if containerID == "" {
		return Filter{}, fmt.Errorf("topic filter: containerId cannot be empty")
	}

	return Filter{ContainerID: containerID, ScreenKey: screenKey}, nil
}

func GlobalFilter() Filter {
	return Filter{Global: true}
}

func (f Filter) Match(name Name) bool {
	if f.Global || name.Global {
		return f.Global && name.Global
	}

	if f.ContainerID != name.ContainerID {
		return false
	}

	return f.ScreenKey == "" || f.ScreenKey == name.ScreenKey
}
