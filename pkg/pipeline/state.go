package pipeline

import (
	"fmt"
	"strings"

	"igfetch/pkg/config"
	errs "igfetch/pkg/errors"
)

// State is a step of a retrieval run
type State int

const (
	StateInit State = iota
	StateSessionReady
	StateMediaDiscovered
	StateDownloading
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSessionReady:
		return "session_ready"
	case StateMediaDiscovered:
		return "media_discovered"
	case StateDownloading:
		return "downloading"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// next lists the forward transition of every non-terminal state.
// Failed is reachable from anywhere and handled separately.
var next = map[State]State{
	StateInit:            StateSessionReady,
	StateSessionReady:    StateMediaDiscovered,
	StateMediaDiscovered: StateDownloading,
	StateDownloading:     StateCompleted,
}

// CanTransition reports whether from → to is a legal step
func CanTransition(from, to State) bool {
	if from == StateCompleted || from == StateFailed {
		return false
	}
	if to == StateFailed {
		return true
	}
	return next[from] == to
}

// Strategy selects how media is discovered
type Strategy int

const (
	// BrowserStrategy renders the page in a stealth browser and scrapes it
	BrowserStrategy Strategy = iota
	// GraphQLStrategy reads the owner's timeline over the web GraphQL API
	GraphQLStrategy
)

func (s Strategy) String() string {
	if s == GraphQLStrategy {
		return config.StrategyGraphQL
	}
	return config.StrategyBrowser
}

// ParseStrategy maps a configured name to a Strategy. Empty means browser.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", config.StrategyBrowser:
		return BrowserStrategy, nil
	case config.StrategyGraphQL:
		return GraphQLStrategy, nil
	default:
		return BrowserStrategy, errs.Usage("unknown strategy %q (want %s or %s)",
			name, config.StrategyBrowser, config.StrategyGraphQL)
	}
}
