// Package engine is the embedded query engine the benchmark drives. It
// executes the workload battery against any of the storage encodings,
// chooses join strategies the way a distributed optimizer would, and
// reports the read/shuffle counters the metrics log records.
package engine

import (
	"sync"

	"github.com/stratabench/stratabench/internal/format"
	"github.com/stratabench/stratabench/pkg/types"
)

// Settings are the engine's optimizer controls. They exist process-wide;
// sessions apply a configuration and restore the prior one on release so
// trials never leak configuration into one another.
type Settings struct {
	// AdaptiveEnabled lets the planner downgrade a sort-merge join to a
	// broadcast join when the build side is small enough.
	AdaptiveEnabled bool

	// BroadcastForced directs the planner to broadcast the build side
	// regardless of size estimates, subject to the hard ceiling.
	BroadcastForced bool

	// CacheEnabled turns on the session result cache.
	CacheEnabled bool

	// PruningEnabled enables manifest-driven segment skipping on the
	// versioned encoding.
	PruningEnabled bool
}

// SettingsFromConfig maps an enumerated optimizer bundle onto engine
// settings.
func SettingsFromConfig(cfg types.OptimizerConfig) Settings {
	return Settings{
		AdaptiveEnabled: cfg.AdaptiveEnabled,
		BroadcastForced: cfg.BroadcastForced,
		CacheEnabled:    cfg.CacheEnabled,
		PruningEnabled:  cfg.PruningEnabled,
	}
}

// TableStats are the planner's cardinality estimates, registered once
// after the artifacts are written.
type TableStats struct {
	FactRows int64
	DimRows  int64
}

// Engine owns the global optimizer settings and the storage reader.
// The global settings are the one piece of mutable shared state in the
// harness; the session semaphore guarantees at most one trial holds them.
type Engine struct {
	store *format.Store

	sem chan struct{} // capacity 1: one active session

	mu     sync.Mutex
	global Settings
	stats  TableStats
}

// defaultSettings mirror a fresh engine: adaptive on, pruning on.
var defaultSettings = Settings{AdaptiveEnabled: true, PruningEnabled: true}

// New creates an Engine reading from the given store.
func New(store *format.Store) *Engine {
	return &Engine{
		store:  store,
		sem:    make(chan struct{}, 1),
		global: defaultSettings,
	}
}

// SetTableStats registers cardinality estimates for planning.
func (e *Engine) SetTableStats(stats TableStats) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = stats
}

func (e *Engine) tableStats() TableStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// GlobalSettings returns the current process-wide settings.
func (e *Engine) GlobalSettings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.global
}

// Acquire applies the given settings globally and returns the session
// holding them. Acquisition blocks while another session is active; the
// runner relies on this to keep trials strictly sequential.
func (e *Engine) Acquire(settings Settings) *Session {
	e.sem <- struct{}{}

	e.mu.Lock()
	s := &Session{
		engine:   e,
		prior:    e.global,
		settings: settings,
		cache:    make(map[cacheKey]*Result),
	}
	e.global = settings
	e.mu.Unlock()
	return s
}

// Session is a scoped execution context carrying one optimizer
// configuration. Releasing restores the prior global settings and drops
// the result cache, so the next trial starts cold.
type Session struct {
	engine   *Engine
	prior    Settings
	settings Settings
	cache    map[cacheKey]*Result
	released bool
}

type cacheKey struct {
	workload string
	encoding types.Encoding
}

// Settings returns the session's effective settings.
func (s *Session) Settings() Settings {
	return s.settings
}

// Release restores the prior global settings. Safe to call more than
// once; only the first call has effect.
func (s *Session) Release() {
	if s.released {
		return
	}
	s.released = true
	s.cache = nil

	e := s.engine
	e.mu.Lock()
	e.global = s.prior
	e.mu.Unlock()
	<-e.sem
}
