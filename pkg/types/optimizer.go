package types

// OptimizerConfig is a named bundle of engine settings applied for the
// duration of a single trial. The set is fixed and enumerated; trials are
// never run with ad-hoc flag combinations so every log row maps back to a
// reproducible configuration.
type OptimizerConfig struct {
	// Name identifies the bundle in the metrics log.
	Name string `json:"name" yaml:"name"`

	// AdaptiveEnabled allows the planner to downgrade a sort-merge join to
	// a broadcast join when the build side turns out to be small.
	AdaptiveEnabled bool `json:"adaptive_enabled" yaml:"adaptive_enabled"`

	// BroadcastForced forces a broadcast join regardless of size estimates.
	BroadcastForced bool `json:"broadcast_forced" yaml:"broadcast_forced"`

	// CacheEnabled enables the session result cache.
	CacheEnabled bool `json:"cache_enabled" yaml:"cache_enabled"`

	// PruningEnabled enables zone-map and bloom-filter segment skipping on
	// the versioned encoding.
	PruningEnabled bool `json:"pruning_enabled" yaml:"pruning_enabled"`
}

// The enumerated optimizer bundles.
var (
	ConfigBaseline = OptimizerConfig{
		Name:            "baseline",
		AdaptiveEnabled: true,
		PruningEnabled:  true,
	}

	ConfigBroadcastForced = OptimizerConfig{
		Name:            "broadcast-forced",
		BroadcastForced: true,
		PruningEnabled:  true,
	}

	ConfigSortMerge = OptimizerConfig{
		Name:           "sort-merge",
		PruningEnabled: true,
	}

	ConfigCached = OptimizerConfig{
		Name:            "cached",
		AdaptiveEnabled: true,
		CacheEnabled:    true,
		PruningEnabled:  true,
	}

	ConfigNoPruning = OptimizerConfig{
		Name:            "no-pruning",
		AdaptiveEnabled: true,
	}
)

// AllOptimizerConfigs returns every bundle in a stable order.
func AllOptimizerConfigs() []OptimizerConfig {
	return []OptimizerConfig{
		ConfigBaseline,
		ConfigBroadcastForced,
		ConfigSortMerge,
		ConfigCached,
		ConfigNoPruning,
	}
}

// OptimizerConfigByName resolves a bundle by its log name.
func OptimizerConfigByName(name string) (OptimizerConfig, bool) {
	for _, c := range AllOptimizerConfigs() {
		if c.Name == name {
			return c, true
		}
	}
	return OptimizerConfig{}, false
}
