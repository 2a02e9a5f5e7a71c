package engine

// EngineConfig is process-wide configuration: model role chains, compaction
// thresholds, and retry policy. It loads once and is immutable thereafter
// (spec §6 "Process-wide config ... is immutable after load").
type EngineConfig struct {
	Chains ModelChains
	Retry  RetryConfig

	CompactionMaxMessages   int
	CompactionTokenThreshold int
	CompactionKeepRecent    int

	RecursionThreshold int
	MaxDepth           int
}

// DefaultEngineConfig matches the thresholds named throughout spec §4:
// recursion_threshold=6000, max_depth=5, and a should_compact gate of
// (len>20, tokens>6000) matching the voice pipeline's own should_compact
// call in spec §4.8 step 5.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Chains:                   ModelChains{},
		Retry:                    DefaultRetryConfig(),
		CompactionMaxMessages:    20,
		CompactionTokenThreshold: 6000,
		CompactionKeepRecent:     10,
		RecursionThreshold:       DefaultRecursionThreshold,
		MaxDepth:                 DefaultMaxDepth,
	}
}
