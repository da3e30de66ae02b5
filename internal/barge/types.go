// Package barge decides when a live transcript partial is real user speech
// worth interrupting the assistant for.
package barge

// Config holds the thresholds for the partial detector.
type Config struct {
	// MinNewTokens is how many new content words a partial must add.
	MinNewTokens int
	// BloomBits sizes the filter of words the assistant has spoken.
	BloomBits int
}

func DefaultConfig() Config {
	return Config{MinNewTokens: 2, BloomBits: 4096}
}
