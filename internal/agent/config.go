package agent

import "time"

// TurnConfig holds the per-session turn-taking knobs.
type TurnConfig struct {
	// Debounce delays committing a final utterance so continued speech can
	// supersede it; DebounceExtended applies when it looks unfinished.
	Debounce         time.Duration
	DebounceExtended time.Duration
	// DedupWindow drops a committed utterance identical to the previous one.
	DedupWindow time.Duration
	// CritiqueGrace is the quiet period after a wizard answer before feedback.
	CritiqueGrace time.Duration
	// CritiqueMinWords is the shortest answer that gets a critique instead of a nudge.
	CritiqueMinWords int
	// MinAnswerWords: shorter wizard utterances are noise.
	MinAnswerWords int
	// DocTimeout bounds document pipeline calls; FinishTimeout bounds finish.
	DocTimeout    time.Duration
	FinishTimeout time.Duration
	// GenerationTimeout bounds one reply; hitting it flushes what was generated.
	GenerationTimeout time.Duration
	HistoryTurns      int
	Playback          PlaybackConfig
}

func DefaultTurnConfig() TurnConfig {
	return TurnConfig{
		Debounce:          1200 * time.Millisecond,
		DebounceExtended:  2000 * time.Millisecond,
		DedupWindow:       4 * time.Second,
		CritiqueGrace:     1800 * time.Millisecond,
		CritiqueMinWords:  4,
		MinAnswerWords:    2,
		DocTimeout:        10 * time.Second,
		FinishTimeout:     20 * time.Second,
		GenerationTimeout: 60 * time.Second,
		HistoryTurns:      12,
		Playback:          DefaultPlaybackConfig(),
	}
}
