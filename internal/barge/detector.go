package barge

import (
	"strings"
	"sync"
	"unicode"
)

// bloom is a tiny one-hash filter of words the assistant has spoken, used to
// discount echo picked up by the user's microphone.
type bloom struct{ bits []byte }

func newBloom(n int) *bloom { return &bloom{bits: make([]byte, n)} }

func (b *bloom) hash(s string) int {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return int(h % uint32(len(b.bits)))
}

func (b *bloom) Add(s string) {
	if len(b.bits) > 0 {
		b.bits[b.hash(s)] = 1
	}
}

func (b *bloom) Contains(s string) bool { return len(b.bits) > 0 && b.bits[b.hash(s)] == 1 }

func (b *bloom) Clear() { clear(b.bits) }

// Detector tracks how far the running partial has grown past a baseline:
// the partial seen when the last utterance was committed or the assistant
// was interrupted. Recognizers usually grow a partial one word at a time, so
// growth is never measured against the previous partial alone.
// It is safe for concurrent use.
type Detector struct {
	cfg Config

	mu       sync.Mutex
	last     []string
	baseline []string
	spoken   *bloom
}

func NewDetector(cfg Config) *Detector {
	if cfg.MinNewTokens <= 0 {
		cfg.MinNewTokens = 2
	}
	if cfg.BloomBits <= 0 {
		cfg.BloomBits = 4096
	}
	return &Detector{cfg: cfg, spoken: newBloom(cfg.BloomBits)}
}

// NotifySpoken records text the assistant is about to say.
func (d *Detector) NotifySpoken(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range tokenize(text) {
		d.spoken.Add(w)
	}
}

// ClearSpoken forgets spoken words once their audio has finished.
func (d *Detector) ClearSpoken() {
	d.mu.Lock()
	d.spoken.Clear()
	d.mu.Unlock()
}

// Meaningful reports whether partial carries at least MinNewTokens content
// words beyond the baseline. Stopwords, fillers and words the assistant is
// speaking do not count. A partial that no longer starts with the baseline
// (a new recognizer turn, or revised words) is judged from the first token
// that differs.
func (d *Detector) Meaningful(partial string) bool {
	tokens := tokenize(partial)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = tokens
	start := 0
	for start < len(d.baseline) && start < len(tokens) && d.baseline[start] == tokens[start] {
		start++
	}
	n := 0
	for _, w := range tokens[start:] {
		if isStopword(w) || d.spoken.Contains(w) {
			continue
		}
		n++
		if n >= d.cfg.MinNewTokens {
			return true
		}
	}
	return false
}

// Rebase makes the latest partial the baseline for later growth.
func (d *Detector) Rebase() {
	d.mu.Lock()
	d.baseline = d.last
	d.mu.Unlock()
}

// Reset rebases and forgets spoken words.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.baseline = d.last
	d.spoken.Clear()
	d.mu.Unlock()
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func isStopword(s string) bool {
	switch s {
	case "the", "a", "an", "and", "or", "to", "of", "in", "on", "for", "is", "it",
		"uh", "um", "uhm", "hmm", "mm", "er", "ah", "oh", "yeah", "ok", "okay", "so", "like":
		return true
	}
	return false
}
