package agent

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chadiek/gdd-voice/internal/gdd"
)

type record struct {
	ev      Event
	audio   []byte
	isAudio bool
}

type fakeClient struct {
	mu    sync.Mutex
	items []record
}

func (c *fakeClient) SendEvent(ev Event) error {
	c.mu.Lock()
	c.items = append(c.items, record{ev: ev})
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) SendAudio(pcm []byte) error {
	c.mu.Lock()
	c.items = append(c.items, record{audio: pcm, isAudio: true})
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) snapshot() []record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]record(nil), c.items...)
}

func (c *fakeClient) events(t EventType) []Event {
	var out []Event
	for _, r := range c.snapshot() {
		if !r.isAudio && r.ev.Type == t {
			out = append(out, r.ev)
		}
	}
	return out
}

func (c *fakeClient) count(t EventType) int { return len(c.events(t)) }

// audioTexts returns the sentence each audio frame was synthesized from.
func (c *fakeClient) audioTexts() []string {
	var out []string
	for _, r := range c.snapshot() {
		if r.isAudio {
			out = append(out, audioLabel(r.audio))
		}
	}
	return out
}

// indexOf returns the position of the first event of type t, or -1.
func (c *fakeClient) indexOf(t EventType) int {
	for i, r := range c.snapshot() {
		if !r.isAudio && r.ev.Type == t {
			return i
		}
	}
	return -1
}

func audioLabel(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// fakeSynth returns the sentence text padded with silence to size(text) bytes.
type fakeSynth struct {
	delay func(text string) time.Duration
	size  func(text string) int
	calls atomic.Int32
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) []byte {
	f.calls.Add(1)
	if f.delay != nil {
		t := time.NewTimer(f.delay(text))
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil
		}
	}
	n := len(text) + 1
	if f.size != nil && f.size(text) > n {
		n = f.size(text)
	}
	out := make([]byte, n)
	copy(out, text)
	return out
}

type fakeGen struct {
	tokens []string
	delay  time.Duration
	err    error

	active    atomic.Int32
	maxActive atomic.Int32

	mu      sync.Mutex
	prompts []string
}

func (f *fakeGen) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	tokCh := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		n := f.active.Add(1)
		for {
			m := f.maxActive.Load()
			if n <= m || f.maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		defer f.active.Add(-1)
		defer close(tokCh)
		defer close(errCh)
		for _, tok := range f.tokens {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
			select {
			case tokCh <- tok:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if f.err != nil {
			errCh <- f.err
		}
	}()
	return tokCh, errCh
}

func (f *fakeGen) promptList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeDocs struct {
	questions []string
	finishErr error
	markdown  string

	mu      sync.Mutex
	cursor  int
	answers []string
	nexts   int
	started int
}

func newFakeDocs(qs ...string) *fakeDocs {
	return &fakeDocs{questions: qs, cursor: -1, markdown: "# Game Design Document"}
}

func (d *fakeDocs) StartDocumentSession(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started++
	d.cursor = -1
	return "doc-1", nil
}

func (d *fakeDocs) RecordAnswer(ctx context.Context, id, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursor < 0 {
		return gdd.ErrNoActiveQuestion
	}
	d.answers = append(d.answers, text)
	return nil
}

func (d *fakeDocs) NextQuestion(ctx context.Context, id string) (gdd.Step, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nexts++
	total := len(d.questions)
	if d.cursor < total {
		d.cursor++
	}
	if d.cursor >= total {
		return gdd.Step{Index: total, Total: total, Done: true}, nil
	}
	return gdd.Step{Question: d.questions[d.cursor], Index: d.cursor, Total: total}, nil
}

func (d *fakeDocs) FinishDocument(ctx context.Context, id string) (string, error) {
	if d.finishErr != nil {
		return "", d.finishErr
	}
	return d.markdown, nil
}

func (d *fakeDocs) ExportDocument(ctx context.Context, id string) (gdd.Artifact, error) {
	if id == "" {
		return gdd.Artifact{}, errors.New("no id")
	}
	return gdd.Artifact{SessionID: id, Key: "gdd/" + id + ".md", URL: "file:///tmp/" + id + ".md"}, nil
}

func (d *fakeDocs) recorded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.answers...)
}

func (d *fakeDocs) nextCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nexts
}

func testConfig() TurnConfig {
	c := DefaultTurnConfig()
	c.Debounce = 60 * time.Millisecond
	c.DebounceExtended = 120 * time.Millisecond
	c.DedupWindow = time.Second
	c.CritiqueGrace = time.Hour
	c.DocTimeout = time.Second
	c.FinishTimeout = time.Second
	c.GenerationTimeout = 5 * time.Second
	c.Playback = PlaybackConfig{BytesPerSecond: 16000 * 2, MinPad: time.Millisecond, MaxPad: 2 * time.Millisecond}
	return c
}

type harness struct {
	ctrl   *Controller
	sess   *Session
	client *fakeClient
	gen    *fakeGen
	synth  *fakeSynth
	docs   *fakeDocs
}

func newHarness(t *testing.T, cfg TurnConfig, gen *fakeGen, synth *fakeSynth, docs *fakeDocs) *harness {
	t.Helper()
	if gen == nil {
		gen = &fakeGen{}
	}
	if synth == nil {
		synth = &fakeSynth{}
	}
	if docs == nil {
		docs = newFakeDocs("Q1?", "Q2?", "Q3?")
	}
	client := &fakeClient{}
	ctrl := NewController(Deps{Generator: gen, Synthesizer: synth, Documents: docs}, cfg, nil)
	sess := ctrl.Open(context.Background(), client)
	t.Cleanup(func() { ctrl.Close(sess.ID()) })
	return &harness{ctrl: ctrl, sess: sess, client: client, gen: gen, synth: synth, docs: docs}
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
