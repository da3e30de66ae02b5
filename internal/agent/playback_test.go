package agent

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func newTestPlayback(client *fakeClient, synth *fakeSynth, cfg PlaybackConfig) *Playback {
	return NewPlayback(context.Background(), client, synth, cfg, nil, nil)
}

func fastPacing() PlaybackConfig {
	return PlaybackConfig{BytesPerSecond: 16000 * 2, MinPad: time.Millisecond, MaxPad: 2 * time.Millisecond}
}

func TestPlayback_OrderIsEnqueueOrder(t *testing.T) {
	delays := map[string]time.Duration{"s1": 60 * time.Millisecond, "s2": 5 * time.Millisecond, "s3": 30 * time.Millisecond}
	synth := &fakeSynth{delay: func(text string) time.Duration { return delays[text] }}
	client := &fakeClient{}
	p := newTestPlayback(client, synth, fastPacing())

	p.Enqueue("s1", SourceChat)
	p.Enqueue("s2", SourceChat)
	p.Enqueue("s3", SourceChat)

	waitFor(t, 2*time.Second, "voice_done", func() bool { return client.count(EventVoiceDone) == 1 })
	if got := client.audioTexts(); !reflect.DeepEqual(got, []string{"s1", "s2", "s3"}) {
		t.Fatalf("audio order = %v", got)
	}
	starts := client.events(EventSentenceStart)
	if len(starts) != 3 || starts[0].Text != "s1" || starts[2].Text != "s3" {
		t.Fatalf("sentence_start events = %+v", starts)
	}
	if p.Speaking() {
		t.Fatalf("speaking should clear after the queue drains")
	}
}

func TestPlayback_CancelIsSilent(t *testing.T) {
	synth := &fakeSynth{
		delay: func(text string) time.Duration {
			if text == "late" {
				return 80 * time.Millisecond
			}
			return 0
		},
		// 250ms of audio keeps the worker pacing while we cancel
		size: func(string) int { return 8000 },
	}
	client := &fakeClient{}
	p := newTestPlayback(client, synth, fastPacing())

	p.Enqueue("first", SourceChat)
	p.Enqueue("late", SourceChat)
	waitFor(t, time.Second, "first audio", func() bool { return len(client.audioTexts()) == 1 })
	if !p.Speaking() {
		t.Fatalf("expected speaking while first sentence plays")
	}
	p.Cancel()
	if p.Speaking() {
		t.Fatalf("speaking should clear on cancel")
	}
	time.Sleep(200 * time.Millisecond)
	if got := client.audioTexts(); !reflect.DeepEqual(got, []string{"first"}) {
		t.Fatalf("audio after cancel: %v", got)
	}
	if client.count(EventVoiceDone) != 0 {
		t.Fatalf("a cancelled turn does not report voice_done")
	}
	if p.Pending() != 0 {
		t.Fatalf("queue should be cleared")
	}
}

func TestPlayback_CancelWithoutWorker(t *testing.T) {
	p := newTestPlayback(&fakeClient{}, &fakeSynth{}, fastPacing())
	p.Cancel()
	p.Cancel()
}

func TestPlayback_NewTurnAfterCancel(t *testing.T) {
	synth := &fakeSynth{size: func(string) int { return 16000 }}
	client := &fakeClient{}
	p := newTestPlayback(client, synth, fastPacing())
	p.Enqueue("old", SourceChat)
	waitFor(t, time.Second, "old audio", func() bool { return len(client.audioTexts()) == 1 })
	p.Cancel()
	p.Enqueue("new", SourceWizard)
	waitFor(t, 2*time.Second, "voice_done", func() bool { return client.count(EventVoiceDone) == 1 })
	if got := client.audioTexts(); !reflect.DeepEqual(got, []string{"old", "new"}) {
		t.Fatalf("audio = %v", got)
	}
}

func TestPlayback_ClosedIgnoresEnqueue(t *testing.T) {
	client := &fakeClient{}
	p := newTestPlayback(client, &fakeSynth{}, fastPacing())
	p.Close()
	p.Enqueue("ignored", SourceChat)
	time.Sleep(30 * time.Millisecond)
	if len(client.snapshot()) != 0 {
		t.Fatalf("closed playback sent %d items", len(client.snapshot()))
	}
}

func TestPlaybackConfig_Pace(t *testing.T) {
	cfg := DefaultPlaybackConfig()
	got := cfg.pace(32000, "hi")
	if got < time.Second+20*time.Millisecond || got > time.Second+80*time.Millisecond {
		t.Fatalf("pace = %s", got)
	}
	long := cfg.pace(0, "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty twentyone twentytwo twentythree twentyfour twentyfive twentysix twentyseven twentyeight twentynine thirty")
	if long != cfg.MaxPad {
		t.Fatalf("pad should clamp to MaxPad, got %s", long)
	}
}
