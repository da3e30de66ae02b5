package agent

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestChat_SpeaksSentencesAsTheyComplete(t *testing.T) {
	gen := &fakeGen{tokens: []string{"Hello", " world.", " How are", " you?"}, delay: time.Millisecond}
	h := newHarness(t, testConfig(), gen, nil, nil)

	h.sess.OnText("hi there")
	waitFor(t, 2*time.Second, "both sentences played", func() bool { return len(h.client.audioTexts()) == 2 })
	waitFor(t, time.Second, "voice_done", func() bool { return h.client.count(EventVoiceDone) >= 1 })

	var sentences []string
	for _, ev := range h.client.events(EventLLMSentence) {
		sentences = append(sentences, ev.Text)
	}
	if !reflect.DeepEqual(sentences, []string{"Hello world.", "How are you?"}) {
		t.Fatalf("sentences = %v", sentences)
	}
	if got := h.client.audioTexts(); !reflect.DeepEqual(got, sentences) {
		t.Fatalf("audio = %v", got)
	}
	if h.client.count(EventLLMStream) != 4 || h.client.count(EventLLMDone) != 1 {
		t.Fatalf("expected 4 tokens and one llm_done")
	}
	if finals := h.client.events(EventFinal); len(finals) != 1 || finals[0].Text != "hi there" {
		t.Fatalf("final events = %+v", finals)
	}
	waitFor(t, time.Second, "history", func() bool { return h.sess.history.Len() == 2 })
	if h.sess.Mode() != ModeChat {
		t.Fatalf("mode = %s", h.sess.Mode())
	}
}

func TestChat_SingleFlight(t *testing.T) {
	gen := &fakeGen{tokens: []string{"One.", " Two.", " Three."}, delay: 40 * time.Millisecond}
	h := newHarness(t, testConfig(), gen, nil, nil)

	h.sess.OnText("tell me a story")
	h.sess.OnText("and another one")

	waitFor(t, 2*time.Second, "llm_busy", func() bool { return h.client.count(EventLLMBusy) == 1 })
	waitFor(t, 2*time.Second, "llm_done", func() bool { return h.client.count(EventLLMDone) == 1 })
	if gen.maxActive.Load() != 1 {
		t.Fatalf("expected one generation at a time, saw %d", gen.maxActive.Load())
	}
	if n := len(gen.promptList()); n != 1 {
		t.Fatalf("expected the second utterance to be dropped, got %d prompts", n)
	}
	waitFor(t, time.Second, "busy cleared", func() bool { return !h.sess.GenerationBusy() })
}

func TestDebounce_LatestUtteranceWins(t *testing.T) {
	gen := &fakeGen{tokens: []string{"Nice."}}
	h := newHarness(t, testConfig(), gen, nil, nil)

	h.sess.OnRecognition("I want a", true)
	time.Sleep(10 * time.Millisecond)
	h.sess.OnRecognition("I want a fantasy RPG.", true)

	waitFor(t, 2*time.Second, "llm_done", func() bool { return h.client.count(EventLLMDone) == 1 })
	time.Sleep(200 * time.Millisecond)
	finals := h.client.events(EventFinal)
	if len(finals) != 1 || finals[0].Text != "I want a fantasy RPG." {
		t.Fatalf("finals = %+v", finals)
	}
	prompts := gen.promptList()
	if len(prompts) != 1 || !strings.HasSuffix(prompts[0], "[USER] I want a fantasy RPG.") {
		t.Fatalf("prompts = %q", prompts)
	}
}

func TestDebounce_MergesFinalFragments(t *testing.T) {
	gen := &fakeGen{tokens: []string{"Ok."}}
	h := newHarness(t, testConfig(), gen, nil, nil)

	h.sess.OnRecognition("I want a", true)
	h.sess.OnRecognition("dungeon crawler", true)

	waitFor(t, 2*time.Second, "final", func() bool { return h.client.count(EventFinal) == 1 })
	if got := h.client.events(EventFinal)[0].Text; got != "I want a dungeon crawler" {
		t.Fatalf("merged final = %q", got)
	}
}

func TestDedup_IdenticalUtteranceDropped(t *testing.T) {
	gen := &fakeGen{tokens: []string{"Hi."}}
	h := newHarness(t, testConfig(), gen, nil, nil)

	h.sess.OnText("hello there friend")
	waitFor(t, 2*time.Second, "llm_done", func() bool { return h.client.count(EventLLMDone) == 1 })
	h.sess.OnText("Hello there, friend!")
	time.Sleep(100 * time.Millisecond)
	if h.client.count(EventFinal) != 1 || len(gen.promptList()) != 1 {
		t.Fatalf("duplicate utterance was processed")
	}
}

func TestBargeIn_StopsSpeechSilently(t *testing.T) {
	gen := &fakeGen{tokens: []string{"First sentence here.", " Second sentence here.", " Third."}, delay: time.Millisecond}
	synth := &fakeSynth{size: func(string) int { return 16000 }} // 0.5s each
	h := newHarness(t, testConfig(), gen, synth, nil)

	h.sess.OnText("explain combat")
	waitFor(t, 2*time.Second, "speaking", h.sess.AssistantSpeaking)

	h.sess.OnRecognition("wait hold on", false)
	if h.client.count(EventStopAll) != 1 {
		t.Fatalf("expected stop_all on barge-in")
	}
	if h.sess.AssistantSpeaking() || h.sess.GenerationBusy() {
		t.Fatalf("barge-in should leave the session idle")
	}
	audioAtStop := len(h.client.audioTexts())
	time.Sleep(300 * time.Millisecond)
	if got := len(h.client.audioTexts()); got != audioAtStop {
		t.Fatalf("audio kept flowing after barge-in: %d -> %d", audioAtStop, got)
	}
	if partials := h.client.events(EventPartial); len(partials) != 1 {
		t.Fatalf("partial should be forwarded, got %d", len(partials))
	}
}

func TestBargeIn_WordByWordPartials(t *testing.T) {
	gen := &fakeGen{tokens: []string{"First sentence here.", " Second sentence here."}, delay: time.Millisecond}
	synth := &fakeSynth{size: func(string) int { return 32000 }}
	h := newHarness(t, testConfig(), gen, synth, nil)

	h.sess.OnText("explain combat")
	waitFor(t, 2*time.Second, "speaking", h.sess.AssistantSpeaking)

	h.sess.OnRecognition("wait", false)
	if h.client.count(EventStopAll) != 0 {
		t.Fatalf("a single word must not interrupt")
	}
	h.sess.OnRecognition("wait stop", false)
	h.sess.OnRecognition("wait stop talking", false)
	if got := h.client.count(EventStopAll); got != 1 {
		t.Fatalf("expected one stop_all from a growing partial, got %d", got)
	}
	if h.sess.AssistantSpeaking() {
		t.Fatalf("barge-in should stop speech")
	}
}

func TestBargeIn_CommittedWordsDoNotCount(t *testing.T) {
	gen := &fakeGen{tokens: []string{"Once upon a time."}, delay: time.Millisecond}
	synth := &fakeSynth{size: func(string) int { return 32000 }}
	h := newHarness(t, testConfig(), gen, synth, nil)

	h.sess.OnRecognition("tell me a story", false)
	h.sess.OnRecognition("tell me a story", true)
	waitFor(t, 2*time.Second, "speaking", h.sess.AssistantSpeaking)

	// the recognizer keeps sending the running transcript of its turn
	h.sess.OnRecognition("tell me a story", false)
	if h.client.count(EventStopAll) != 0 || !h.sess.AssistantSpeaking() {
		t.Fatalf("re-sent committed words must not interrupt")
	}
	h.sess.OnRecognition("tell me a story hold up", false)
	if h.client.count(EventStopAll) != 1 {
		t.Fatalf("new words past the committed text should interrupt")
	}
}

func TestBargeIn_FinishedReplyDoesNotMaskInterruption(t *testing.T) {
	gen := &fakeGen{tokens: []string{"You should stop by the tavern and wait for the guard."}, delay: time.Millisecond}
	synth := &fakeSynth{size: func(text string) int {
		if strings.HasPrefix(text, "Here") {
			return 32000
		}
		return 0
	}}
	h := newHarness(t, testConfig(), gen, synth, nil)

	h.sess.OnText("where do I go")
	waitFor(t, 2*time.Second, "first reply finished", func() bool {
		return h.client.count(EventVoiceDone) >= 1 && !h.sess.GenerationBusy() && !h.sess.AssistantSpeaking()
	})

	gen.tokens = []string{"Here is a much longer answer."}
	h.sess.OnText("tell me more")
	waitFor(t, 2*time.Second, "speaking", h.sess.AssistantSpeaking)
	h.sess.OnRecognition("stop wait", false)
	if h.client.count(EventStopAll) != 1 {
		t.Fatalf("words of an earlier finished reply masked the interruption")
	}
}

func TestBargeIn_IgnoresFillerPartials(t *testing.T) {
	gen := &fakeGen{tokens: []string{"Long answer."}}
	synth := &fakeSynth{size: func(string) int { return 32000 }}
	h := newHarness(t, testConfig(), gen, synth, nil)

	h.sess.OnText("explain combat")
	waitFor(t, 2*time.Second, "speaking", h.sess.AssistantSpeaking)
	h.sess.OnRecognition("um uh", false)
	if h.client.count(EventStopAll) != 0 || !h.sess.AssistantSpeaking() {
		t.Fatalf("fillers must not interrupt")
	}
}

func TestStop_HaltsGeneration(t *testing.T) {
	gen := &fakeGen{tokens: []string{"a", "b", "c", "d", "e"}, delay: 50 * time.Millisecond}
	h := newHarness(t, testConfig(), gen, nil, nil)

	h.sess.OnText("count letters")
	waitFor(t, time.Second, "first token", func() bool { return h.client.count(EventLLMStream) >= 1 })
	h.ctrl.Stop(h.sess.ID())

	if h.client.count(EventStopAll) != 1 || h.client.count(EventLLMDone) != 1 {
		t.Fatalf("expected stop_all and llm_done after stop")
	}
	tokens := h.client.count(EventLLMStream)
	time.Sleep(150 * time.Millisecond)
	if h.client.count(EventLLMStream) != tokens {
		t.Fatalf("tokens kept streaming after stop")
	}
	if len(h.client.audioTexts()) != 0 || h.client.count(EventLLMSentence) != 0 {
		t.Fatalf("a hard stop must not speak the remainder")
	}
}

func TestGenerationError_SurfacedInline(t *testing.T) {
	gen := &fakeGen{tokens: []string{"Partial thought"}, err: errors.New("upstream 500")}
	h := newHarness(t, testConfig(), gen, nil, nil)

	h.sess.OnText("design a boss")
	waitFor(t, 2*time.Second, "llm_done", func() bool { return h.client.count(EventLLMDone) == 1 })

	var errTok string
	for _, ev := range h.client.events(EventLLMStream) {
		if strings.HasPrefix(ev.Token, "[LLM ERROR]") {
			errTok = ev.Token
		}
	}
	if !strings.Contains(errTok, "upstream 500") {
		t.Fatalf("error token missing: %q", errTok)
	}
	waitFor(t, time.Second, "remainder spoken", func() bool {
		return reflect.DeepEqual(h.client.audioTexts(), []string{"Partial thought"})
	})
	if h.sess.GenerationBusy() {
		t.Fatalf("busy flag should clear after an error")
	}
}

func TestWizard_EndToEnd(t *testing.T) {
	synth := &fakeSynth{size: func(text string) int {
		if strings.HasPrefix(text, "Q") {
			return 32000 // questions play for a second
		}
		return 1600
	}}
	h := newHarness(t, testConfig(), nil, synth, nil)

	h.sess.OnRecognition("activate gdd wizard", true)
	waitFor(t, 2*time.Second, "first question", func() bool { return h.client.count(EventWizardQuestion) == 1 })
	if h.client.count(EventWizardNotice) != 1 || h.client.count(EventGDDSessionID) != 1 {
		t.Fatalf("expected wizard_notice and gdd_session_id")
	}
	q := h.client.events(EventWizardQuestion)[0]
	if q.Question != "Q1?" || q.Index == nil || *q.Index != 0 || q.Total != 3 {
		t.Fatalf("first question event = %+v", q)
	}
	if h.sess.Mode() != ModeWizard {
		t.Fatalf("mode = %s", h.sess.Mode())
	}
	waitFor(t, 2*time.Second, "question speech", func() bool {
		texts := h.client.audioTexts()
		return len(texts) > 0 && texts[len(texts)-1] == "Q1?"
	})

	h.sess.OnRecognition("go next", true)
	waitFor(t, 2*time.Second, "second question speech", func() bool {
		texts := h.client.audioTexts()
		return len(texts) > 0 && texts[len(texts)-1] == "Q2?"
	})
	stopAt := h.client.indexOf(EventStopAll)
	if stopAt < 0 {
		t.Fatalf("advancing over speech should stop client playback")
	}
	for _, r := range h.client.snapshot()[stopAt:] {
		if r.isAudio && audioLabel(r.audio) == "Q1?" {
			t.Fatalf("question 1 audio sent after it was cancelled")
		}
	}

	h.sess.OnRecognition("finish gdd", true)
	waitFor(t, 2*time.Second, "gdd_complete", func() bool { return h.client.count(EventGDDComplete) == 1 })
	done := h.client.events(EventGDDComplete)[0]
	if done.Markdown != "# Game Design Document" || done.SessionID != "doc-1" {
		t.Fatalf("gdd_complete = %+v", done)
	}
	if h.sess.Wizard().Active() || h.sess.Mode() != ModeIdle {
		t.Fatalf("wizard should be deactivated after finish")
	}
	waitFor(t, 2*time.Second, "ready notice", func() bool {
		texts := h.client.audioTexts()
		return len(texts) > 0 && texts[len(texts)-1] == noticeReady
	})
}

func TestWizard_AnswerThenCritique(t *testing.T) {
	cfg := testConfig()
	cfg.CritiqueGrace = 30 * time.Millisecond
	gen := &fakeGen{tokens: []string{"Strong hook."}}
	h := newHarness(t, cfg, gen, nil, nil)

	h.sess.OnText("activate gdd")
	waitFor(t, 2*time.Second, "question", func() bool { return h.client.count(EventWizardQuestion) == 1 })
	h.sess.OnText("A cozy farming game for commuters.")
	waitFor(t, 2*time.Second, "critique", func() bool { return h.client.count(EventLLMDone) == 1 })

	if ans := h.client.events(EventWizardAnswer); len(ans) != 1 || ans[0].Text != "A cozy farming game for commuters." {
		t.Fatalf("wizard_answer = %+v", ans)
	}
	prompts := gen.promptList()
	if len(prompts) != 1 || !strings.Contains(prompts[0], "QUESTION:\nQ1?") || !strings.Contains(prompts[0], "commuters") {
		t.Fatalf("critique prompt = %q", prompts)
	}
	if got := h.docs.recorded(); len(got) != 1 || got[0] != "A cozy farming game for commuters." {
		t.Fatalf("answer not persisted: %v", got)
	}
}

func TestWizard_IncompleteAnswerGetsNudge(t *testing.T) {
	cfg := testConfig()
	cfg.CritiqueGrace = 30 * time.Millisecond
	gen := &fakeGen{tokens: []string{"x."}}
	h := newHarness(t, cfg, gen, nil, nil)

	h.sess.OnText("activate gdd")
	waitFor(t, 2*time.Second, "question", func() bool { return h.client.count(EventWizardQuestion) == 1 })
	h.sess.OnText("maybe a platformer and")
	waitFor(t, 2*time.Second, "nudge", func() bool { return h.client.count(EventWizardNotice) == 2 })
	if got := h.client.events(EventWizardNotice)[1].Text; got != nudges[0] {
		t.Fatalf("nudge = %q", got)
	}
	if len(gen.promptList()) != 0 {
		t.Fatalf("incomplete answers must not be critiqued")
	}
}

func TestWizard_NewInputCancelsPendingCritique(t *testing.T) {
	cfg := testConfig()
	cfg.CritiqueGrace = 150 * time.Millisecond
	gen := &fakeGen{tokens: []string{"x."}}
	h := newHarness(t, cfg, gen, nil, nil)

	h.sess.OnText("activate gdd")
	waitFor(t, 2*time.Second, "question", func() bool { return h.client.count(EventWizardQuestion) == 1 })
	h.sess.OnText("A cozy farming game for commuters.")
	time.Sleep(20 * time.Millisecond)
	h.sess.OnRecognition("next", true)
	waitFor(t, 2*time.Second, "second question", func() bool { return h.client.count(EventWizardQuestion) == 2 })
	time.Sleep(250 * time.Millisecond)
	if len(gen.promptList()) != 0 {
		t.Fatalf("critique should have been cancelled by new input")
	}
}

func TestWizard_NoiseIsDropped(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil, nil)
	h.sess.OnText("activate gdd")
	waitFor(t, 2*time.Second, "question", func() bool { return h.client.count(EventWizardQuestion) == 1 })
	h.sess.OnText("um")
	time.Sleep(50 * time.Millisecond)
	if h.client.count(EventWizardAnswer) != 0 || h.client.count(EventFinal) != 1 {
		t.Fatalf("noise should be discarded silently")
	}
}

func TestWizard_FinishFailureNotifies(t *testing.T) {
	docs := newFakeDocs("Q1?")
	docs.finishErr = errors.New("timeout")
	h := newHarness(t, testConfig(), nil, nil, docs)

	h.sess.OnText("activate gdd")
	waitFor(t, 2*time.Second, "question", func() bool { return h.client.count(EventWizardQuestion) == 1 })
	h.sess.OnText("finish gdd")
	waitFor(t, 2*time.Second, "gdd_error", func() bool { return h.client.count(EventGDDError) == 1 })
	if h.sess.Wizard().Active() {
		t.Fatalf("wizard must deactivate when finish fails")
	}
	waitFor(t, 2*time.Second, "failure notice", func() bool {
		texts := h.client.audioTexts()
		return len(texts) > 0 && texts[len(texts)-1] == noticeFinishFailed
	})
}

func TestExport_WithoutDocument(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil, nil)
	h.sess.OnText("export gdd")
	waitFor(t, time.Second, "export event", func() bool { return h.client.count(EventGDDExportReady) == 1 })
	if ev := h.client.events(EventGDDExportReady)[0]; ev.Error != "no_session" {
		t.Fatalf("export event = %+v", ev)
	}
}

func TestExport_AfterFinish(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil, nil)
	h.sess.OnText("activate gdd")
	waitFor(t, 2*time.Second, "question", func() bool { return h.client.count(EventWizardQuestion) == 1 })
	h.sess.OnText("finish gdd")
	waitFor(t, 2*time.Second, "gdd_complete", func() bool { return h.client.count(EventGDDComplete) == 1 })
	h.sess.OnText("export")
	waitFor(t, time.Second, "export event", func() bool { return h.client.count(EventGDDExportReady) == 1 })
	if ev := h.client.events(EventGDDExportReady)[0]; ev.URL == "" || ev.SessionID != "doc-1" {
		t.Fatalf("export event = %+v", ev)
	}
}
