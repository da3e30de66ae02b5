package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chadiek/gdd-voice/internal/gdd"
)

type fakeGenerator struct {
	concept string
	err     error
}

func (f *fakeGenerator) Run(_ context.Context, concept string, _ map[string]string) (*gdd.Result, error) {
	f.concept = concept
	if f.err != nil {
		return nil, f.err
	}
	return &gdd.Result{Markdown: "# Doc\n\nbody"}, nil
}

type fakeArtifacts struct {
	key  string
	body string
}

func (f *fakeArtifacts) Upload(_ context.Context, key, _ string, body []byte) (string, error) {
	f.key, f.body = key, string(body)
	return "https://example.test/" + key, nil
}

func newService(t *testing.T, gen DocumentGenerator, art ArtifactStore) *DocumentService {
	t.Helper()
	svc, err := NewDocumentService(gdd.NewMemoryStore(), gen, art, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestDocumentService_WalkQuestionnaire(t *testing.T) {
	svc := newService(t, &fakeGenerator{}, &fakeArtifacts{})
	ctx := context.Background()
	id, err := svc.StartDocumentSession(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.RecordAnswer(ctx, id, "too early"); !errors.Is(err, gdd.ErrNoActiveQuestion) {
		t.Fatalf("expected ErrNoActiveQuestion, got %v", err)
	}
	total := len(svc.Questions())
	for i := 0; i < total; i++ {
		step, err := svc.NextQuestion(ctx, id)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if step.Done || step.Index != i || step.Total != total || step.Question == "" {
			t.Fatalf("unexpected step %d: %+v", i, step)
		}
	}
	for i := 0; i < 3; i++ {
		step, err := svc.NextQuestion(ctx, id)
		if err != nil || !step.Done {
			t.Fatalf("expected idempotent done, got %+v err=%v", step, err)
		}
	}
	if err := svc.RecordAnswer(ctx, id, "after the end"); !errors.Is(err, gdd.ErrNoActiveQuestion) {
		t.Fatalf("expected ErrNoActiveQuestion after done, got %v", err)
	}
}

func TestDocumentService_FinishAndExport(t *testing.T) {
	gen := &fakeGenerator{}
	art := &fakeArtifacts{}
	svc := newService(t, gen, art)
	ctx := context.Background()
	id, _ := svc.StartDocumentSession(ctx)
	if _, err := svc.NextQuestion(ctx, id); err != nil {
		t.Fatalf("next: %v", err)
	}
	_ = svc.RecordAnswer(ctx, id, "a cozy")
	_ = svc.RecordAnswer(ctx, id, "farming game")

	if _, err := svc.ExportDocument(ctx, id); !errors.Is(err, gdd.ErrNotFinished) {
		t.Fatalf("expected ErrNotFinished, got %v", err)
	}
	md, err := svc.FinishDocument(ctx, id)
	if err != nil || !strings.HasPrefix(md, "# Doc") {
		t.Fatalf("finish: %q err=%v", md, err)
	}
	if !strings.Contains(gen.concept, "a cozy farming game") || !strings.Contains(gen.concept, "(No answer provided)") {
		t.Fatalf("unexpected concept: %q", gen.concept)
	}
	a, err := svc.ExportDocument(ctx, id)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if a.SessionID != id || a.Key != "gdd/"+id+".md" || !strings.HasSuffix(a.URL, a.Key) {
		t.Fatalf("unexpected artifact %+v", a)
	}
	if !strings.Contains(art.body, "body") {
		t.Fatalf("export body missing document: %q", art.body)
	}
}

func TestDocumentService_FinishFailureLeavesSessionUnfinished(t *testing.T) {
	svc := newService(t, &fakeGenerator{err: errors.New("llm down")}, &fakeArtifacts{})
	ctx := context.Background()
	id, _ := svc.StartDocumentSession(ctx)
	if _, err := svc.FinishDocument(ctx, id); err == nil {
		t.Fatalf("expected error")
	}
	ds, err := svc.Get(ctx, id)
	if err != nil || ds.Finished() {
		t.Fatalf("session must stay unfinished: %+v err=%v", ds, err)
	}
}

func TestDocumentService_UnknownSession(t *testing.T) {
	svc := newService(t, &fakeGenerator{}, &fakeArtifacts{})
	if _, err := svc.NextQuestion(context.Background(), "nope"); !errors.Is(err, gdd.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
