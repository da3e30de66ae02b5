package gdd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Completer runs one chat completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Result is the output of one pipeline run.
type Result struct {
	Outputs  map[string]map[string]any
	Markdown string
}

// Orchestrator runs the persona chain.
type Orchestrator struct {
	llm      Completer
	personas []*Persona
	log      *zap.Logger
}

// NewOrchestrator builds an orchestrator over the embedded persona catalog.
func NewOrchestrator(llm Completer, logger *zap.Logger) (*Orchestrator, error) {
	ps, err := Personas()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{llm: llm, personas: ps, log: logger}, nil
}

// Run executes every persona in order. Each persona receives the concept, the
// raw answers and the outputs of the personas before it. Optional personas may
// fail; any other failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context, concept string, answers map[string]string) (*Result, error) {
	res := &Result{Outputs: make(map[string]map[string]any, len(o.personas))}
	prior := make(map[string]any, len(o.personas))

	for _, p := range o.personas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := o.runPersona(ctx, p, concept, answers, prior)
		if err != nil {
			if p.Optional {
				o.log.Warn("optional persona failed", zap.String("persona", p.Key), zap.Error(err))
				res.Outputs[p.Key] = map[string]any{"warning": p.Key + " failed", "error": err.Error()}
				continue
			}
			return nil, fmt.Errorf("gdd: persona %s: %w", p.Key, err)
		}
		res.Outputs[p.Key] = out
		prior[p.Key] = out
		if p.Markdown {
			if md, _ := out["markdown"].(string); md != "" {
				res.Markdown = md
			}
		}
	}
	if res.Markdown == "" {
		return nil, fmt.Errorf("gdd: pipeline produced no markdown")
	}
	if notes := reviewNotes(res.Outputs["reviewer"]); notes != "" {
		res.Markdown = strings.TrimRight(res.Markdown, "\n") + "\n\n" + notes
	}
	return res, nil
}

func (o *Orchestrator) runPersona(ctx context.Context, p *Persona, concept string, answers map[string]string, prior map[string]any) (map[string]any, error) {
	payload, err := json.MarshalIndent(map[string]any{
		"concept": concept,
		"answers": answers,
		"extra":   prior,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	user := "Context:\n" + string(payload) + "\n\n" + p.Instruction

	o.log.Info("running persona", zap.String("persona", p.Key))
	raw, err := o.llm.Complete(ctx, p.SystemPrompt(), user)
	if err != nil {
		return nil, err
	}
	return decodeOutput(p, raw)
}

func reviewNotes(out map[string]any) string {
	if out == nil {
		return ""
	}
	var b strings.Builder
	for _, sec := range []struct{ key, title string }{
		{"gaps", "Gaps"},
		{"contradictions", "Contradictions"},
		{"next_steps", "Next Steps"},
	} {
		items, _ := out[sec.key].([]any)
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n", sec.title)
		for _, it := range items {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(s))
			}
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return ""
	}
	return "## Reviewer Notes\n\n" + strings.TrimRight(b.String(), "\n") + "\n"
}
