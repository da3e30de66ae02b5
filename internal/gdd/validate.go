package gdd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// decodeOutput turns a raw persona reply into a JSON object that satisfies
// the persona schema. Code fences are stripped and malformed JSON is repaired
// before validation.
func decodeOutput(p *Persona, raw string) (map[string]any, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty output")
	}

	var out any
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		var se *json.SyntaxError
		var te *json.UnmarshalTypeError
		if !errors.As(err, &se) && !errors.As(err, &te) {
			return nil, fmt.Errorf("parse output: %w", err)
		}
		fixed, rerr := jsonrepair.JSONRepair(cleaned)
		if rerr != nil {
			return nil, fmt.Errorf("repair output: %w (original error: %v)", rerr, err)
		}
		if err := json.Unmarshal([]byte(fixed), &out); err != nil {
			return nil, fmt.Errorf("parse repaired output: %w", err)
		}
	}

	obj, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("output is %T, want object", out)
	}
	if p.resolved != nil {
		if err := p.resolved.Validate(obj); err != nil {
			return nil, fmt.Errorf("schema validation: %w", err)
		}
	}
	return obj, nil
}

// stripFences removes a surrounding ```json fence and any chatter around the
// outermost object.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			lang := strings.TrimSpace(s[:nl])
			if lang == "" || strings.EqualFold(lang, "json") {
				s = s[nl+1:]
			}
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		if i := strings.IndexByte(s, '{'); i >= 0 {
			s = s[i:]
		}
	}
	return s
}
