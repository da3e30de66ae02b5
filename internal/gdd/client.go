package gdd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPPipeline talks to the document REST API of another instance.
type HTTPPipeline struct {
	HTTPClient *http.Client
	BaseURL    string
	AuthToken  string
}

func NewHTTPPipeline(baseURL, authToken string) *HTTPPipeline {
	return &HTTPPipeline{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AuthToken:  authToken,
	}
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (p *HTTPPipeline) StartDocumentSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := p.post(ctx, "/gdd/start", nil, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("gdd http: empty session id")
	}
	return out.SessionID, nil
}

func (p *HTTPPipeline) RecordAnswer(ctx context.Context, sessionID, text string) error {
	return p.post(ctx, "/gdd/"+url.PathEscape(sessionID)+"/answer", map[string]string{"text": text}, nil)
}

func (p *HTTPPipeline) NextQuestion(ctx context.Context, sessionID string) (Step, error) {
	var step Step
	err := p.post(ctx, "/gdd/"+url.PathEscape(sessionID)+"/next", nil, &step)
	return step, err
}

func (p *HTTPPipeline) FinishDocument(ctx context.Context, sessionID string) (string, error) {
	var out struct {
		Markdown string `json:"markdown"`
	}
	if err := p.post(ctx, "/gdd/"+url.PathEscape(sessionID)+"/finish", nil, &out); err != nil {
		return "", err
	}
	return out.Markdown, nil
}

func (p *HTTPPipeline) ExportDocument(ctx context.Context, sessionID string) (Artifact, error) {
	var art Artifact
	err := p.post(ctx, "/gdd/"+url.PathEscape(sessionID)+"/export", nil, &art)
	return art, err
}

func (p *HTTPPipeline) post(ctx context.Context, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.AuthToken != "" {
		req.Header.Set("X-Auth-Token", p.AuthToken)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gdd http: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		var ae apiError
		if json.Unmarshal(b, &ae) == nil {
			if known := errorFromCode(ae.Code); known != nil {
				return known
			}
		}
		return fmt.Errorf("gdd http: status=%d body=%s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gdd http: decode: %w", err)
	}
	return nil
}
