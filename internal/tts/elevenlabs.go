package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const elevenLabsModel = "eleven_flash_v2_5"

// ElevenLabsClient synthesizes through the ElevenLabs HTTP streaming endpoint.
type ElevenLabsClient struct {
	APIKey     string
	VoiceID    string
	BaseURL    string
	HTTPClient *http.Client
}

func NewElevenLabsClient(apiKey, voiceID string) *ElevenLabsClient {
	return &ElevenLabsClient{
		APIKey:     apiKey,
		VoiceID:    voiceID,
		BaseURL:    "https://api.elevenlabs.io",
		HTTPClient: &http.Client{},
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

type elevenLabsRequest struct {
	Text     string        `json:"text"`
	ModelID  string        `json:"model_id"`
	Settings voiceSettings `json:"voice_settings"`
}

// StreamPCM streams pcm_16000 audio for text.
func (e *ElevenLabsClient) StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		if err := e.stream(ctx, text, pcmCh); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

func (e *ElevenLabsClient) endpoint() (string, error) {
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: base url: %w", err)
	}
	u.Path = "/v1/text-to-speech/" + url.PathEscape(e.VoiceID) + "/stream"
	u.RawQuery = url.Values{
		"output_format": {"pcm_" + strconv.Itoa(SampleRate)},
		// 0..4, higher trades quality for latency
		"optimize_streaming_latency": {"2"},
	}.Encode()
	return u.String(), nil
}

func (e *ElevenLabsClient) stream(ctx context.Context, text string, out chan<- []byte) error {
	if e.APIKey == "" || e.VoiceID == "" {
		return errors.New("elevenlabs: api key or voice id missing")
	}
	endpoint, err := e.endpoint()
	if err != nil {
		return err
	}
	body, err := json.Marshal(elevenLabsRequest{
		Text:     text,
		ModelID:  elevenLabsModel,
		Settings: voiceSettings{Stability: 0.4, SimilarityBoost: 0.7, SpeakerBoost: true},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/pcm")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("elevenlabs: status=%d body=%s", resp.StatusCode, msg)
	}
	return pumpPCM(ctx, resp.Body, out)
}

// pumpPCM copies r to out in fresh chunks until EOF.
func pumpPCM(ctx context.Context, r io.Reader, out chan<- []byte) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case out <- append([]byte(nil), buf[:n]...):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("elevenlabs: read: %w", err)
		}
	}
}
