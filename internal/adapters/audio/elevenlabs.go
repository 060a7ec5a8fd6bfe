package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

const (
	// DefaultVoiceID голос по умолчанию.
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	// DefaultModel многоязычная модель синтеза.
	DefaultModel = "eleven_multilingual_v2"
	maxTextRunes = 2000
)

// ElevenLabs озвучивает текст через text-to-speech API.
type ElevenLabs struct {
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
}

var _ domain.Synthesizer = (*ElevenLabs)(nil)

// NewElevenLabs создаёт клиента.
func NewElevenLabs(apiKey, baseURL string, timeout time.Duration) *ElevenLabs {
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io/v1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ElevenLabs{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   DefaultModel,
	}
}

// Configured сообщает, задан ли ключ API.
func (e *ElevenLabs) Configured() bool {
	return e != nil && e.apiKey != ""
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize возвращает MP3. Текст обрезается до 2000 символов.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if !e.Configured() {
		return nil, fmt.Errorf("elevenlabs: %w", domain.ErrNotConfigured)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("elevenlabs: empty text")
	}
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	if runes := []rune(text); len(runes) > maxTextRunes {
		text = string(runes[:maxTextRunes])
	}

	body, err := json.Marshal(synthesisRequest{
		Text:          text,
		ModelID:       e.model,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/text-to-speech/"+voiceID, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	start := time.Now()
	resp, err := e.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("elevenlabs", "text_to_speech", voiceID, start, err)
		return nil, fmt.Errorf("elevenlabs: %w: %w", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode >= 400 {
		err = fmt.Errorf("elevenlabs: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	metrics.ObserveNetworkRequest("elevenlabs", "text_to_speech", voiceID, start, err)
	if err != nil {
		return nil, err
	}
	return data, nil
}
