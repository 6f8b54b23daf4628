package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const elevenLabsDefaultBaseURL = "https://api.elevenlabs.io"
const elevenLabsDefaultOutputFormat = "mp3_44100_128"

// ElevenLabsOption configures the ElevenLabs client.
type ElevenLabsOption func(*ElevenLabsClient)

// WithElevenLabsBaseURL sets the ElevenLabs API base URL.
func WithElevenLabsBaseURL(baseURL string) ElevenLabsOption {
	return func(c *ElevenLabsClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithElevenLabsHTTPClient sets the HTTP client used for requests.
func WithElevenLabsHTTPClient(client *http.Client) ElevenLabsOption {
	return func(c *ElevenLabsClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// ElevenLabsClient provides a thin wrapper for the ElevenLabs streaming TTS endpoint.
// Deadlines come from the caller's context, so the default HTTP client has no timeout.
type ElevenLabsClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewElevenLabs constructs a new ElevenLabs client. The apiKey is required.
func NewElevenLabs(apiKey string, opts ...ElevenLabsOption) (*ElevenLabsClient, error) {
	if apiKey == "" {
		return nil, errors.New("ELEVENLABS_API_KEY is required")
	}
	client := &ElevenLabsClient{
		apiKey:     apiKey,
		baseURL:    elevenLabsDefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// VoiceSettings configures the narrator's delivery. Every field is always
// sent; a zero style is a deliberate setting, not an absent one.
type VoiceSettings struct {
	Stability       float64 `json:"stability" toml:"stability"`
	SimilarityBoost float64 `json:"similarity_boost" toml:"similarity_boost"`
	Style           float64 `json:"style" toml:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost" toml:"use_speaker_boost"`
}

// NarratorVoiceSettings returns the settings tuned for Spanish bedtime narration.
func NarratorVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.45,
		SimilarityBoost: 0.8,
		Style:           0.0,
		UseSpeakerBoost: true,
	}
}

// SpeechRequest is a request to generate speech.
type SpeechRequest struct {
	VoiceID       string
	Text          string
	ModelID       string
	VoiceSettings *VoiceSettings
	OutputFormat  string
}

// Stream posts the text to the streaming endpoint and returns the audio body.
func (c *ElevenLabsClient) Stream(ctx context.Context, req *SpeechRequest) (io.ReadCloser, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, errors.New("voice_id is required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("text is required")
	}

	outputFormat := req.OutputFormat
	if outputFormat == "" {
		outputFormat = elevenLabsDefaultOutputFormat
	}

	endpoint, err := url.Parse(strings.TrimRight(c.baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse elevenlabs base url: %w", err)
	}
	endpoint.Path = fmt.Sprintf("/v1/text-to-speech/%s/stream", url.PathEscape(req.VoiceID))
	query := endpoint.Query()
	query.Set("output_format", outputFormat)
	endpoint.RawQuery = query.Encode()

	body := struct {
		Text          string         `json:"text"`
		ModelID       string         `json:"model_id,omitempty"`
		VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
	}{
		Text:          req.Text,
		ModelID:       req.ModelID,
		VoiceSettings: req.VoiceSettings,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode elevenlabs request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("build elevenlabs request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", c.apiKey)
	httpReq.Header.Set("accept", "audio/mpeg")
	httpReq.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ElevenLabsAPIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(errBody)),
		}
	}
	return resp.Body, nil
}

// ElevenLabsAPIError captures error details from ElevenLabs responses.
type ElevenLabsAPIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ElevenLabsAPIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("elevenlabs api error: %s", e.Status)
	}
	return fmt.Sprintf("elevenlabs api error: %s: %s", e.Status, e.Body)
}
