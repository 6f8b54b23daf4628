package narrator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuentos/internal/ai"
	"cuentos/internal/story"
)

type fakeText struct {
	mu          sync.Mutex
	responses   []string
	errs        []error
	calls       int
	prompts     []string
	models      []string
	temperature []float64
	block       chan struct{}
}

func (f *fakeText) GenerateText(ctx context.Context, model, prompt string, temperature float64) (string, ai.TokenUsage, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.models = append(f.models, model)
	f.temperature = append(f.temperature, temperature)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ai.TokenUsage{}, ctx.Err()
		}
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", ai.TokenUsage{}, f.errs[i]
	}
	text := "Había una vez una niña muy valiente."
	if i < len(f.responses) {
		text = f.responses[i]
	}
	return text, ai.TokenUsage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}, nil
}

type fakeSpeech struct {
	mu       sync.Mutex
	chunks   [][]byte
	errs     []error
	calls    int
	requests []ai.SpeechRequest
}

func (f *fakeSpeech) Stream(ctx context.Context, req *ai.SpeechRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.requests = append(f.requests, *req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	readers := make([]io.Reader, 0, len(f.chunks))
	for _, c := range f.chunks {
		readers = append(readers, bytes.NewReader(c))
	}
	return io.NopCloser(io.MultiReader(readers...)), nil
}

func testSettings() Settings {
	return Settings{
		TextModel:      "gemini-3-flash",
		Temperature:    1.0,
		VoiceID:        "pqHfZKP75CvOlQylNhV4",
		TTSModel:       "eleven_turbo_v2_5",
		VoiceSettings:  ai.NarratorVoiceSettings(),
		TextTimeout:    time.Second,
		SpeechTimeout:  time.Second,
		QueueTimeout:   50 * time.Millisecond,
		MaxConcurrent:  2,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	finished []string
	retries  map[string]int
}

func (r *recordingObserver) StoryStarted() {}
func (r *recordingObserver) StoryFinished(status string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, status)
}
func (r *recordingObserver) ProviderCall(string, string, time.Duration) {}
func (r *recordingObserver) ProviderRetry(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retries == nil {
		r.retries = map[string]int{}
	}
	r.retries[provider]++
}

var ana = story.Request{ChildName: "Ana", Age: 5, Theme: "Espacio"}

func TestNarrateHappyPath(t *testing.T) {
	text := &fakeText{}
	speech := &fakeSpeech{chunks: [][]byte{[]byte("ID3"), []byte("frame-1"), []byte("frame-2")}}
	obs := &recordingObserver{}
	n, err := New(text, speech, testSettings(), WithObserver(obs))
	require.NoError(t, err)

	res, err := n.Narrate(context.Background(), ana)
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3frame-1frame-2"), res.Audio)
	assert.Equal(t, "Había una vez una niña muy valiente.", res.Story)
	assert.Equal(t, int64(30), res.Usage.TotalTokens)
	assert.Equal(t, 1, text.calls)
	assert.Equal(t, 1, speech.calls)
	assert.Equal(t, []string{"ok"}, obs.finished)

	prompt := text.prompts[0]
	assert.Contains(t, prompt, "Ana")
	assert.Contains(t, prompt, "5")
	assert.Contains(t, prompt, "Espacio")

	sr := speech.requests[0]
	assert.Equal(t, res.Story, sr.Text)
	assert.Equal(t, "pqHfZKP75CvOlQylNhV4", sr.VoiceID)
	assert.Equal(t, "eleven_turbo_v2_5", sr.ModelID)
}

func TestFixedSettingsIgnoreInput(t *testing.T) {
	text := &fakeText{}
	speech := &fakeSpeech{chunks: [][]byte{[]byte("mp3")}}
	n, err := New(text, speech, testSettings())
	require.NoError(t, err)

	inputs := []story.Request{
		ana,
		{ChildName: "Leo", Age: 12, Theme: "Dinosaurios"},
		{ChildName: "Sofía", Age: 1, Theme: "Fantasía"},
	}
	for _, in := range inputs {
		_, err := n.Narrate(context.Background(), in)
		require.NoError(t, err)
	}
	for i := range inputs {
		assert.Equal(t, 1.0, text.temperature[i])
		assert.Equal(t, "gemini-3-flash", text.models[i])
		require.NotNil(t, speech.requests[i].VoiceSettings)
		assert.Equal(t, ai.NarratorVoiceSettings(), *speech.requests[i].VoiceSettings)
	}
}

func TestTextFailureSkipsSpeech(t *testing.T) {
	authErr := errors.New("401 Unauthorized: API key not valid")
	text := &fakeText{errs: []error{authErr}}
	speech := &fakeSpeech{chunks: [][]byte{[]byte("mp3")}}
	n, err := New(text, speech, testSettings())
	require.NoError(t, err)

	_, err = n.Narrate(context.Background(), ana)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTextProvider)
	assert.Equal(t, "text_provider", Kind(err))
	assert.Equal(t, 1, text.calls, "permanent errors must not be retried")
	assert.Equal(t, 0, speech.calls)
}

func TestTransientTextErrorIsRetried(t *testing.T) {
	transient := &ai.ElevenLabsAPIError{StatusCode: http.StatusServiceUnavailable}
	text := &fakeText{errs: []error{transient, transient}}
	speech := &fakeSpeech{chunks: [][]byte{[]byte("mp3")}}
	obs := &recordingObserver{}
	n, err := New(text, speech, testSettings(), WithObserver(obs))
	require.NoError(t, err)

	res, err := n.Narrate(context.Background(), ana)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Audio)
	assert.Equal(t, 3, text.calls)
	assert.Equal(t, 2, obs.retries[providerText])
}

func TestRetriesAreBounded(t *testing.T) {
	transient := &ai.ElevenLabsAPIError{StatusCode: http.StatusBadGateway}
	text := &fakeText{}
	speech := &fakeSpeech{errs: []error{transient, transient, transient, transient}}
	n, err := New(text, speech, testSettings())
	require.NoError(t, err)

	_, err = n.Narrate(context.Background(), ana)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpeechProvider)
	assert.Equal(t, 3, speech.calls)
}

func TestEmptyStoryNeverReachesSpeech(t *testing.T) {
	text := &fakeText{responses: []string{"  \n "}}
	speech := &fakeSpeech{chunks: [][]byte{[]byte("mp3")}}
	n, err := New(text, speech, testSettings())
	require.NoError(t, err)

	_, err = n.Narrate(context.Background(), ana)
	assert.ErrorIs(t, err, ErrEmptyStory)
	assert.Equal(t, 0, speech.calls)
}

func TestEmptyAudioIsAnError(t *testing.T) {
	n, err := New(&fakeText{}, &fakeSpeech{}, testSettings())
	require.NoError(t, err)

	res, err := n.Narrate(context.Background(), ana)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestInvalidRequestCallsNoProvider(t *testing.T) {
	text := &fakeText{}
	speech := &fakeSpeech{chunks: [][]byte{[]byte("mp3")}}
	n, err := New(text, speech, testSettings())
	require.NoError(t, err)

	for _, req := range []story.Request{
		{ChildName: "", Age: 5, Theme: "Espacio"},
		{ChildName: "Ana", Age: 0, Theme: "Espacio"},
		{ChildName: "Ana", Age: 15, Theme: "Espacio"},
		{ChildName: "Ana", Age: 5, Theme: "Piratas"},
	} {
		_, err := n.Narrate(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
		assert.Equal(t, "invalid_request", Kind(err))
	}
	assert.Equal(t, 0, text.calls)
	assert.Equal(t, 0, speech.calls)
}

func TestTextTimeoutIsDistinct(t *testing.T) {
	text := &fakeText{block: make(chan struct{})}
	speech := &fakeSpeech{chunks: [][]byte{[]byte("mp3")}}
	settings := testSettings()
	settings.TextTimeout = 20 * time.Millisecond
	n, err := New(text, speech, settings)
	require.NoError(t, err)

	_, err = n.Narrate(context.Background(), ana)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "timeout", Kind(err))
	assert.Equal(t, 1, text.calls, "timeouts are not retried")
	assert.Equal(t, 0, speech.calls)
}

func TestLimiterReportsBusy(t *testing.T) {
	release := make(chan struct{})
	text := &fakeText{block: release}
	speech := &fakeSpeech{chunks: [][]byte{[]byte("mp3")}}
	settings := testSettings()
	settings.MaxConcurrent = 1
	settings.TextTimeout = 0
	settings.QueueTimeout = 20 * time.Millisecond
	n, err := New(text, speech, settings)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := n.Narrate(context.Background(), ana)
		done <- err
	}()
	require.Eventually(t, func() bool {
		text.mu.Lock()
		defer text.mu.Unlock()
		return text.calls == 1
	}, time.Second, time.Millisecond)

	_, err = n.Narrate(context.Background(), ana)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, "busy", Kind(err))

	close(release)
	require.NoError(t, <-done)
}

func TestCollectAudioMatchesSingleRead(t *testing.T) {
	payload := make([]byte, 100_000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	got, chunks, err := collectAudio(iotest.OneByteReader(bytes.NewReader(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, len(payload), chunks)

	got, _, err = collectAudio(iotest.HalfReader(bytes.NewReader(payload)))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
}

func TestCollectAudioPropagatesReadError(t *testing.T) {
	boom := errors.New("connection reset")
	_, _, err := collectAudio(iotest.ErrReader(boom))
	assert.ErrorIs(t, err, boom)
}

func TestNewRequiresClients(t *testing.T) {
	_, err := New(nil, &fakeSpeech{}, testSettings())
	assert.Error(t, err)
	_, err = New(&fakeText{}, nil, testSettings())
	assert.Error(t, err)
}
