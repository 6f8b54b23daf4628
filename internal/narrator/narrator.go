// Package narrator turns a story request into narrated audio: it prompts the
// text model, hands the story to the speech provider and collects the audio.
package narrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	retry "github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"cuentos/internal/ai"
	"cuentos/internal/story"
)

const (
	providerText   = "text"
	providerSpeech = "speech"

	maxRetryDelay = 5 * time.Second
	readChunkSize = 32 * 1024
)

var (
	ErrInvalidRequest = story.ErrInvalidRequest
	ErrBusy           = errors.New("narrator is at capacity")
	ErrTimeout        = errors.New("provider call timed out")
	ErrEmptyStory     = errors.New("text model returned an empty story")
	ErrEmptyAudio     = errors.New("speech provider returned no audio")
	ErrTextProvider   = errors.New("text generation failed")
	ErrSpeechProvider = errors.New("speech synthesis failed")
)

// Settings are fixed per process; nothing in a request can change them.
type Settings struct {
	TextModel     string
	Temperature   float64
	VoiceID       string
	TTSModel      string
	VoiceSettings ai.VoiceSettings
	OutputFormat  string

	TextTimeout    time.Duration
	SpeechTimeout  time.Duration
	QueueTimeout   time.Duration
	MaxConcurrent  int
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Observer receives instrumentation events. *metrics.Metrics implements it.
type Observer interface {
	StoryStarted()
	StoryFinished(status string, audioBytes int)
	ProviderCall(provider, status string, elapsed time.Duration)
	ProviderRetry(provider string)
}

type nopObserver struct{}

func (nopObserver) StoryStarted()                              {}
func (nopObserver) StoryFinished(string, int)                  {}
func (nopObserver) ProviderCall(string, string, time.Duration) {}
func (nopObserver) ProviderRetry(string)                       {}

// Option configures a Narrator.
type Option func(*Narrator)

func WithObserver(o Observer) Option {
	return func(n *Narrator) {
		if o != nil {
			n.obs = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Narrator) {
		if l != nil {
			n.logger = l
		}
	}
}

// Narrator is safe for concurrent use; it holds no per-request state.
type Narrator struct {
	text     ai.TextClient
	speech   ai.SpeechClient
	settings Settings
	sem      *semaphore.Weighted
	obs      Observer
	logger   *slog.Logger
}

// Result is everything produced for one request. None of it is persisted.
type Result struct {
	Story  string
	Audio  []byte
	Words  int
	Chunks int
	Usage  ai.TokenUsage
}

func New(text ai.TextClient, speech ai.SpeechClient, settings Settings, opts ...Option) (*Narrator, error) {
	if text == nil {
		return nil, errors.New("text client is required")
	}
	if speech == nil {
		return nil, errors.New("speech client is required")
	}
	if settings.MaxConcurrent < 1 {
		settings.MaxConcurrent = 1
	}
	if settings.MaxRetries < 0 {
		settings.MaxRetries = 0
	}
	if settings.RetryBaseDelay <= 0 {
		settings.RetryBaseDelay = time.Millisecond
	}
	n := &Narrator{
		text:     text,
		speech:   speech,
		settings: settings,
		sem:      semaphore.NewWeighted(int64(settings.MaxConcurrent)),
		obs:      nopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Narrate runs the two provider calls in order and returns the narration.
// If text generation fails the speech provider is never called.
func (n *Narrator) Narrate(ctx context.Context, req story.Request) (*Result, error) {
	n.obs.StoryStarted()
	res, err := n.narrate(ctx, req)
	if err != nil {
		n.obs.StoryFinished(Kind(err), 0)
		return nil, err
	}
	n.obs.StoryFinished("ok", len(res.Audio))
	return res, nil
}

func (n *Narrator) narrate(ctx context.Context, req story.Request) (*Result, error) {
	logger := loggerFrom(ctx, n.logger)
	req = req.Normalize()
	prompt, err := story.BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	release, err := n.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	logger.Info("generating story", "theme", req.Theme, "age", req.Age, "model", n.settings.TextModel)
	var (
		text  string
		usage ai.TokenUsage
	)
	err = n.call(ctx, providerText, n.settings.TextTimeout, func(ctx context.Context) error {
		out, u, err := n.text.GenerateText(ctx, n.settings.TextModel, prompt, n.settings.Temperature)
		usage = usage.Add(u)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTextProvider, err)
	}
	text = story.CleanStory(text)
	if text == "" {
		return nil, ErrEmptyStory
	}
	words := story.WordCount(text)
	logger.Debug("story text", "story", text)
	logger.Info("story generated", "words", words, "totalTokens", usage.TotalTokens, "inputTokens", usage.InputTokens, "outputTokens", usage.OutputTokens)

	voice := n.settings.VoiceSettings
	speechReq := &ai.SpeechRequest{
		VoiceID:       n.settings.VoiceID,
		Text:          text,
		ModelID:       n.settings.TTSModel,
		VoiceSettings: &voice,
		OutputFormat:  n.settings.OutputFormat,
	}
	var (
		audio  []byte
		chunks int
	)
	err = n.call(ctx, providerSpeech, n.settings.SpeechTimeout, func(ctx context.Context) error {
		rc, err := n.speech.Stream(ctx, speechReq)
		if err != nil {
			return err
		}
		defer rc.Close()
		buf, count, err := collectAudio(rc)
		if err != nil {
			return err
		}
		audio, chunks = buf, count
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpeechProvider, err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	logger.Info("narration synthesized", "voice", n.settings.VoiceID, "ttsModel", n.settings.TTSModel, "bytes", len(audio), "chunks", chunks)

	return &Result{
		Story:  text,
		Audio:  audio,
		Words:  words,
		Chunks: chunks,
		Usage:  usage,
	}, nil
}

func (n *Narrator) acquire(ctx context.Context) (func(), error) {
	waitCtx := ctx
	if n.settings.QueueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, n.settings.QueueTimeout)
		defer cancel()
	}
	if err := n.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrBusy
	}
	return func() { n.sem.Release(1) }, nil
}

// call runs fn under a per-attempt timeout and retries transient failures
// with capped exponential backoff.
func (n *Narrator) call(ctx context.Context, provider string, timeout time.Duration, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(n.settings.RetryBaseDelay)
	backoff = retry.WithCappedDuration(maxRetryDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(n.settings.MaxRetries), backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			n.obs.ProviderRetry(provider)
			loggerFrom(ctx, n.logger).Warn("retrying provider call", "provider", provider, "attempt", attempt+1)
		}
		attempt++

		callCtx := ctx
		cancel := func() {}
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		start := time.Now()
		err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
		}
		cancel()
		n.obs.ProviderCall(provider, callStatus(err), time.Since(start))

		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTimeout) && ai.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// collectAudio drains the stream chunk by chunk, keeping arrival order.
func collectAudio(r io.Reader) ([]byte, int, error) {
	var out bytes.Buffer
	chunk := make([]byte, readChunkSize)
	chunks := 0
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			out.Write(chunk[:n])
			chunks++
		}
		if errors.Is(err, io.EOF) {
			return out.Bytes(), chunks, nil
		}
		if err != nil {
			return nil, chunks, err
		}
	}
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case ai.StatusCode(err) != 0:
		return fmt.Sprintf("%d", ai.StatusCode(err))
	default:
		return "error"
	}
}

// Kind maps an error to a stable label for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrEmptyStory):
		return "empty_story"
	case errors.Is(err, ErrEmptyAudio):
		return "empty_audio"
	case errors.Is(err, ErrTextProvider):
		return "text_provider"
	case errors.Is(err, ErrSpeechProvider):
		return "speech_provider"
	default:
		return "error"
	}
}
