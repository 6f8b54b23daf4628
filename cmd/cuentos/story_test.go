package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"cuentos/internal/ai"
	cfgpkg "cuentos/internal/config"
	"cuentos/internal/paths"
)

type fakeTextClient struct {
	lastModel       string
	lastPrompt      string
	lastTemperature float64
	calls           int
}

func (f *fakeTextClient) GenerateText(ctx context.Context, model, prompt string, temperature float64) (string, ai.TokenUsage, error) {
	f.lastModel = model
	f.lastPrompt = prompt
	f.lastTemperature = temperature
	f.calls++
	return "**Había una vez** un pequeño dinosaurio.", ai.TokenUsage{TotalTokens: 12}, nil
}

type fakeSpeechClient struct {
	last  ai.SpeechRequest
	calls int
}

func (f *fakeSpeechClient) Stream(ctx context.Context, req *ai.SpeechRequest) (io.ReadCloser, error) {
	f.last = *req
	f.calls++
	return io.NopCloser(bytes.NewReader([]byte("mp3bytes"))), nil
}

func installFakes(t *testing.T) (*fakeTextClient, *fakeSpeechClient) {
	t.Helper()
	origText, origSpeech := newTextClient, newSpeechClient
	t.Cleanup(func() {
		newTextClient = origText
		newSpeechClient = origSpeech
	})
	text := &fakeTextClient{}
	speech := &fakeSpeechClient{}
	newTextClient = func(cfg cfgpkg.Config) (ai.TextClient, error) { return text, nil }
	newSpeechClient = func(cfg cfgpkg.Config) (ai.SpeechClient, error) { return speech, nil }
	t.Setenv("GEMINI_API_KEY", "gm-test")
	t.Setenv("ELEVENLABS_API_KEY", "el-test")
	return text, speech
}

func TestStoryWritesMP3AndText(t *testing.T) {
	text, speech := installFakes(t)
	chdirTemp(t)

	code := run([]string{"story", "--name=Leo", "--age=6", "--theme=Dinosaurios", "--date=2025-09-30", "--out-text"})
	if code != 0 {
		t.Fatalf("story returned non-zero: %d", code)
	}
	if text.calls != 1 || speech.calls != 1 {
		t.Fatalf("expected one call per provider, got text=%d speech=%d", text.calls, speech.calls)
	}
	if text.lastTemperature != 1.0 {
		t.Fatalf("temperature changed: %v", text.lastTemperature)
	}
	if speech.last.VoiceID != "pqHfZKP75CvOlQylNhV4" || speech.last.ModelID != "eleven_turbo_v2_5" {
		t.Fatalf("unexpected voice/model: %+v", speech.last)
	}
	if speech.last.Text != "Había una vez un pequeño dinosaurio." {
		t.Fatalf("markdown not stripped before narration: %q", speech.last.Text)
	}

	date := time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC)
	builder := paths.New("")
	mp3, err := os.ReadFile(builder.StoryMP3(date, "Leo", "Dinosaurios"))
	if err != nil {
		t.Fatalf("missing mp3: %v", err)
	}
	if string(mp3) != "mp3bytes" {
		t.Fatalf("mp3 content mismatch: %q", mp3)
	}
	md, err := os.ReadFile(builder.StoryMarkdown(date, "Leo", "Dinosaurios"))
	if err != nil {
		t.Fatalf("missing story markdown: %v", err)
	}
	if !strings.Contains(string(md), "pequeño dinosaurio") {
		t.Fatalf("story text not written: %s", md)
	}
}

func TestStoryClampsAge(t *testing.T) {
	text, _ := installFakes(t)
	chdirTemp(t)

	if code := run([]string{"story", "--name=Ana", "--age=40", "--theme=Espacio"}); code != 0 {
		t.Fatalf("story returned non-zero: %d", code)
	}
	if !strings.Contains(text.lastPrompt, "12 años") {
		t.Fatalf("age not clamped in prompt: %s", text.lastPrompt)
	}
}

func TestStoryRefusesOverwrite(t *testing.T) {
	text, _ := installFakes(t)
	chdirTemp(t)

	args := []string{"story", "--name=Ana", "--age=5", "--theme=Selva", "--date=2025-09-30"}
	if code := run(args); code != 0 {
		t.Fatalf("first run returned non-zero: %d", code)
	}
	if code := run(args); code == 0 {
		t.Fatalf("expected overwrite guard to fail")
	}
	if text.calls != 1 {
		t.Fatalf("guard should stop before calling providers, got %d calls", text.calls)
	}
	if code := run(append(args, "--overwrite")); code != 0 {
		t.Fatalf("--overwrite run returned non-zero: %d", code)
	}
}

func TestStoryRejectsUnknownTheme(t *testing.T) {
	text, speech := installFakes(t)
	chdirTemp(t)

	if code := run([]string{"story", "--name=Ana", "--theme=Piratas"}); code == 0 {
		t.Fatalf("expected unknown theme to fail")
	}
	if text.calls != 0 || speech.calls != 0 {
		t.Fatalf("providers should not be called")
	}
}

func TestNarratorSettingsFromConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Style = 0.3
	s := narratorSettings(cfg)
	if s.VoiceSettings.Stability != 0.45 || s.VoiceSettings.Style != 0.3 || !s.VoiceSettings.UseSpeakerBoost {
		t.Fatalf("voice settings not mapped: %+v", s.VoiceSettings)
	}
	if s.TextTimeout != time.Minute || s.SpeechTimeout != 2*time.Minute || s.MaxConcurrent != 8 {
		t.Fatalf("limits not mapped: %+v", s)
	}
}
