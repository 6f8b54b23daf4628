package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cuentos/internal/ai"
	cfgpkg "cuentos/internal/config"
	"cuentos/internal/narrator"
)

var newTextClient = func(cfg cfgpkg.Config) (ai.TextClient, error) {
	return ai.New(cfg.TextAPIKey, cfg.TextBaseURL)
}

var newSpeechClient = func(cfg cfgpkg.Config) (ai.SpeechClient, error) {
	return ai.NewElevenLabs(cfg.ElevenLabsAPIKey)
}

// set up slog logger according to level; defaults to info.
func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// Common flags for config/env/log-level across subcommands
type commonFlags struct {
	config   string
	envFile  string
	logLevel stringFlag
	provider stringFlag
	model    stringFlag
	voice    stringFlag
}

func addCommonFlags(fs *flag.FlagSet, cf *commonFlags) {
	fs.StringVar(&cf.config, "config", "cuentos.toml", "Path to config file (.toml or .json)")
	fs.StringVar(&cf.envFile, "env-file", ".env", "Path to a .env file with provider keys")
	fs.Var(&cf.logLevel, "log-level", "Log level: debug, info, warn, error")
	fs.Var(&cf.provider, "provider", "Text provider: gemini or openai")
	fs.Var(&cf.model, "model", "Text model")
	fs.Var(&cf.voice, "voice", "ElevenLabs voice id")
}

// loadConfig resolves defaults -> file -> env -> flags.
func loadConfig(cf *commonFlags, flagOv cfgpkg.Overrides) (cfgpkg.Config, error) {
	if err := cfgpkg.LoadDotEnv(cf.envFile); err != nil {
		return cfgpkg.Config{}, err
	}
	fileCfg, err := cfgpkg.LoadFile(cf.config)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	envOv, secrets := cfgpkg.FromEnv()
	if cf.logLevel.set {
		flagOv.LogLevel = &cf.logLevel.v
	}
	if cf.provider.set {
		flagOv.TextProvider = &cf.provider.v
	}
	if cf.model.set {
		flagOv.TextModel = &cf.model.v
	}
	if cf.voice.set {
		flagOv.Voice = &cf.voice.v
	}
	return cfgpkg.Merge(fileCfg, envOv, flagOv, secrets), nil
}

func narratorSettings(cfg cfgpkg.Config) narrator.Settings {
	return narrator.Settings{
		TextModel:   cfg.TextModel,
		Temperature: cfg.Temperature,
		VoiceID:     cfg.Voice,
		TTSModel:    cfg.TTSModel,
		VoiceSettings: ai.VoiceSettings{
			Stability:       cfg.Stability,
			SimilarityBoost: cfg.SimilarityBoost,
			Style:           cfg.Style,
			UseSpeakerBoost: cfg.SpeakerBoost,
		},
		OutputFormat:   cfg.OutputFormat,
		TextTimeout:    cfg.TextTimeout(),
		SpeechTimeout:  cfg.SpeechTimeout(),
		QueueTimeout:   cfg.QueueTimeout(),
		MaxConcurrent:  cfg.MaxConcurrent,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay(),
	}
}

func newNarrator(cfg cfgpkg.Config, opts ...narrator.Option) (*narrator.Narrator, error) {
	text, err := newTextClient(cfg)
	if err != nil {
		return nil, err
	}
	speech, err := newSpeechClient(cfg)
	if err != nil {
		return nil, err
	}
	return narrator.New(text, speech, narratorSettings(cfg), opts...)
}

func resolveDate(in string) (time.Time, error) {
	if in == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", in)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date: %w", err)
	}
	return t, nil
}

// stringFlag, boolFlag and intFlag record whether they were set so that
// only explicit flags override config and env.
type stringFlag struct {
	v   string
	set bool
}

func (f *stringFlag) String() string { return f.v }
func (f *stringFlag) Set(s string) error {
	f.v = s
	f.set = true
	return nil
}

type boolFlag struct {
	v   bool
	set bool
}

func (f *boolFlag) String() string   { return strconv.FormatBool(f.v) }
func (f *boolFlag) IsBoolFlag() bool { return true }
func (f *boolFlag) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	f.v = b
	f.set = true
	return nil
}

type intFlag struct {
	v   int
	set bool
}

func (f *intFlag) String() string { return strconv.Itoa(f.v) }
func (f *intFlag) Set(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	f.v = n
	f.set = true
	return nil
}
