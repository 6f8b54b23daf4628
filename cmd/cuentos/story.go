package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cfgpkg "cuentos/internal/config"
	"cuentos/internal/narrator"
	"cuentos/internal/paths"
	"cuentos/internal/story"
)

func themeList() []string { return story.Themes() }

// cuentos story
func cmdStory(args []string) error {
	var cf commonFlags
	var name, theme, date, outDir string
	var age int
	var outText bool
	var overwrite boolFlag

	fs := flag.NewFlagSet("story", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	addCommonFlags(fs, &cf)
	fs.StringVar(&name, "name", "", "Child's name")
	fs.IntVar(&age, "age", 5, "Child's age; clamped to 1-12")
	fs.StringVar(&theme, "theme", "Espacio", "Story theme; run \"cuentos themes\" for the list")
	fs.StringVar(&date, "date", "", "Date in YYYY-MM-DD (UTC) for the output folder; default: today")
	fs.StringVar(&outDir, "out-dir", "out", "Base output directory")
	fs.BoolVar(&outText, "out-text", false, "Also write the story text as Markdown")
	fs.Var(&overwrite, "overwrite", "Allow overwriting existing outputs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	var flagOv cfgpkg.Overrides
	if overwrite.set {
		flagOv.Overwrite = &overwrite.v
	}
	cfg, err := loadConfig(&cf, flagOv)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)
	day, err := resolveDate(date)
	if err != nil {
		return err
	}
	if err := cfgpkg.ValidateForStory(cfg); err != nil {
		return err
	}

	req := story.Request{ChildName: name, Age: story.ClampAge(age), Theme: theme}.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	builder := paths.New(outDir)
	mp3Path := builder.StoryMP3(day, req.ChildName, req.Theme)
	mdPath := ""
	if outText {
		mdPath = builder.StoryMarkdown(day, req.ChildName, req.Theme)
	}
	if err := paths.CheckOverwrite([]string{mp3Path, mdPath}, cfg.Overwrite); err != nil {
		return err
	}

	n, err := newNarrator(cfg, narrator.WithLogger(logger))
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := n.Narrate(ctx, req)
	if err != nil {
		return err
	}
	if err := builder.EnsureOutDir(day); err != nil {
		return err
	}
	if err := os.WriteFile(mp3Path, res.Audio, 0o644); err != nil {
		return err
	}
	if mdPath != "" {
		md := fmt.Sprintf("# Cuento de %s\n\n_%s, %d años_\n\n%s\n", req.ChildName, req.Theme, req.Age, res.Story)
		if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
			return err
		}
	}

	slog.Info(
		"story narrated",
		"date", day.Format("2006-01-02"),
		"theme", req.Theme,
		"age", req.Age,
		"words", res.Words,
		"bytes", len(res.Audio),
		"totalTokens", res.Usage.TotalTokens,
		"path", mp3Path,
	)
	fmt.Println(mp3Path)
	return nil
}
