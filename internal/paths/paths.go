package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	defaultBaseDir = "out"
	filePrefix     = "cuento"
)

// Builder constructs output paths rooted at Base (default "out").
type Builder struct {
	Base string
}

func New(base string) *Builder {
	if base == "" {
		base = defaultBaseDir
	}
	return &Builder{Base: base}
}

// OutDir returns the date-based output directory: Base/YYYY/MM/DD
func (b *Builder) OutDir(t time.Time) string {
	y, m, d := t.UTC().Date()
	return filepath.Join(b.Base, fmt.Sprintf("%04d", y), fmt.Sprintf("%02d", int(m)), fmt.Sprintf("%02d", d))
}

func (b *Builder) StoryMP3(t time.Time, name, theme string) string {
	return filepath.Join(b.OutDir(t), fileStem(name, theme)+".mp3")
}
func (b *Builder) StoryMarkdown(t time.Time, name, theme string) string {
	return filepath.Join(b.OutDir(t), fileStem(name, theme)+".md")
}

// EnsureOutDir creates the date-based directory if it does not exist.
func (b *Builder) EnsureOutDir(t time.Time) error {
	dir := b.OutDir(t)
	return os.MkdirAll(dir, 0o755)
}

func fileStem(name, theme string) string {
	stem := filePrefix
	for _, part := range []string{name, theme} {
		if s := Slug(part); s != "" {
			stem += "-" + s
		}
	}
	return stem
}

// Slug lowercases s, drops accents and collapses everything that is not a
// letter or digit into single dashes. "Sofía Pérez" becomes "sofia-perez".
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}

// CheckOverwrite enforces overwrite behavior. If any path exists and overwrite is false, returns error.
func CheckOverwrite(paths []string, overwrite bool) error {
	if overwrite {
		return nil
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("refusing to overwrite existing file: %s (use --overwrite)", p)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking file: %s: %w", p, err)
		}
	}
	return nil
}
