package story

import (
	"errors"
	"fmt"
	"strings"
)

const (
	MinAge = 1
	MaxAge = 12
)

// ErrInvalidRequest marks a request that fails input validation.
var ErrInvalidRequest = errors.New("invalid story request")

var themes = []string{
	"Espacio",
	"Selva",
	"Dinosaurios",
	"Princesas",
	"Fantasía",
}

// Request is the input collected by the story form.
type Request struct {
	ChildName string `json:"childName"`
	Age       int    `json:"age"`
	Theme     string `json:"theme"`
}

// Themes returns the fixed list of theme labels offered to the child.
func Themes() []string {
	out := make([]string, 0, len(themes))
	out = append(out, themes...)
	return out
}

func IsTheme(s string) bool {
	for _, t := range themes {
		if t == s {
			return true
		}
	}
	return false
}

// ClampAge pins an age into the supported range, matching the form stepper.
func ClampAge(age int) int {
	if age < MinAge {
		return MinAge
	}
	if age > MaxAge {
		return MaxAge
	}
	return age
}

// Normalize trims surrounding whitespace from the text fields.
func (r Request) Normalize() Request {
	r.ChildName = strings.TrimSpace(r.ChildName)
	r.Theme = strings.TrimSpace(r.Theme)
	return r
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.ChildName) == "" {
		return fmt.Errorf("%w: childName is required", ErrInvalidRequest)
	}
	if r.Age < MinAge || r.Age > MaxAge {
		return fmt.Errorf("%w: age %d out of range %d-%d", ErrInvalidRequest, r.Age, MinAge, MaxAge)
	}
	if !IsTheme(strings.TrimSpace(r.Theme)) {
		return fmt.Errorf("%w: unknown theme %q", ErrInvalidRequest, r.Theme)
	}
	return nil
}
