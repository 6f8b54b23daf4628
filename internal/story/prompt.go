package story

import (
	"fmt"
	"strings"
)

// TargetWords is the story length requested from the model.
const TargetWords = 150

// BuildPrompt renders the single user message sent to the text model.
func BuildPrompt(r Request) (string, error) {
	r = r.Normalize()
	if err := r.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Escribe un cuento infantil para un niño de %d años llamado %s. ", r.Age, r.ChildName)
	fmt.Fprintf(&b, "El tema es %s. ", r.Theme)
	fmt.Fprintf(&b, "Sé breve (%d palabras) y mágico.", TargetWords)
	return b.String(), nil
}

// CleanStory trims model output and drops Markdown markers the narrator
// would otherwise read aloud.
func CleanStory(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "#")
		line = strings.ReplaceAll(line, "**", "")
		line = strings.ReplaceAll(line, "__", "")
		out = append(out, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// WordCount returns a basic word count for the given text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
