package prompt

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

// Docs are the operator-maintained persona and playbook texts.
type Docs struct {
	SystemPrompt string
	Playbook     string
}

// SystemPromptLoaded reports whether a persona document is present.
func (d Docs) SystemPromptLoaded() bool {
	return d.SystemPrompt != ""
}

// PlaybookLoaded reports whether a playbook document is present.
func (d Docs) PlaybookLoaded() bool {
	return d.Playbook != ""
}

// LoadDocs reads both documents. A missing or unreadable file yields an
// empty section.
func LoadDocs(systemPromptPath, playbookPath string) Docs {
	return Docs{
		SystemPrompt: readDoc(systemPromptPath),
		Playbook:     readDoc(playbookPath),
	}
}

func readDoc(path string) string {
	if path == "" {
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to read prompt document", "path", path, "error", err.Error())
		}
		return ""
	}
	return strings.TrimSpace(string(b))
}
