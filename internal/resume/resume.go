// Package resume loads the applicant's resume for prompt context and
// email attachment.
package resume

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Profile is a loaded resume: plain text for the scoring prompt, raw
// bytes for the attachment.
type Profile struct {
	Path     string
	Text     string
	Raw      []byte
	Filename string
}

// maxSize caps resume files; anything larger is almost certainly not a
// resume.
const maxSize = 2 << 20

// Load reads the resume at path. Only plain-text formats feed the
// prompt; a PDF still attaches fine but contributes no prompt text.
func Load(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	if len(raw) > maxSize {
		return nil, fmt.Errorf("resume: %s exceeds %d bytes", path, maxSize)
	}

	p := &Profile{
		Path:     path,
		Raw:      raw,
		Filename: filepath.Base(path),
	}
	if utf8.Valid(raw) && !isPDF(raw) {
		p.Text = strings.TrimSpace(string(raw))
	}
	return p, nil
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

// ContentType guesses the MIME type for the attachment header.
func (p *Profile) ContentType() string {
	switch strings.ToLower(filepath.Ext(p.Filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt", ".md":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
