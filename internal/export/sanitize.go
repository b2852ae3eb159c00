package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// EDL name fields (the TITLE line, FROM CLIP NAME comments) pass through
// NLE importers with narrow character tolerances. These caps keep the
// generated lines within what Resolve and Premiere import intact.
const (
	MaxClipNameLen = 32
	MaxTitleLen    = 120
)

// SanitizeEDLName makes s safe for an EDL name field: control characters
// are dropped, anything outside letters, digits and common filename
// punctuation becomes an underscore, and the result is trimmed and capped
// at maxLen runes.
func SanitizeEDLName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsControl(r):
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case strings.ContainsRune(" -_.,()", r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	name := strings.TrimSpace(b.String())
	if runes := []rune(name); maxLen > 0 && len(runes) > maxLen {
		name = string(runes[:maxLen])
	}
	return name
}

// ValidateOutputDir checks that dir is an existing directory the exporter
// can write the .edl file into. The path must already be clean and must
// not traverse parent directories; the API accepts it straight from the
// request body.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("output_dir is required")
	}
	if dir != filepath.Clean(dir) {
		return fmt.Errorf("output_dir must be a clean path")
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("output_dir cannot traverse parent directories")
		}
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("output_dir does not exist")
	case err != nil:
		return fmt.Errorf("invalid output_dir: %w", err)
	case !info.IsDir():
		return fmt.Errorf("output_dir is not a directory")
	}
	return nil
}
