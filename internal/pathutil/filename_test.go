package pathutil

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean name", "book.epub", "book.epub"},
		{"strips directories", "dir/sub/c.pdf", "c.pdf"},
		{"backslashes", `b\c.pdf`, "b_c.pdf"},
		{"reserved chars", `ti:tle*?.epub`, "ti_tle__.epub"},
		{"traversal", "../../etc/passwd", "passwd"},
		{"trailing dots and spaces", "name.. ", "name"},
		{"empty", "", "unknown_book"},
		{"only dots", " .. ", "unknown_book"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	long := strings.Repeat("a", 300) + ".epub"
	got := SanitizeFilename(long)
	if len(got) > 200 {
		t.Errorf("expected at most 200 bytes, got %d", len(got))
	}
	if !strings.HasSuffix(got, ".epub") {
		t.Errorf("extension must survive truncation, got %q", got)
	}
}

func TestTruncateFilenameMultibyte(t *testing.T) {
	// Truncation must never split a rune.
	name := strings.Repeat("ü", 150) + ".pdf"
	got := TruncateFilename(name, 100)
	if len(got) > 100 {
		t.Errorf("expected at most 100 bytes, got %d", len(got))
	}
	for _, r := range got {
		if r == '�' {
			t.Fatalf("truncation split a rune: %q", got)
		}
	}
}
