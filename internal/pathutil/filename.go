// Package pathutil contains filesystem path helpers.
package pathutil

import (
	"path/filepath"
	"strings"
)

const maxFilenameBytes = 200

// NormalizePath converts all path separators to forward slashes.
// Go's os.Open/os.Stat accept forward slashes on all platforms.
func NormalizePath(p string) string {
	return filepath.ToSlash(p)
}

// SanitizeFilename strips path separators and characters that are invalid
// on common filesystems, then truncates the result to a safe byte length
// while keeping the extension.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))

	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"\x00", "",
	)
	name = replacer.Replace(name)

	name = strings.Trim(name, ". ")
	if name == "" {
		name = "unknown_book"
	}

	return TruncateFilename(name, maxFilenameBytes)
}

// TruncateFilename shortens name so its UTF-8 encoding fits in maxBytes,
// preserving the file extension. Multi-byte runes are never split.
func TruncateFilename(name string, maxBytes int) string {
	if len(name) <= maxBytes {
		return name
	}

	ext := filepath.Ext(name)
	if len(ext) >= maxBytes {
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)

	available := maxBytes - len(ext)
	runes := []rune(base)
	for len(runes) > 0 && len(string(runes)) > available {
		runes = runes[:len(runes)-1]
	}

	return string(runes) + ext
}
