package utils

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	switch GetFileExtension(filename) {
	case "jpg", "jpeg", "png", "gif", "webp":
		return true
	}
	return false
}

// SanitizeTitle replaces every character that is not an ASCII letter or
// digit with an underscore.
func SanitizeTitle(title string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, title)
}

// ExportFilename returns the download name of an exported brochure.
func ExportFilename(title, format string) string {
	if title == "" {
		title = "brochure"
	}
	if format == "" || format == "jpeg" {
		format = "jpg"
	}
	return SanitizeTitle(title) + "_edited." + format
}

// OutputPath returns where the render command writes its result when no
// output is given: next to the input, named after the template title.
func OutputPath(input, title, format string) string {
	return filepath.Join(filepath.Dir(input), ExportFilename(title, format))
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
