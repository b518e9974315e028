package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportFilename(t *testing.T) {
	tests := []struct {
		title, format, want string
	}{
		{"Summer Sale 2024!", "jpg", "Summer_Sale_2024__edited.jpg"},
		{"Café menu", "", "Caf__menu_edited.jpg"},
		{"", "png", "brochure_edited.png"},
		{"a/b", "jpeg", "a_b_edited.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExportFilename(tt.title, tt.format), tt.title)
	}
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("in", "Weekly_edited.webp"), OutputPath(filepath.Join("in", "tpl.json"), "Weekly", "webp"))
}

func TestFileHelpers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	assert.False(t, FileExists(dir))

	file := filepath.Join(dir, "x.PNG")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.True(t, FileExists(file))
	assert.True(t, IsImageFile(file))
	assert.Equal(t, "png", GetFileExtension(file))
	assert.False(t, IsImageFile("notes.txt"))
}
