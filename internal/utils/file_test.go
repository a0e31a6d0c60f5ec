package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestImageFormat(t *testing.T) {
	tests := map[string]string{
		"plot.png":     "png",
		"overlay.JPEG": "jpg",
		"a/b/c.jpg":    "jpg",
		"shot.webp":    "webp",
		"noext":        "png",
	}
	for name, want := range tests {
		if got := ImageFormat(name); got != want {
			t.Errorf("ImageFormat(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestWriteJSONCreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "deep", "rows.json")
	if err := WriteJSON(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"a": 1`) {
		t.Errorf("Unexpected content %s", data)
	}
	if !FileExists(path) || FileExists(filepath.Dir(path)) {
		t.Error("FileExists should accept files and reject directories")
	}
	if !DirExists(filepath.Dir(path)) {
		t.Error("Expected output directory to exist")
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureDir(filepath.Join(dir, "images", "dir.png")); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"images/b.png", "a.JPG", "notes.txt", "images/c.webp"} {
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.JPG"),
		filepath.Join(dir, "images", "b.png"),
		filepath.Join(dir, "images", "c.webp"),
	}
	if len(files) != len(want) {
		t.Fatalf("Expected %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], files[i])
		}
	}

	if _, err := ListImageFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.json")
	if err := os.WriteFile(file, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(file) || FileExists(dir) || FileExists(filepath.Join(dir, "nope")) {
		t.Error("FileExists should only accept existing regular files")
	}
	if !DirExists(dir) || DirExists(file) {
		t.Error("DirExists should only accept directories")
	}
}

func TestFormatFileSize(t *testing.T) {
	if got := FormatFileSize(512); got != "512 B" {
		t.Errorf("Unexpected %s", got)
	}
	if got := FormatFileSize(1536); got != "1.5 KB" {
		t.Errorf("Unexpected %s", got)
	}
}
