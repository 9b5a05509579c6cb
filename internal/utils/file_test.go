package utils

import (
	"os"
	"path/filepath"
	"testing"
)

var formats = []string{"png", "jpg", "jpeg", "tiff", "heic"}

func TestStem(t *testing.T) {
	cases := map[string]string{
		"/data/raw/plate01.JPG": "plate01",
		"plate.v2.heic":         "plate.v2",
		"noext":                 "noext",
	}
	for in, want := range cases {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.png", "b.JPG", "c.Jpeg", "d.TIFF", "e.heic"} {
		if !IsImageFile(name, formats) {
			t.Errorf("%s should be accepted", name)
		}
	}
	for _, name := range []string{"a.gif", "b.txt", "noext", ".hidden"} {
		if IsImageFile(name, formats) {
			t.Errorf("%s should be rejected", name)
		}
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.PNG", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.png"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested.png", "c.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, skipped, err := ListImageFiles(dir, formats)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.PNG" || filepath.Base(files[1]) != "b.jpg" {
		t.Errorf("Unexpected files %v", files)
	}
	if len(skipped) != 2 {
		t.Errorf("Expected the directory and the text file to be skipped, got %v", skipped)
	}
}

func TestListImageFilesMissingDir(t *testing.T) {
	if _, _, err := ListImageFiles(filepath.Join(t.TempDir(), "missing"), formats); err == nil {
		t.Error("Expected an error for a missing directory")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tiff")
	dst := filepath.Join(dir, "dst.tiff")
	if err := os.WriteFile(src, []byte("II*\x00payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "II*\x00payload" {
		t.Errorf("Copy differs: %q", got)
	}
}

func TestOutputPath(t *testing.T) {
	if got := OutputPath("out", "plate01", "tiff"); got != filepath.Join("out", "plate01.tiff") {
		t.Errorf("Unexpected path %s", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := SanitizeFilename(" strain/A:glucose. "); got != "strain_A_glucose" {
		t.Errorf("Unexpected sanitized name %q", got)
	}
}

func TestFormatFileSize(t *testing.T) {
	cases := map[int64]string{
		512:         "512 B",
		2048:        "2.0 KB",
		5 * 1 << 20: "5.0 MB",
	}
	for in, want := range cases {
		if got := FormatFileSize(in); got != want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", in, got, want)
		}
	}
}
