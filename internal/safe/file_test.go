package safe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestReadFile(t *testing.T) {
	t.Run("reads regular file", func(t *testing.T) {
		tmpDir := t.TempDir()
		src := filepath.Join(tmpDir, "source.txt")
		content := []byte("test content")

		if err := os.WriteFile(src, content, 0o644); err != nil {
			t.Fatal(err)
		}

		got, err := ReadFile(afero.NewOsFs(), src, nil)
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}

		if string(got) != string(content) {
			t.Errorf("got %q, want %q", got, content)
		}
	})

	t.Run("rejects symlink by default", func(t *testing.T) {
		tmpDir := t.TempDir()
		src := filepath.Join(tmpDir, "source.txt")
		link := filepath.Join(tmpDir, "link.txt")

		if err := os.WriteFile(src, []byte("test"), 0o644); err != nil {
			t.Fatal(err)
		}

		if err := os.Symlink(src, link); err != nil {
			t.Fatal(err)
		}

		_, err := ReadFile(afero.NewOsFs(), link, nil)
		if err == nil {
			t.Fatal("expected error for symlink, got nil")
		}
	})

	t.Run("allows symlink when enabled", func(t *testing.T) {
		tmpDir := t.TempDir()
		src := filepath.Join(tmpDir, "source.txt")
		link := filepath.Join(tmpDir, "link.txt")

		if err := os.WriteFile(src, []byte("linked"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(src, link); err != nil {
			t.Fatal(err)
		}

		got, err := ReadFile(afero.NewOsFs(), link, &ReadOptions{AllowSymlinks: true})
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if string(got) != "linked" {
			t.Errorf("got %q, want %q", got, "linked")
		}
	})

	t.Run("rejects file exceeding max size", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		if err := afero.WriteFile(fs, "/data/source.txt", make([]byte, 1024), 0o644); err != nil {
			t.Fatal(err)
		}

		_, err := ReadFile(fs, "/data/source.txt", &ReadOptions{MaxSize: 512})
		if err == nil {
			t.Fatal("expected error for oversized file, got nil")
		}
	})

	t.Run("rejects directory", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		if err := fs.MkdirAll("/data", 0o755); err != nil {
			t.Fatal(err)
		}

		_, err := ReadFile(fs, "/data", nil)
		if err == nil {
			t.Fatal("expected error for directory, got nil")
		}
	})
}

func TestWriteFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	if err := WriteFile(fs, "/home/user/.spot/settings.yaml", []byte("first"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := WriteFile(fs, "/home/user/.spot/settings.yaml", []byte("second"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := afero.ReadFile(fs, "/home/user/.spot/settings.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("got %q, want %q", got, "second")
	}

	entries, err := afero.ReadDir(fs, "/home/user/.spot")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}
