package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/schoolbooks/admin-console/internal/config"
	"github.com/schoolbooks/admin-console/pkg/checksum"
)

// newTestStorage creates a LocalStorage backed by a temporary directory.
func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := New(&config.LocalStorageConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatal("New:", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew_CreatesDirectory(t *testing.T) {
	subDir := filepath.Join(t.TempDir(), "a", "b", "c")
	if _, err := New(&config.LocalStorageConfig{BasePath: subDir}); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(subDir); os.IsNotExist(err) {
		t.Error("New() did not create base directory")
	}
}

func TestNew_EmptyBasePath(t *testing.T) {
	if _, err := New(&config.LocalStorageConfig{}); err == nil {
		t.Error("New() = nil error, want error for empty base path")
	}
}

// ---------------------------------------------------------------------------
// Upload
// ---------------------------------------------------------------------------

func TestUpload(t *testing.T) {
	s := newTestStorage(t)

	content := "ID,Date\na,2024-01-01\n"
	result, err := s.Upload(context.Background(), "audit_logs_2024-01-01.csv", strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if result.Path != "audit_logs_2024-01-01.csv" {
		t.Errorf("Path = %q", result.Path)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", result.Size, len(content))
	}
	got, err := os.ReadFile(s.Location("audit_logs_2024-01-01.csv"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != content {
		t.Errorf("file content = %q, want %q", got, content)
	}
	if ok, _ := checksum.VerifySHA256(bytes.NewReader(got), result.Checksum); !ok {
		t.Errorf("Checksum %q does not match the written file", result.Checksum)
	}
}

func TestUpload_ReplacesExisting(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.Upload(ctx, "x.csv", strings.NewReader("old,longer content"), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upload(ctx, "x.csv", strings.NewReader("new"), 0); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(s.Location("x.csv"))
	if string(got) != "new" {
		t.Errorf("content = %q, want new", got)
	}
}

func TestUpload_CreatesSubdirectories(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Upload(context.Background(), "2024/05/file.csv", strings.NewReader("data"), 4); err != nil {
		t.Fatalf("Upload() error for nested path: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.basePath, "2024", "05", "file.csv")); err != nil {
		t.Errorf("Upload() did not create file at nested path: %v", err)
	}
}

type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "ID,Date\npartial"), nil
	}
	return 0, errors.New("connection reset")
}

func TestUpload_FailureLeavesNoFile(t *testing.T) {
	s := newTestStorage(t)

	if _, err := s.Upload(context.Background(), "broken.csv", &failingReader{}, 0); err == nil {
		t.Fatal("Upload() = nil error, want read failure")
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory not clean after failed upload: %v", names)
	}
}

func TestUpload_CancelledContext(t *testing.T) {
	s := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Upload(ctx, "cancelled.csv", strings.NewReader("data"), 4)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Upload() error = %v, want context.Canceled", err)
	}
	if ok, _ := s.Exists(context.Background(), "cancelled.csv"); ok {
		t.Error("cancelled upload left a file behind")
	}
}

func TestUpload_RejectsEscapingPath(t *testing.T) {
	s := newTestStorage(t)
	for _, p := range []string{"../escape.csv", "a/../../escape.csv", ""} {
		if _, err := s.Upload(context.Background(), p, strings.NewReader("x"), 1); err == nil {
			t.Errorf("Upload(%q) = nil error, want invalid path", p)
		}
	}
}

// ---------------------------------------------------------------------------
// Exists / Delete / Location
// ---------------------------------------------------------------------------

func TestExistsAndDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if ok, err := s.Exists(ctx, "e.csv"); err != nil || ok {
		t.Fatalf("Exists before upload = %v, %v", ok, err)
	}
	if _, err := s.Upload(ctx, "e.csv", strings.NewReader("x"), 1); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.Exists(ctx, "e.csv"); err != nil || !ok {
		t.Fatalf("Exists after upload = %v, %v", ok, err)
	}
	if err := s.Delete(ctx, "e.csv"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "e.csv"); err != nil {
		t.Errorf("Delete of missing file = %v, want nil", err)
	}
	if ok, _ := s.Exists(ctx, "e.csv"); ok {
		t.Error("file still exists after Delete")
	}
}

func TestLocation_IsAbsolute(t *testing.T) {
	s := newTestStorage(t)
	loc := s.Location("a/b.csv")
	if !filepath.IsAbs(loc) || !strings.HasSuffix(loc, filepath.Join("a", "b.csv")) {
		t.Errorf("Location = %q", loc)
	}
}

var _ io.Reader = (*failingReader)(nil)
