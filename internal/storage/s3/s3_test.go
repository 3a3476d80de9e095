package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	appconfig "github.com/schoolbooks/admin-console/internal/config"
)

// ---------------------------------------------------------------------------
// New() — constructor validation (no AWS connection required)
// ---------------------------------------------------------------------------

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  appconfig.S3StorageConfig
	}{
		{"missing bucket", appconfig.S3StorageConfig{Region: "us-east-1"}},
		{"missing region", appconfig.S3StorageConfig{Bucket: "exports"}},
		{"static without keys", appconfig.S3StorageConfig{Bucket: "exports", Region: "us-east-1", AuthMethod: "static"}},
		{"unsupported auth", appconfig.S3StorageConfig{Bucket: "exports", Region: "us-east-1", AuthMethod: "kerberos"}},
		{"oidc without role", appconfig.S3StorageConfig{Bucket: "exports", Region: "us-east-1", AuthMethod: "oidc"}},
		{"oidc without token file", appconfig.S3StorageConfig{
			Bucket: "exports", Region: "us-east-1", AuthMethod: "oidc",
			RoleARN: "arn:aws:iam::123456789:role/export",
		}},
		{"assume_role without role", appconfig.S3StorageConfig{Bucket: "exports", Region: "us-east-1", AuthMethod: "assume_role"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if _, err := New(&cfg); err == nil {
				t.Error("New() = nil error, want validation error")
			}
		})
	}
}

func TestNew_AssumeRole_WithExternalID(t *testing.T) {
	// AssumeRole is lazy, so construction makes no network call
	s, err := New(&appconfig.S3StorageConfig{
		Bucket:     "exports",
		Region:     "us-east-1",
		AuthMethod: "assume_role",
		RoleARN:    "arn:aws:iam::123456789:role/export",
		ExternalID: "external-id-123",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if s.Location("a.csv") != "s3://exports/a.csv" {
		t.Errorf("Location = %q", s.Location("a.csv"))
	}
}

func TestNew_ImplicitStaticAuth(t *testing.T) {
	s, err := New(&appconfig.S3StorageConfig{
		Bucket:          "exports",
		Region:          "us-east-1",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Endpoint:        "http://localhost:9000",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if s == nil {
		t.Error("New() returned nil storage")
	}
}

// ---------------------------------------------------------------------------
// Mock S3-compatible HTTP server
// ---------------------------------------------------------------------------

type s3Object struct {
	data        []byte
	contentType string
	meta        map[string]string
}

type s3MockStore struct {
	mu      sync.Mutex
	objects map[string]s3Object
	failPut bool
}

func (ms *s3MockStore) get(key string) (s3Object, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	o, ok := ms.objects[key]
	return o, ok
}

// newS3TestStorage creates an S3Storage backed by a path-style mock server
// that understands PUT, HEAD and DELETE on objects.
func newS3TestStorage(t *testing.T) (*S3Storage, *s3MockStore) {
	t.Helper()

	ms := &s3MockStore{objects: map[string]s3Object{}}
	const bucket = "test-bucket"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		idx := strings.IndexByte(path, '/')
		if idx < 0 || path[:idx] != bucket {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		key := path[idx+1:]

		switch r.Method {
		case http.MethodPut:
			if ms.failPut {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `<?xml version="1.0"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
				return
			}
			data, _ := io.ReadAll(r.Body)
			meta := map[string]string{}
			for hk, hv := range r.Header {
				lk := strings.ToLower(hk)
				if strings.HasPrefix(lk, "x-amz-meta-") && len(hv) > 0 {
					meta[strings.TrimPrefix(lk, "x-amz-meta-")] = hv[0]
				}
			}
			ms.mu.Lock()
			ms.objects[key] = s3Object{data: data, contentType: r.Header.Get("Content-Type"), meta: meta}
			ms.mu.Unlock()
			w.Header().Set("ETag", `"test-etag"`)
			w.WriteHeader(http.StatusOK)

		case http.MethodHead:
			o, ok := ms.get(key)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(o.data)))
			w.Header().Set("ETag", `"test-etag"`)
			w.WriteHeader(http.StatusOK)

		case http.MethodDelete:
			ms.mu.Lock()
			delete(ms.objects, key)
			ms.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	s, err := New(&appconfig.S3StorageConfig{
		Bucket:          bucket,
		Region:          "us-east-1",
		AuthMethod:      "static",
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
		Endpoint:        srv.URL,
	})
	if err != nil {
		t.Fatalf("New() for mock S3: %v", err)
	}
	return s, ms
}

// ---------------------------------------------------------------------------
// Upload
// ---------------------------------------------------------------------------

func TestS3_Upload(t *testing.T) {
	s, ms := newS3TestStorage(t)

	data := []byte("ID,Date\nlog-1,2024-05-01\n")
	result, err := s.Upload(context.Background(), "exports/audit_logs_2024-05-01.csv", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if result.Path != "exports/audit_logs_2024-05-01.csv" {
		t.Errorf("Path = %q", result.Path)
	}
	if result.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", result.Size, len(data))
	}
	if len(result.Checksum) != 64 {
		t.Errorf("Checksum length = %d, want 64 (SHA256 hex)", len(result.Checksum))
	}

	obj, ok := ms.get("exports/audit_logs_2024-05-01.csv")
	if !ok {
		t.Fatal("object not stored")
	}
	if !bytes.Equal(obj.data, data) {
		t.Errorf("stored body = %q, want %q", obj.data, data)
	}
	if obj.contentType != ContentType {
		t.Errorf("Content-Type = %q, want %q", obj.contentType, ContentType)
	}
	if obj.meta["sha256"] != result.Checksum {
		t.Errorf("sha256 metadata = %q, want %q", obj.meta["sha256"], result.Checksum)
	}
}

func TestS3_Upload_Rejected(t *testing.T) {
	s, ms := newS3TestStorage(t)
	ms.failPut = true

	if _, err := s.Upload(context.Background(), "denied.csv", strings.NewReader("x"), 1); err == nil {
		t.Fatal("Upload() = nil error, want access denied")
	}
	if _, ok := ms.get("denied.csv"); ok {
		t.Error("rejected upload stored an object")
	}
}

// ---------------------------------------------------------------------------
// Exists / Delete
// ---------------------------------------------------------------------------

func TestS3_ExistsAndDelete(t *testing.T) {
	s, _ := newS3TestStorage(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "ghost.csv")
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if ok {
		t.Error("Exists = true for missing key")
	}

	if _, err := s.Upload(ctx, "present.csv", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ok, err := s.Exists(ctx, "present.csv"); err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}

	if err := s.Delete(ctx, "present.csv"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if ok, _ := s.Exists(ctx, "present.csv"); ok {
		t.Error("Exists = true after delete")
	}
}
