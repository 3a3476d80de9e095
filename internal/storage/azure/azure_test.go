package azure

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

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/schoolbooks/admin-console/internal/config"
)

type storedBlob struct {
	content     []byte
	contentType string
	metadata    map[string]string
}

type blobStore struct {
	mu    sync.Mutex
	blobs map[string]*storedBlob
}

func (b *blobStore) get(name string) (*storedBlob, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	blob, ok := b.blobs[name]
	return blob, ok
}

// newTestStorage creates an AzureStorage pointed at an httptest server that
// imitates enough of the Blob REST API for Put Blob, Get Properties and Delete.
func newTestStorage(t *testing.T) (*AzureStorage, *blobStore) {
	t.Helper()

	store := &blobStore{blobs: map[string]*storedBlob{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// path: /container/blob...
		name, ok := strings.CutPrefix(strings.TrimPrefix(r.URL.Path, "/"), "container/")
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		notFound := func() {
			w.Header().Set("x-ms-error-code", "BlobNotFound")
			w.WriteHeader(http.StatusNotFound)
		}

		switch r.Method {
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			meta := map[string]string{}
			for k, v := range r.Header {
				lk := strings.ToLower(k)
				if strings.HasPrefix(lk, "x-ms-meta-") && len(v) > 0 {
					meta[strings.TrimPrefix(lk, "x-ms-meta-")] = v[0]
				}
			}
			store.mu.Lock()
			store.blobs[name] = &storedBlob{
				content:     data,
				contentType: r.Header.Get("x-ms-blob-content-type"),
				metadata:    meta,
			}
			store.mu.Unlock()
			w.WriteHeader(http.StatusCreated)

		case http.MethodHead:
			b, ok := store.get(name)
			if !ok {
				notFound()
				return
			}
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(b.content)))
			w.WriteHeader(http.StatusOK)

		case http.MethodDelete:
			store.mu.Lock()
			_, ok := store.blobs[name]
			delete(store.blobs, name)
			store.mu.Unlock()
			if !ok {
				notFound()
				return
			}
			w.WriteHeader(http.StatusAccepted)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := azblob.NewClientWithNoCredential(srv.URL, nil)
	if err != nil {
		t.Fatalf("failed to create azblob client: %v", err)
	}

	return &AzureStorage{client: client, containerName: "container"}, store
}

func TestUploadExistsAndDelete(t *testing.T) {
	s, store := newTestStorage(t)
	ctx := context.Background()
	data := []byte("ID,Date\nlog-1,2024-05-01\n")

	res, err := s.Upload(ctx, "exports/audit.csv", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if res.Size != int64(len(data)) {
		t.Fatalf("unexpected size: got %d want %d", res.Size, len(data))
	}

	b, ok := store.get("exports/audit.csv")
	if !ok {
		t.Fatal("blob not stored")
	}
	if !bytes.Equal(b.content, data) {
		t.Errorf("stored content = %q", b.content)
	}
	if b.contentType != ContentType {
		t.Errorf("content type = %q, want %q", b.contentType, ContentType)
	}
	if b.metadata["sha256"] != res.Checksum {
		t.Errorf("sha256 metadata = %q, want %q", b.metadata["sha256"], res.Checksum)
	}

	exists, err := s.Exists(ctx, "exports/audit.csv")
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if !exists {
		t.Fatal("Exists = false, want true")
	}

	if err := s.Delete(ctx, "exports/audit.csv"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = s.Exists(ctx, "exports/audit.csv")
	if err != nil {
		t.Fatalf("Exists after delete returned error: %v", err)
	}
	if exists {
		t.Fatal("Exists = true after delete, want false")
	}

	if err := s.Delete(ctx, "exports/audit.csv"); err != nil {
		t.Errorf("Delete of missing blob = %v, want nil", err)
	}
}

func TestLocation(t *testing.T) {
	s, _ := newTestStorage(t)
	loc := s.Location("exports/audit.csv")
	if !strings.HasSuffix(loc, "/container/exports/audit.csv") {
		t.Errorf("Location = %q", loc)
	}
}

// ---------------------------------------------------------------------------
// New() — constructor validation (no cloud connection required)
// ---------------------------------------------------------------------------

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AzureStorageConfig
	}{
		{"missing account name", config.AzureStorageConfig{AccountKey: "a2V5", ContainerName: "c"}},
		{"missing account key", config.AzureStorageConfig{AccountName: "acct", ContainerName: "c"}},
		{"missing container", config.AzureStorageConfig{AccountName: "acct", AccountKey: "a2V5"}},
		{"key not base64", config.AzureStorageConfig{AccountName: "acct", AccountKey: "%%%", ContainerName: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if _, err := New(&cfg); err == nil {
				t.Error("New() = nil error, want error")
			}
		})
	}
}

func TestNew_ServiceURLOverride(t *testing.T) {
	s, err := New(&config.AzureStorageConfig{
		AccountName:   "devstoreaccount1",
		AccountKey:    "a2V5",
		ContainerName: "exports",
		ServiceURL:    "http://127.0.0.1:10000/devstoreaccount1/",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got := s.Location("a.csv"); got != "http://127.0.0.1:10000/devstoreaccount1/exports/a.csv" {
		t.Errorf("Location = %q", got)
	}
}
