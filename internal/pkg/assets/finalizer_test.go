package assets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	uploads map[string][]byte
	err     error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploads: make(map[string][]byte)}
}

func (s *fakeObjectStore) UploadBytes(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.uploads[key] = data
	return "https://cdn.example.com/" + key, nil
}

func TestFinalizeWithoutStoreIsPassThrough(t *testing.T) {
	f := NewFinalizer(nil, nil)

	url := f.Finalize(context.Background(), "req-1", "https://tmp.example.com/out.png")
	assert.Equal(t, "https://tmp.example.com/out.png", url)
}

func TestFinalizeStoresRenderOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	store := newFakeObjectStore()
	f := NewFinalizer(store, &Config{Enabled: true, BucketName: "renders"})

	url := f.Finalize(context.Background(), "req-1", server.URL+"/out")

	now := time.Now()
	key := fmt.Sprintf("renders/%04d/%02d/req-1.png", now.Year(), int(now.Month()))
	assert.Equal(t, "https://cdn.example.com/"+key, url)
	assert.Equal(t, []byte("png-bytes"), store.uploads[key])
}

func TestFinalizeKeepsTransientURLWhenFetchFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store := newFakeObjectStore()
	f := NewFinalizer(store, &Config{Enabled: true, BucketName: "renders"})

	url := f.Finalize(context.Background(), "req-1", server.URL+"/gone.png")
	assert.Equal(t, server.URL+"/gone.png", url)
	assert.Empty(t, store.uploads)
}

func TestFinalizeKeepsTransientURLWhenUploadFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer server.Close()

	store := newFakeObjectStore()
	store.err = errors.New("bucket unavailable")
	f := NewFinalizer(store, &Config{Enabled: true, BucketName: "renders"})

	url := f.Finalize(context.Background(), "req-1", server.URL+"/out.png")
	assert.Equal(t, server.URL+"/out.png", url)
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        string
	}{
		{url: "https://x/out", contentType: "image/png", want: ".png"},
		{url: "https://x/out", contentType: "image/webp", want: ".webp"},
		{url: "https://x/out", contentType: "image/jpeg; charset=binary", want: ".jpg"},
		{url: "https://x/out.webp?sig=abc", contentType: "", want: ".webp"},
		{url: "https://x/out", contentType: "", want: ".png"},
		{url: "https://x/archive.tar.verylongext", contentType: "", want: ".png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extensionFor(tt.url, tt.contentType), "url=%s ct=%s", tt.url, tt.contentType)
	}
}

func TestGetObjectKeyIsDeterministic(t *testing.T) {
	cfg := &Config{}
	key := cfg.GetObjectKey("8d5f0a50-1111", ".png", 2026, 9)
	assert.Equal(t, "renders/2026/09/8d5f0a50-1111.png", key)
	assert.Equal(t, key, cfg.GetObjectKey("8d5f0a50-1111", ".png", 2026, 9))
}

func TestObjectURL(t *testing.T) {
	key := "renders/2026/09/req-1.png"

	cfg := &Config{PublicBaseURL: "https://cdn.example.com", BucketName: "renders", Region: "us-east-1"}
	assert.Equal(t, "https://cdn.example.com/"+key, cfg.ObjectURL(key))

	cfg = &Config{EndpointURL: "https://minio.internal:9000/", BucketName: "renders"}
	assert.Equal(t, "https://minio.internal:9000/renders/"+key, cfg.ObjectURL(key))

	cfg = &Config{BucketName: "renders", Region: "eu-central-1"}
	assert.Equal(t, "https://renders.s3.eu-central-1.amazonaws.com/"+key, cfg.ObjectURL(key))
}

func TestFinalizeRespectsContextCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	store := newFakeObjectStore()
	f := NewFinalizer(store, &Config{Enabled: true, BucketName: "renders"})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	url := f.Finalize(ctx, "req-1", server.URL+"/slow.png")
	require.Equal(t, server.URL+"/slow.png", url)
}
