package assets

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const maxRenderDownloadBytes = 32 << 20

// ObjectStore is the narrow storage surface the finalizer needs; *Client
// satisfies it.
type ObjectStore interface {
	UploadBytes(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Finalizer copies a transient render output into durable storage and returns
// the stable URL. Every failure degrades gracefully to the transient URL: the
// generation still completes, the reference may just expire.
type Finalizer struct {
	store        ObjectStore
	config       *Config
	httpClient   *http.Client
	fetchTimeout time.Duration
}

// NewFinalizer creates a finalizer over a storage client. A nil store is
// valid and means storage is disabled; finalization is then a pass-through.
func NewFinalizer(store ObjectStore, cfg *Config) *Finalizer {
	return &Finalizer{
		store:  store,
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		fetchTimeout: 30 * time.Second,
	}
}

// NewFinalizerFromEnv builds the finalizer with its S3 client from env
// configuration. Storage problems at startup disable finalization rather than
// failing the application.
func NewFinalizerFromEnv() *Finalizer {
	cfg, err := LoadConfig()
	if err != nil {
		log.Warnf("[Assets] Invalid render storage config, finalization disabled: %v", err)
		return NewFinalizer(nil, nil)
	}
	if !cfg.IsEnabled() {
		log.Info("[Assets] Render storage disabled, finalization is pass-through")
		return NewFinalizer(nil, cfg)
	}
	client, err := NewClient(cfg)
	if err != nil {
		log.Warnf("[Assets] Render storage unavailable, finalization disabled: %v", err)
		return NewFinalizer(nil, cfg)
	}
	return NewFinalizer(client, cfg)
}

// Finalize fetches the transient URL and stores it under a deterministic key
// derived from the request id. Calling it twice for the same request
// overwrites the same object. Any failure returns transientURL unchanged.
func (f *Finalizer) Finalize(ctx context.Context, requestUUID, transientURL string) string {
	if f.store == nil || f.config == nil {
		return transientURL
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	data, contentType, err := f.fetch(fetchCtx, transientURL)
	if err != nil {
		log.Warnf("[Assets] Could not fetch render output for %s, keeping transient URL: %v", requestUUID, err)
		return transientURL
	}

	now := time.Now()
	key := f.config.GetObjectKey(requestUUID, extensionFor(transientURL, contentType), now.Year(), int(now.Month()))

	stableURL, err := f.store.UploadBytes(ctx, key, contentType, data)
	if err != nil {
		log.Warnf("[Assets] Could not store render output for %s, keeping transient URL: %v", requestUUID, err)
		return transientURL
	}

	log.Infof("[Assets] Finalized render output for %s as %s", requestUUID, key)
	return stableURL
}

func (f *Finalizer) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &fetchStatusError{status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRenderDownloadBytes))
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

type fetchStatusError struct {
	status int
}

func (e *fetchStatusError) Error() string {
	return "unexpected status " + http.StatusText(e.status)
}

func extensionFor(url, contentType string) string {
	switch {
	case strings.Contains(contentType, "image/png"):
		return ".png"
	case strings.Contains(contentType, "image/webp"):
		return ".webp"
	case strings.Contains(contentType, "image/jpeg"):
		return ".jpg"
	}
	if ext := path.Ext(strings.SplitN(url, "?", 2)[0]); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".png"
}
