// Package mirror copies provider-hosted artifacts into the durable object store.
// Failures are never fatal: callers fall back to the external URL.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/internal/modules/storage"
	"github.com/reusedev/shot-hub/tools"
)

var ErrMirrorUnavailable = errors.New("mirror unavailable")

type Mirror struct {
	store  storage.ObjectStore
	client *http.Client
}

func New(store storage.ObjectStore, client *http.Client) *Mirror {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Mirror{store: store, client: client}
}

// Mirror downloads sourceURL and stores it at destPath, overwriting any
// previous object. It returns the internal URL, or "", false on any failure.
func (m *Mirror) Mirror(ctx context.Context, sourceURL, destPath, contentType string) (string, bool) {
	if m == nil || m.store == nil {
		return "", false
	}
	data, detected, err := tools.Download(ctx, m.client, sourceURL)
	if err != nil {
		m.logFailure(destPath, fmt.Errorf("%w: download: %v", ErrMirrorUnavailable, err))
		return "", false
	}
	if contentType == "" {
		contentType = detected
	}
	return m.put(ctx, destPath, data, contentType)
}

// PersistJSON stores v as a JSON document with the same best-effort contract.
func (m *Mirror) PersistJSON(ctx context.Context, destPath string, v any) (string, bool) {
	if m == nil || m.store == nil {
		return "", false
	}
	data, err := jsoniter.Marshal(v)
	if err != nil {
		m.logFailure(destPath, fmt.Errorf("%w: marshal: %v", ErrMirrorUnavailable, err))
		return "", false
	}
	return m.put(ctx, destPath, data, "application/json")
}

// Persist stores bytes the service already holds, such as the run's input image.
func (m *Mirror) Persist(ctx context.Context, destPath string, data []byte, contentType string) (string, bool) {
	if m == nil || m.store == nil {
		return "", false
	}
	return m.put(ctx, destPath, data, contentType)
}

func (m *Mirror) put(ctx context.Context, destPath string, data []byte, contentType string) (string, bool) {
	if err := m.store.Put(ctx, destPath, data, contentType); err != nil {
		m.logFailure(destPath, fmt.Errorf("%w: upload: %v", ErrMirrorUnavailable, err))
		return "", false
	}
	u, err := m.store.URL(ctx, destPath)
	if err != nil {
		m.logFailure(destPath, fmt.Errorf("%w: resolve url: %v", ErrMirrorUnavailable, err))
		return "", false
	}
	logs.Logger.Info().Str("path", destPath).Int("size", len(data)).Str("content_type", contentType).Msg("artifact mirrored")
	return u, true
}

func (m *Mirror) logFailure(destPath string, err error) {
	logs.Logger.Warn().Err(err).Str("path", destPath).Msg("mirror failed")
}
