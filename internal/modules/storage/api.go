// Package storage is the durable object store behind mirrored artifacts.
package storage

import (
	"context"
	"fmt"

	"github.com/reusedev/shot-hub/config"
	"github.com/reusedev/shot-hub/internal/modules/storage/ali"
	"github.com/reusedev/shot-hub/internal/modules/storage/local"
)

// ObjectStore writes objects by key. Put overwrites an existing object.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	URL(ctx context.Context, key string) (string, error)
}

func New(cfg config.Storage) (ObjectStore, error) {
	switch cfg.Supplier {
	case "ali_oss":
		return ali.NewClient(cfg.AliOss, cfg.Expires()), nil
	case "local":
		return local.NewFileStore(cfg.Local.BasePath, cfg.Local.BaseURL)
	}
	return nil, fmt.Errorf("unsupported storage supplier: %q", cfg.Supplier)
}
