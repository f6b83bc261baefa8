package bootstrap

import (
	"context"
	"fmt"

	"github.com/nemanja-m/inferq/internal/inference/payload"
	"github.com/nemanja-m/inferq/internal/shared/config"
)

// NewPayloadStore opens the payload backend selected by cfg.
func NewPayloadStore(ctx context.Context, cfg config.PayloadConfig) (payload.Store, error) {
	switch cfg.Backend {
	case "local", "":
		return payload.NewLocalStore(cfg.Dir)
	case "minio":
		return payload.NewObjectStore(ctx, payload.ObjectStoreConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown payload backend %q", cfg.Backend)
	}
}
