package bbdc

import (
	"bytes"
	"context"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
)

// Archiver stores raw slot listings under <prefix>/<month>/<digest>.json.
type Archiver struct {
	store  booking.BlobStore
	hasher booking.Hasher
	prefix string
	logger *zap.Logger
}

// NewArchiver returns nil when store is nil so callers can pass it through unconditionally.
func NewArchiver(store booking.BlobStore, hasher booking.Hasher, prefix string, logger *zap.Logger) *Archiver {
	if store == nil || hasher == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, hasher: hasher, prefix: prefix, logger: logger.Named("snapshot")}
}

// Archive writes body; failures are logged and never surface to the caller.
func (a *Archiver) Archive(ctx context.Context, month string, body []byte) {
	if a == nil || len(body) == 0 {
		return
	}
	digest, err := a.hasher.Hash(body)
	if err != nil {
		a.logger.Warn("hash snapshot", zap.Error(err))
		return
	}
	key := path.Join(a.prefix, month, digest+".json")
	uri, err := a.store.PutObject(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		a.logger.Warn("store snapshot", zap.String("path", key), zap.Error(err))
		return
	}
	a.logger.Debug("snapshot stored", zap.String("uri", uri))
}
