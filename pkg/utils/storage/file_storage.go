package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"walletwise_backend/pkg/utils/cloudflare"
)

const (
	MaxFileSize = 1 * 1024 * 1024 // 1MB, larger bodies are not webhooks
	dirPerm     = 0o750
	filePerm    = 0o640
)

// FileArchive keeps webhook bodies on local disk with the same key layout as
// the R2 archive. It is meant for development and single-node setups.
type FileArchive struct {
	dir string
}

func NewFileArchive(dir string) (*FileArchive, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is empty")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &FileArchive{dir: dir}, nil
}

func (a *FileArchive) Store(ctx context.Context, gateway, gatewayRef string, body []byte, receivedAt time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(body) > MaxFileSize {
		return "", fmt.Errorf("webhook body too large: %d bytes", len(body))
	}

	key := cloudflare.ObjectKey(gateway, gatewayRef, receivedAt)
	fileName := filepath.Join(a.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fileName), dirPerm); err != nil {
		return "", fmt.Errorf("could not create archive path: %w", err)
	}
	if err := os.WriteFile(fileName, body, filePerm); err != nil {
		return "", fmt.Errorf("could not write webhook to disk: %w", err)
	}
	return key, nil
}
