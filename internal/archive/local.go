package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"meetcap/internal/fileutil"
)

// LocalProvider stores artifacts on a local or mounted filesystem.
type LocalProvider struct {
	BasePath string
}

// NewLocalProvider creates a LocalProvider rooted at basePath.
func NewLocalProvider(basePath string) (*LocalProvider, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("local provider base path is required")
	}
	return &LocalProvider{BasePath: filepath.Clean(basePath)}, nil
}

// Name identifies the provider in logs.
func (p *LocalProvider) Name() string { return "local" }

// Upload copies localPath to key under the base path, verifying the copy.
func (p *LocalProvider) Upload(ctx context.Context, localPath, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if localPath == "" || key == "" {
		return errors.New("local path and key are required")
	}
	dest := filepath.Join(p.BasePath, filepath.FromSlash(key))
	if rel, err := filepath.Rel(p.BasePath, dest); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("key %q escapes archive directory", key)
	}
	if _, err := fileutil.CopyFileVerified(ctx, localPath, dest); err != nil {
		return err
	}
	return nil
}
