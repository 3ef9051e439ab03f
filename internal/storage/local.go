package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalBucket writes objects under Dir. They are served by the static
// /uploads route.
type LocalBucket struct {
	Dir     string
	BaseURL string
}

func NewLocalBucket(dir, baseURL string) *LocalBucket {
	return &LocalBucket{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (b *LocalBucket) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	savePath := filepath.Join(b.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload folder: %w", err)
	}

	f, err := os.Create(savePath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(savePath)
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	publicPath := "/uploads/" + name
	if b.BaseURL == "" {
		return publicPath, nil
	}
	return b.BaseURL + publicPath, nil
}
