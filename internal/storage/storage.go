// Package storage puts request photos into an object bucket and hands back
// their public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/midrand-elite/meg-services/internal/metrics"
)

var (
	ErrUnsupportedType = errors.New("unsupported image format")
	ErrTooLarge        = errors.New("file too large")
	ErrEmptyFile       = errors.New("empty file")
	ErrUnavailable     = errors.New("storage temporarily unavailable")
)

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// Bucket stores one object and returns the URL it can be fetched from.
type Bucket interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// File is one picked photo. Open is called at most once.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

type Result struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
	Err   error  `json:"-"`
}

func (r Result) OK() bool { return r.Err == nil }

type BatchOptions struct {
	Limit    int
	MaxBytes int64
}

// ObjectPath builds a collision-free object name under prefix, keeping the
// lower-cased extension of filename.
func ObjectPath(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(prefix, uuid.NewString()+ext)
}

func CheckFile(f File, maxBytes int64) error {
	ext := strings.ToLower(filepath.Ext(f.Name))
	if !allowedExt[ext] {
		return ErrUnsupportedType
	}
	if f.Size <= 0 {
		return ErrEmptyFile
	}
	if maxBytes > 0 && f.Size > maxBytes {
		return ErrTooLarge
	}
	return nil
}

// UploadBatch uploads files with at most opts.Limit puts in flight and
// returns one Result per file, in input order. A failed item never stops
// the others.
func UploadBatch(ctx context.Context, b Bucket, prefix string, files []File, opts BatchOptions) []Result {
	results := make([]Result, len(files))
	if len(files) == 0 {
		return results
	}

	limit := opts.Limit
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, f := range files {
		g.Go(func() error {
			results[i] = uploadOne(ctx, b, prefix, i, f, opts.MaxBytes)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func uploadOne(ctx context.Context, b Bucket, prefix string, i int, f File, maxBytes int64) Result {
	res := Result{Index: i, Name: f.Name}

	if err := CheckFile(f, maxBytes); err != nil {
		res.Err = err
		metrics.PhotoUploads.WithLabelValues("rejected").Inc()
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		metrics.PhotoUploads.WithLabelValues("failed").Inc()
		return res
	}

	rc, err := f.Open()
	if err != nil {
		res.Err = fmt.Errorf("open %s: %w", f.Name, err)
		metrics.PhotoUploads.WithLabelValues("failed").Inc()
		return res
	}
	defer rc.Close()

	ct := f.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name)))
	}

	start := time.Now()
	url, err := b.Put(ctx, ObjectPath(prefix, f.Name), ct, rc)
	metrics.UploadLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		res.Err = err
		metrics.PhotoUploads.WithLabelValues("failed").Inc()
		return res
	}

	res.URL = url
	metrics.PhotoUploads.WithLabelValues("ok").Inc()
	return res
}
