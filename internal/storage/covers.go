// Package storage keeps uploaded cover images in a gocloud.dev bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"gamecatalog/backend/pkg/apperror"
)

// DefaultMaxBytes caps a cover upload.
const DefaultMaxBytes = 5 << 20

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Covers stores cover images under generated names.
type Covers struct {
	bucket   *blob.Bucket
	maxBytes int64
}

// OpenCovers opens the bucket at bucketURL (file://, mem:// or s3://).
// Directories of file:// buckets are created on demand.
func OpenCovers(ctx context.Context, bucketURL string, maxBytes int64) (*Covers, error) {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("parse bucket url: %w", err)
	}
	if u.Scheme == "file" {
		if err := os.MkdirAll(u.Path, 0o755); err != nil {
			return nil, fmt.Errorf("ensure cover dir: %w", err)
		}
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return NewCovers(bucket, maxBytes), nil
}

func NewCovers(bucket *blob.Bucket, maxBytes int64) *Covers {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Covers{bucket: bucket, maxBytes: maxBytes}
}

// Save writes r under a new "<uuid><ext>" name and returns it. The type is
// sniffed from the content; only PNG, JPEG, GIF and WebP are accepted.
func (c *Covers) Save(ctx context.Context, r io.Reader) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read cover: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return "", apperror.Validation("invalid cover image", map[string]string{"coverImage": "must not be empty"})
	}

	contentType := http.DetectContentType(head)
	ext, ok := extensions[contentType]
	if !ok {
		return "", apperror.Validation("invalid cover image", map[string]string{
			"coverImage": fmt.Sprintf("unsupported type %s", contentType),
		})
	}

	name := uuid.NewString() + ext
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := c.bucket.NewWriter(writeCtx, name, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("open cover writer: %w", err)
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(w, io.LimitReader(body, c.maxBytes+1))
	if err == nil && written > c.maxBytes {
		err = apperror.Validation("invalid cover image", map[string]string{
			"coverImage": fmt.Sprintf("must not exceed %d bytes", c.maxBytes),
		})
	}
	if err != nil {
		// Cancelling before Close discards the partial blob.
		cancel()
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("store cover: %w", err)
	}
	return name, nil
}

// Open returns the stored cover and its content type.
func (c *Covers) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if !validName(name) {
		return nil, "", apperror.NotFound("cover", name)
	}
	r, err := c.bucket.NewReader(ctx, name, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, "", apperror.NotFound("cover", name)
		}
		return nil, "", fmt.Errorf("open cover %s: %w", name, err)
	}
	return r, r.ContentType(), nil
}

// Delete removes a cover. Missing covers are ignored.
func (c *Covers) Delete(ctx context.Context, name string) error {
	if !validName(name) {
		return nil
	}
	if err := c.bucket.Delete(ctx, name); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete cover %s: %w", name, err)
	}
	return nil
}

func (c *Covers) Close() error {
	return c.bucket.Close()
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}
