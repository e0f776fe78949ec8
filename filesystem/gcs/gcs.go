// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gcs reads Google Cloud Storage objects through a blockcache.Cache.
//
// Objects are named by "gs://<bucket>/<object>" paths.
package gcs

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/filesystem/blockcache"
	"github.com/gomlx/hlo/types/status"
)

// Scheme prefix of GCS paths.
const Scheme = "gs://"

// ParsePath splits a "gs://bucket/object" path. Errors are InvalidArgument.
func ParsePath(path string) (bucket, object string, err error) {
	rest, found := strings.CutPrefix(path, Scheme)
	if !found {
		return "", "", status.InvalidArgumentf("GCS path %q doesn't start with %q", path, Scheme)
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", status.InvalidArgumentf("GCS path %q has no bucket", path)
	}
	if object == "" {
		return "", "", status.InvalidArgumentf("GCS path %q has no object name", path)
	}
	return bucket, object, nil
}

// Fetcher returns a blockcache.Fetcher that reads ranges of GCS objects with the given client.
//
// A range starting at or after the end of the object returns no bytes.
func Fetcher(client *storage.Client) blockcache.Fetcher {
	return func(ctx context.Context, filename string, offset int64, n int) ([]byte, error) {
		bucket, object, err := ParsePath(filename)
		if err != nil {
			return nil, err
		}
		log := klog.FromContext(ctx)
		startedAt := time.Now()
		reader, err := client.Bucket(bucket).Object(object).NewRangeReader(ctx, offset, int64(n))
		if err != nil {
			if isRangeNotSatisfiable(err) {
				log.V(2).Info("range past the end of the object", "url", filename, "offset", offset)
				return nil, nil
			}
			return nil, mapError(err, filename)
		}
		defer func() { _ = reader.Close() }()
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %d bytes at offset %d of %q", n, offset, filename)
		}
		log.V(3).Info("fetched block from GCS", "url", filename, "offset", offset, "bytes", len(data),
			"duration", time.Since(startedAt))
		return data, nil
	}
}

func isRangeNotSatisfiable(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusRequestedRangeNotSatisfiable
}

func mapError(err error, path string) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return status.NotFoundf("GCS object %q not found", path)
	}
	return errors.Wrapf(err, "accessing GCS object %q", path)
}

// FileSystem serves reads of GCS objects from a shared block cache.
type FileSystem struct {
	client     *storage.Client
	ownsClient bool
	cache      *blockcache.Cache
}

// New creates a FileSystem with its own storage client, authenticated with cfg.CredentialsFile if set.
func New(ctx context.Context, cfg Config) (*FileSystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS storage client")
	}
	fs, err := NewWithClient(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	fs.ownsClient = true
	return fs, nil
}

// NewWithClient creates a FileSystem using the given client, which is not closed by FileSystem.Close.
func NewWithClient(client *storage.Client, cfg Config) (*FileSystem, error) {
	fs, err := newFileSystem(Fetcher(client), cfg)
	if err != nil {
		return nil, err
	}
	fs.client = client
	return fs, nil
}

func newFileSystem(fetcher blockcache.Fetcher, cfg Config) (*FileSystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FileSystem{
		cache: blockcache.New(fetcher, cfg.BlockSize, cfg.MaxBytes, cfg.MaxStaleness),
	}, nil
}

// Close the block cache, and the storage client if it was created by New.
func (fs *FileSystem) Close() error {
	fs.cache.Close()
	if fs.ownsClient {
		return fs.client.Close()
	}
	return nil
}

// ReadAt returns up to n bytes of the object at path, starting at offset.
//
// Reading at or past the end of the object fails with OutOfRange.
func (fs *FileSystem) ReadAt(ctx context.Context, path string, offset int64, n int) ([]byte, error) {
	if _, _, err := ParsePath(path); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, status.InvalidArgumentf("negative offset %d reading %q", offset, path)
	}
	data, err := fs.cache.Read(ctx, path, offset, n)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %q", path)
	}
	return data, nil
}

// Size returns the size in bytes of the object at path.
func (fs *FileSystem) Size(ctx context.Context, path string) (int64, error) {
	bucket, object, err := ParsePath(path)
	if err != nil {
		return 0, err
	}
	if fs.client == nil {
		return 0, status.FailedPreconditionf("GCS file system has no storage client")
	}
	attrs, err := fs.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return 0, mapError(err, path)
	}
	return attrs.Size, nil
}

// Invalidate drops the cached blocks of the object at path, for instance after it was overwritten.
func (fs *FileSystem) Invalidate(path string) {
	fs.cache.RemoveFile(path)
}

// File is an io.ReaderAt over one GCS object.
type File struct {
	fs   *FileSystem
	ctx  context.Context
	path string
	size int64
}

// Open returns the object at path as a File. The context is used for all reads of the file.
func (fs *FileSystem) Open(ctx context.Context, path string) (*File, error) {
	size, err := fs.Size(ctx, path)
	if err != nil {
		return nil, err
	}
	return &File{fs: fs, ctx: ctx, path: path, size: size}, nil
}

// Size of the object when it was opened.
func (f *File) Size() int64 { return f.size }

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.size {
		return 0, io.EOF
	}
	data, err := f.fs.ReadAt(f.ctx, f.path, off, len(p))
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

var _ io.ReaderAt = (*File)(nil)
