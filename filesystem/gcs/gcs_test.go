// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gcs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/gomlx/hlo/types/status"
)

func TestParsePath(t *testing.T) {
	bucket, object, err := ParsePath("gs://my-bucket/models/weights.bin")
	require.NoError(t, err)
	require.Equal(t, "my-bucket", bucket)
	require.Equal(t, "models/weights.bin", object)

	for _, path := range []string{"s3://bucket/object", "my-bucket/object", "gs://", "gs:///object", "gs://bucket", "gs://bucket/"} {
		_, _, err = ParsePath(path)
		require.Error(t, err, "path %q", path)
		require.Equal(t, codes.InvalidArgument, status.Code(err), "path %q", path)
	}
}

func TestConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte("block_size: 1024\nmax_staleness: 30s\n"))
	require.NoError(t, err)
	require.Equal(t, 1024, cfg.BlockSize)
	require.Equal(t, DefaultConfig().MaxBytes, cfg.MaxBytes)
	require.Equal(t, 30*time.Second, cfg.MaxStaleness)

	_, err = ParseConfig([]byte("max_bytes: -1\n"))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = ParseConfig([]byte("credentials_file: /does/not/exist.json\n"))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = ParseConfig([]byte("block_size: [\n"))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	path := filepath.Join(t.TempDir(), "gcs.yaml")
	must.M(os.WriteFile(path, []byte("max_bytes: 2048\n"), 0o644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, int64(2048), cfg.MaxBytes)
}

// objectFetcher serves the contents of in-memory objects, counting the fetches.
type objectFetcher struct {
	objects map[string][]byte
	calls   int
}

func (o *objectFetcher) fetch(_ context.Context, filename string, offset int64, n int) ([]byte, error) {
	o.calls++
	content, found := o.objects[filename]
	if !found {
		return nil, status.NotFoundf("GCS object %q not found", filename)
	}
	if offset >= int64(len(content)) {
		return nil, nil
	}
	return content[offset:min(offset+int64(n), int64(len(content)))], nil
}

func TestFileSystem(t *testing.T) {
	const path = "gs://bucket/data.txt"
	objects := &objectFetcher{objects: map[string][]byte{path: []byte("0123456789abcdef")}}
	fs, err := newFileSystem(objects.fetch, Config{BlockSize: 4, MaxBytes: 64})
	require.NoError(t, err)
	defer func() { require.NoError(t, fs.Close()) }()
	ctx := context.Background()

	data, err := fs.ReadAt(ctx, path, 2, 5)
	require.NoError(t, err)
	require.Equal(t, "23456", string(data))
	require.Equal(t, 2, objects.calls)

	data, err = fs.ReadAt(ctx, path, 4, 4)
	require.NoError(t, err)
	require.Equal(t, "4567", string(data))
	require.Equal(t, 2, objects.calls)

	// Overwritten object: served from the cache until invalidated.
	objects.objects[path] = []byte("ABCDEFGHIJKLMNOP")
	data, err = fs.ReadAt(ctx, path, 4, 4)
	require.NoError(t, err)
	require.Equal(t, "4567", string(data))
	fs.Invalidate(path)
	data, err = fs.ReadAt(ctx, path, 4, 4)
	require.NoError(t, err)
	require.Equal(t, "EFGH", string(data))

	_, err = fs.ReadAt(ctx, path, 20, 4)
	require.Equal(t, codes.OutOfRange, status.Code(err))
	_, err = fs.ReadAt(ctx, "gs://bucket/missing", 0, 4)
	require.Equal(t, codes.NotFound, status.Code(err))
	_, err = fs.ReadAt(ctx, "bucket/data.txt", 0, 4)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = fs.ReadAt(ctx, path, -1, 4)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = fs.Size(ctx, path)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestFileReadAt(t *testing.T) {
	const path = "gs://bucket/file"
	objects := &objectFetcher{objects: map[string][]byte{path: []byte("hello world")}}
	fs, err := newFileSystem(objects.fetch, Config{BlockSize: 4, MaxBytes: 16})
	require.NoError(t, err)
	defer func() { require.NoError(t, fs.Close()) }()
	f := &File{fs: fs, ctx: context.Background(), path: path, size: 11}

	p := make([]byte, 5)
	n, err := f.ReadAt(p, 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(p))

	n, err = f.ReadAt(p, 8)
	require.Equal(t, io.EOF, err)
	require.Equal(t, 3, n)
	require.Equal(t, "rld", string(p[:n]))

	n, err = f.ReadAt(p, 11)
	require.Equal(t, io.EOF, err)
	require.Zero(t, n)

	content, err := io.ReadAll(io.NewSectionReader(f, 0, f.Size()))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(content))
}
