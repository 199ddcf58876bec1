package hash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/musictools/dedup/internal/scan"
)

const (
	// ChunkSize is the read size for hashing and byte comparison. Large
	// enough to amortize syscall overhead, small enough to keep per-file
	// memory constant regardless of file size.
	ChunkSize = 4 * 1024 * 1024

	// DefaultWorkers is the hashing pool size. Hashing is I/O bound, so a
	// small constant beats NumCPU on spinning disks and network mounts.
	DefaultWorkers = 6
)

// Record is one hashed file.
type Record struct {
	Path   string
	Size   int64
	Digest string
}

// BucketKey groups records that agree on both size and content digest.
type BucketKey struct {
	Size   int64
	Digest string
}

// DigestFunc computes the content digest of one file.
type DigestFunc func(path string) (string, error)

type Pool struct {
	workers int
	digest  DigestFunc
}

type Option func(*Pool)

// WithDigestFunc replaces the SHA-256 file digest. Used by tests to inject
// engineered collisions.
func WithDigestFunc(fn DigestFunc) Option {
	return func(p *Pool) {
		p.digest = fn
	}
}

func NewPool(workers int, opts ...Option) *Pool {
	if workers < 1 {
		workers = DefaultWorkers
	}
	p := &Pool{
		workers: workers,
		digest:  SumFile,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HashAll computes a digest for every candidate file and merges the results
// into (size, digest) buckets. Workers share nothing with each other; the
// single collector loop below is the only writer of the bucket map, so the
// merge cannot lose updates and its outcome does not depend on completion
// order. A file that fails to read is logged and dropped; it never aborts
// the stage.
func (p *Pool) HashAll(ctx context.Context, files []scan.FileMeta) map[BucketKey][]string {
	jobs := make(chan scan.FileMeta, len(files))
	for _, f := range files {
		jobs <- f
	}
	close(jobs)

	results := make(chan Record)
	var g errgroup.Group
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case f, ok := <-jobs:
					if !ok {
						return nil
					}
					digest, err := p.digest(f.Path)
					if err != nil {
						slog.Warn("hash failed, dropping file", "path", f.Path, "error", err)
						continue
					}
					select {
					case results <- Record{Path: f.Path, Size: f.Size, Digest: digest}:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		})
	}
	go func() {
		_ = g.Wait() // only error is context cancellation
		close(results)
	}()

	buckets := make(map[BucketKey][]string)
	done := 0
	for rec := range results {
		key := BucketKey{Size: rec.Size, Digest: rec.Digest}
		buckets[key] = append(buckets[key], rec.Path)
		done++
		if done%1000 == 0 {
			slog.Debug("hashing progress", "done", done, "total", len(files))
		}
	}
	return buckets
}

// SumFile returns the hex SHA-256 of the file's full byte content, read in
// ChunkSize chunks.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
