package hash

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musictools/dedup/internal/scan"
)

func writeFile(t *testing.T, path, content string) scan.FileMeta {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return scan.FileMeta{Path: path, Size: int64(len(content))}
}

func TestSumFile_KnownDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	digest, err := SumFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", digest)
}

func TestSumFile_MissingFile(t *testing.T) {
	_, err := SumFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestHashAll_BucketsBySizeAndDigest(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "same-content")
	b := writeFile(t, filepath.Join(dir, "b"), "same-content")
	c := writeFile(t, filepath.Join(dir, "c"), "diff-content")

	buckets := NewPool(4).HashAll(context.Background(), []scan.FileMeta{a, b, c})
	require.Len(t, buckets, 2)

	for key, paths := range buckets {
		if len(paths) == 2 {
			assert.ElementsMatch(t, []string{a.Path, b.Path}, paths)
		} else {
			assert.Equal(t, []string{c.Path}, paths)
		}
		assert.Equal(t, int64(len("same-content")), key.Size)
	}
}

func TestHashAll_DropsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "x")
	missing := scan.FileMeta{Path: filepath.Join(dir, "gone"), Size: 1}

	buckets := NewPool(2).HashAll(context.Background(), []scan.FileMeta{a, missing})
	require.Len(t, buckets, 1)
	for _, paths := range buckets {
		assert.Equal(t, []string{a.Path}, paths)
	}
}

// A parallel pool merging through the single collector must not lose updates,
// and its bucket contents must not depend on completion order.
func TestHashAll_StressNoLostUpdates(t *testing.T) {
	dir := t.TempDir()
	const n = 400
	files := make([]scan.FileMeta, 0, n)
	for i := 0; i < n; i++ {
		// Two files per payload so every bucket has exactly two members.
		content := fmt.Sprintf("payload-%04d", i/2)
		files = append(files, writeFile(t, filepath.Join(dir, fmt.Sprintf("f%04d", i)), content))
	}

	first := NewPool(8).HashAll(context.Background(), files)

	seen := 0
	for _, paths := range first {
		assert.Len(t, paths, 2)
		seen += len(paths)
	}
	assert.Equal(t, n, seen)

	second := NewPool(3).HashAll(context.Background(), files)
	require.Len(t, second, len(first))
	for key, paths := range first {
		assert.ElementsMatch(t, paths, second[key])
	}
}

func TestHashAll_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	files := []scan.FileMeta{writeFile(t, filepath.Join(dir, "a"), "x")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Abandoning in-flight work is safe; the files just go unreported.
	buckets := NewPool(2).HashAll(ctx, files)
	assert.LessOrEqual(t, len(buckets), 1)
}

func TestWithDigestFunc_Injectable(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "one")
	b := writeFile(t, filepath.Join(dir, "b"), "two")

	pool := NewPool(2, WithDigestFunc(func(string) (string, error) {
		return "collide", nil
	}))
	buckets := pool.HashAll(context.Background(), []scan.FileMeta{a, b})
	require.Len(t, buckets, 1)
	assert.ElementsMatch(t, []string{a.Path, b.Path}, buckets[BucketKey{Size: 3, Digest: "collide"}])
}
