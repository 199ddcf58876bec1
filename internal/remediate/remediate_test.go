package remediate

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musictools/dedup/internal/verify"
)

func fixtureGroup(t *testing.T, dir string) verify.Group {
	t.Helper()
	keep := filepath.Join(dir, "keep.flac")
	dupe := filepath.Join(dir, "dupe.flac")
	require.NoError(t, os.WriteFile(keep, []byte("identical-content"), 0o644))
	require.NoError(t, os.WriteFile(dupe, []byte("identical-content"), 0o644))
	return verify.Group{Size: 17, Digest: "d", Files: []string{keep, dupe}}
}

func listTree(t *testing.T, dir string) map[string]int64 {
	t.Helper()
	out := map[string]int64{}
	require.NoError(t, filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		if !d.IsDir() {
			info, err := d.Info()
			require.NoError(t, err)
			out[path] = info.Size()
		}
		return nil
	}))
	return out
}

func TestLink_ReplacesDupeWithHardlink(t *testing.T) {
	dir := t.TempDir()
	g := fixtureGroup(t, dir)

	res := NewEngine(false).Link(context.Background(), []verify.Group{g})
	assert.Equal(t, 1, res.Planned)
	assert.Equal(t, 1, res.Applied)
	assert.Zero(t, res.Skipped)

	ki, err := os.Stat(g.Keeper())
	require.NoError(t, err)
	di, err := os.Stat(g.Dupes()[0])
	require.NoError(t, err)
	assert.True(t, os.SameFile(ki, di), "dupe should share the keeper's inode")

	data, err := os.ReadFile(g.Dupes()[0])
	require.NoError(t, err)
	assert.Equal(t, "identical-content", string(data))

	// No temp artifacts left behind.
	assert.NoFileExists(t, g.Dupes()[0]+tmpSuffix)
}

func TestLink_Idempotent(t *testing.T) {
	dir := t.TempDir()
	g := fixtureGroup(t, dir)
	groups := []verify.Group{g}

	first := NewEngine(false).Link(context.Background(), groups)
	require.Equal(t, 1, first.Applied)

	second := NewEngine(false).Link(context.Background(), groups)
	assert.Equal(t, 1, second.Planned)
	assert.Zero(t, second.Applied)
	require.Equal(t, 1, second.Skipped)
	assert.Equal(t, ReasonAlreadyLinked, second.Skips[0].Reason)
}

func TestLink_DryRunMutatesNothing(t *testing.T) {
	dir := t.TempDir()
	g := fixtureGroup(t, dir)
	before := listTree(t, dir)

	res := NewEngine(true).Link(context.Background(), []verify.Group{g})
	assert.Equal(t, 1, res.Planned)
	assert.Zero(t, res.Applied)
	assert.Zero(t, res.Skipped)

	assert.Equal(t, before, listTree(t, dir))

	ki, err := os.Stat(g.Keeper())
	require.NoError(t, err)
	di, err := os.Stat(g.Dupes()[0])
	require.NoError(t, err)
	assert.False(t, os.SameFile(ki, di))
}

func TestLink_CrossDeviceSkipsWithoutSyscall(t *testing.T) {
	dir := t.TempDir()
	g := fixtureGroup(t, dir)

	e := NewEngine(false)
	devs := map[string]uint64{g.Keeper(): 1, g.Dupes()[0]: 2}
	ino := uint64(0)
	e.fileID = func(path string) (uint64, uint64, error) {
		ino++
		return devs[path], ino, nil
	}
	e.link = func(oldname, newname string) error {
		t.Fatalf("link syscall must not run for cross-device pair (%s -> %s)", newname, oldname)
		return nil
	}

	res := e.Link(context.Background(), []verify.Group{g})
	assert.Zero(t, res.Applied)
	require.Equal(t, 1, res.Skipped)
	assert.Equal(t, ReasonCrossDevice, res.Skips[0].Reason)
}

func TestLink_MissingDupe(t *testing.T) {
	dir := t.TempDir()
	g := fixtureGroup(t, dir)
	require.NoError(t, os.Remove(g.Dupes()[0]))

	res := NewEngine(false).Link(context.Background(), []verify.Group{g})
	require.Equal(t, 1, res.Skipped)
	assert.Equal(t, ReasonMissing, res.Skips[0].Reason)
}

func TestLink_FailureClassifiedAndCleanedUp(t *testing.T) {
	dir := t.TempDir()
	g := fixtureGroup(t, dir)

	e := NewEngine(false)
	e.link = func(oldname, newname string) error {
		return fs.ErrPermission
	}

	res := e.Link(context.Background(), []verify.Group{g})
	assert.Zero(t, res.Applied)
	require.Equal(t, 1, res.Skipped)
	assert.Equal(t, ReasonPermission, res.Skips[0].Reason)
	assert.FileExists(t, g.Dupes()[0], "failed swap must leave the dupe in place")
}

func TestDelete_RemovesDupesKeepsKeeper(t *testing.T) {
	dir := t.TempDir()
	g := fixtureGroup(t, dir)

	res := NewEngine(false).Delete(context.Background(), []verify.Group{g})
	assert.Equal(t, 1, res.Planned)
	assert.Equal(t, 1, res.Applied)
	assert.Zero(t, res.Skipped)

	assert.FileExists(t, g.Keeper())
	assert.NoFileExists(t, g.Dupes()[0])
}

func TestDelete_DryRunMutatesNothing(t *testing.T) {
	dir := t.TempDir()
	g := fixtureGroup(t, dir)
	before := listTree(t, dir)

	res := NewEngine(true).Delete(context.Background(), []verify.Group{g})
	assert.Equal(t, 1, res.Planned)
	assert.Zero(t, res.Applied)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, before, listTree(t, dir))
}

func TestDelete_MissingIsExpectedSkip(t *testing.T) {
	dir := t.TempDir()
	g := fixtureGroup(t, dir)
	require.NoError(t, os.Remove(g.Dupes()[0]))

	res := NewEngine(false).Delete(context.Background(), []verify.Group{g})
	assert.Zero(t, res.Applied)
	require.Equal(t, 1, res.Skipped)
	assert.Equal(t, ReasonMissing, res.Skips[0].Reason)
}

func TestLink_CancelledBetweenFiles(t *testing.T) {
	dir := t.TempDir()
	g := fixtureGroup(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewEngine(false).Link(ctx, []verify.Group{g})
	assert.Zero(t, res.Planned)
	assert.Zero(t, res.Applied)
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, ReasonMissing, reasonFor(fs.ErrNotExist))
	assert.Equal(t, ReasonPermission, reasonFor(fs.ErrPermission))
	assert.Equal(t, ReasonIOError, reasonFor(fs.ErrClosed))
}
