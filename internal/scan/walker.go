package scan

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is an optional gitignore-style rule file at the walk root.
// Its rules apply in addition to any --exclude-glob patterns.
const IgnoreFileName = ".dedupignore"

// FileMeta describes a single regular file seen during a walk.
type FileMeta struct {
	Path string
	Size int64
}

// Walker enumerates regular files under a root directory, honoring an
// extension filter and exclude globs. Walks are restartable: every call to
// Walk re-traverses the tree from scratch.
type Walker struct {
	root     string
	exts     mapset.Set[string] // nil = match all regular files
	excludes []string
	ignore   *gitignore.GitIgnore
}

func NewWalker(root string, extCSV string, excludes []string) *Walker {
	w := &Walker{
		root:     filepath.Clean(root),
		exts:     ParseExts(extCSV),
		excludes: excludes,
	}

	ignorePath := filepath.Join(w.root, IgnoreFileName)
	if _, err := os.Stat(ignorePath); err == nil {
		ign, err := gitignore.CompileIgnoreFile(ignorePath)
		if err != nil {
			slog.Warn("failed to parse ignore file", "path", ignorePath, "error", err)
		} else {
			slog.Info("loaded ignore file", "path", ignorePath)
			w.ignore = ign
		}
	}

	return w
}

// ParseExts normalizes a comma-separated extension list into a lowercase
// dotted set ("flac, .TXT" -> {".flac", ".txt"}). An empty or blank CSV
// returns nil, which matches all regular files.
func ParseExts(extCSV string) mapset.Set[string] {
	if strings.TrimSpace(extCSV) == "" {
		return nil
	}
	exts := mapset.NewSet[string]()
	for _, e := range strings.Split(extCSV, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts.Add(strings.ToLower(e))
	}
	if exts.Cardinality() == 0 {
		return nil
	}
	return exts
}

// Walk traverses the root and calls visit for every regular file that passes
// the extension and exclude filters. Per-entry I/O errors (permission denied,
// vanished files) skip the entry and continue; only a failure to read the
// root itself is returned.
func (w *Walker) Walk(visit func(FileMeta)) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, walkErr error) error {
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return fmt.Errorf("resolve relative path for %q: %w", path, relErr)
		}
		rel = filepath.ToSlash(rel)

		if walkErr != nil {
			if rel == "." {
				return fmt.Errorf("walk root %q: %w", w.root, walkErr)
			}
			slog.Warn("skipping unreadable entry", "path", path, "error", walkErr)
			return nil
		}

		if d.IsDir() {
			// Prune excluded directories eagerly, before descent.
			if rel != "." && w.excluded(rel) {
				return fs.SkipDir
			}
			return nil
		}

		// Regular files only; symlinks and special files are never candidates.
		if !d.Type().IsRegular() {
			return nil
		}
		if w.excluded(rel) {
			return nil
		}
		if w.exts != nil && !w.exts.Contains(strings.ToLower(filepath.Ext(d.Name()))) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("skipping file, stat failed", "path", path, "error", err)
			return nil
		}

		visit(FileMeta{Path: path, Size: info.Size()})
		return nil
	})
}

// excluded reports whether the POSIX-style relative path matches any exclude
// glob, either directly or with "/**" appended (so the pattern "MUSIC/**"
// also excludes the MUSIC directory itself).
func (w *Walker) excluded(rel string) bool {
	for _, pat := range w.excludes {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pat, rel+"/**"); ok {
			return true
		}
	}
	if w.ignore != nil && w.ignore.MatchesPath(rel) {
		return true
	}
	return false
}
