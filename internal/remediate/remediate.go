// Package remediate applies the chosen action to verified duplicate groups.
// The keeper of a group is never a mutation target; each duplicate path is
// touched by at most one action. Dry-run shares the exact eligibility logic
// with the real run and differs only in whether the final mutating call
// executes.
package remediate

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/musictools/dedup/internal/verify"
)

// Mode selects the remediation action. Exactly one is chosen per invocation.
type Mode string

const (
	ModeList   Mode = "list"
	ModeLink   Mode = "link"
	ModeDelete Mode = "delete"
)

// Reason classifies a skipped duplicate.
type Reason string

const (
	ReasonAlreadyLinked Reason = "already-linked"
	ReasonCrossDevice   Reason = "cross-device"
	ReasonMissing       Reason = "missing"
	ReasonIOError       Reason = "io-error"
	ReasonPermission    Reason = "permission-denied"
)

type Skip struct {
	Path   string
	Reason Reason
}

// Result summarizes one remediation pass.
type Result struct {
	Planned int
	Applied int
	Skipped int
	Skips   []Skip
}

func (r *Result) skip(path string, reason Reason) {
	r.Skipped++
	r.Skips = append(r.Skips, Skip{Path: path, Reason: reason})
	slog.Debug("skip", "path", path, "reason", reason)
}

// tmpSuffix names the sibling temp link used for the atomic swap.
const tmpSuffix = ".hl_tmp"

// Engine applies LINK or DELETE over duplicate groups. The syscall seams are
// fields so tests can simulate cross-device trees without two mounts.
type Engine struct {
	dryRun bool

	fileID func(path string) (dev, ino uint64, err error)
	link   func(oldname, newname string) error
}

func NewEngine(dryRun bool) *Engine {
	return &Engine{
		dryRun: dryRun,
		fileID: fileID,
		link:   os.Link,
	}
}

// Link replaces every eligible duplicate with a hardlink to its group's
// keeper. The swap creates the link at a temp sibling name and renames it
// over the duplicate, so the duplicate path is never absent from the tree.
// Once a swap has begun it runs to completion; cancellation is honored only
// between files.
func (e *Engine) Link(ctx context.Context, groups []verify.Group) *Result {
	res := &Result{}
	for _, g := range groups {
		keep := g.Keeper()
		for _, dupe := range g.Dupes() {
			if ctx.Err() != nil {
				return res
			}
			res.Planned++

			kdev, kino, err := e.fileID(keep)
			if err != nil {
				res.skip(dupe, reasonFor(err))
				continue
			}
			ddev, dino, err := e.fileID(dupe)
			if err != nil {
				res.skip(dupe, reasonFor(err))
				continue
			}
			if kdev == ddev && kino == dino {
				res.skip(dupe, ReasonAlreadyLinked)
				continue
			}
			if kdev != ddev {
				// Hardlinks cannot cross filesystem devices.
				res.skip(dupe, ReasonCrossDevice)
				continue
			}

			if e.dryRun {
				slog.Info("dry-run link", "dupe", dupe, "keeper", keep)
				continue
			}

			if err := e.swap(keep, dupe); err != nil {
				res.skip(dupe, reasonFor(err))
				continue
			}
			res.Applied++
			slog.Info("linked", "dupe", dupe, "keeper", keep)
		}
	}
	return res
}

// swap atomically replaces dupe with a hardlink to keep. On any failure the
// temp link is removed and the original dupe is left untouched.
func (e *Engine) swap(keep, dupe string) error {
	tmp := dupe + tmpSuffix
	if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := e.link(keep, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dupe); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Delete removes every duplicate. An already-missing duplicate is an
// expected skip, not an error; a previous run may have removed it.
func (e *Engine) Delete(ctx context.Context, groups []verify.Group) *Result {
	res := &Result{}
	for _, g := range groups {
		for _, dupe := range g.Dupes() {
			if ctx.Err() != nil {
				return res
			}
			res.Planned++

			if _, err := os.Lstat(dupe); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					res.skip(dupe, ReasonMissing)
				} else {
					res.skip(dupe, reasonFor(err))
				}
				continue
			}

			if e.dryRun {
				slog.Info("dry-run delete", "path", dupe)
				continue
			}

			if err := os.Remove(dupe); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					res.skip(dupe, ReasonMissing)
				} else {
					res.skip(dupe, reasonFor(err))
				}
				continue
			}
			res.Applied++
			slog.Info("deleted", "path", dupe)
		}
	}
	return res
}

func reasonFor(err error) Reason {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ReasonMissing
	case errors.Is(err, fs.ErrPermission):
		return ReasonPermission
	default:
		return ReasonIOError
	}
}
