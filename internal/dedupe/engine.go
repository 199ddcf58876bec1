// Package dedupe wires the detection pipeline: walk, size-bucket, hash,
// verify, report, remediate. Data flows strictly left to right; groups are
// never mutated after verification.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"

	"github.com/musictools/dedup/internal/hash"
	"github.com/musictools/dedup/internal/remediate"
	"github.com/musictools/dedup/internal/report"
	"github.com/musictools/dedup/internal/scan"
	"github.com/musictools/dedup/internal/store"
	"github.com/musictools/dedup/internal/utils"
	"github.com/musictools/dedup/internal/verify"
)

type Options struct {
	Root      string
	ExtCSV    string
	Excludes  []string
	Workers   int
	OutPrefix string
	Mode      remediate.Mode
	DryRun    bool
	Export    report.Format
	Syncer    store.Syncer
}

type Engine struct {
	opts   Options
	hasher *hash.Pool
}

// New validates the invocation and builds an engine. Validation failures are
// ConfigErrors: the user must fix the invocation, nothing was started.
func New(opts Options) (*Engine, error) {
	root, err := utils.ResolvePath(opts.Root)
	if err != nil {
		return nil, NewConfigError("invalid root %q: %v", opts.Root, err)
	}
	if !utils.DirExists(root) {
		return nil, NewConfigError("root not found or not a directory: %s", root)
	}
	opts.Root = root

	prefix, err := utils.ResolvePath(opts.OutPrefix)
	if err != nil {
		return nil, NewConfigError("invalid out-prefix %q: %v", opts.OutPrefix, err)
	}
	opts.OutPrefix = prefix

	switch opts.Mode {
	case remediate.ModeList, remediate.ModeLink, remediate.ModeDelete:
	default:
		return nil, NewConfigError("exactly one of --list, --link or --delete is required")
	}
	if opts.DryRun && opts.Mode == remediate.ModeList {
		return nil, NewConfigError("--dry-run only applies to --link or --delete")
	}
	if opts.Export != report.FormatNone && opts.Mode != remediate.ModeList {
		return nil, NewConfigError("--export-format only applies to --list")
	}

	return &Engine{
		opts:   opts,
		hasher: hash.NewPool(opts.Workers),
	}, nil
}

// Run executes the full pipeline. Reports are always written before any
// remediation acts. The returned result carries planned/applied/skipped
// counts; in list mode only Planned is populated.
func (e *Engine) Run(ctx context.Context) (*remediate.Result, error) {
	// One run at a time per report prefix; interleaved mutations over the
	// same tree would break dry-run parity and the audit trail.
	lock := flock.New(e.opts.OutPrefix + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another dedup run holds %s", lock.Path())
	}
	defer lock.Unlock()

	groups, err := e.detect(ctx)
	if err != nil {
		return nil, err
	}

	nDupes := 0
	for _, g := range groups {
		nDupes += len(g.Files) - 1
	}
	slog.Info("detection complete", "groups", len(groups), "extra_copies", nDupes)

	writer := report.NewWriter(e.opts.OutPrefix)
	if err := writer.Write(groups); err != nil {
		return nil, err
	}
	slog.Info("wrote reports", "groups", writer.GroupsPath(), "dupes", writer.DupesPath())

	if e.opts.Syncer != nil {
		e.sync(ctx, groups)
	}

	switch e.opts.Mode {
	case remediate.ModeLink:
		res := remediate.NewEngine(e.opts.DryRun).Link(ctx, groups)
		e.summarize("link", res)
		return res, nil
	case remediate.ModeDelete:
		res := remediate.NewEngine(e.opts.DryRun).Delete(ctx, groups)
		e.summarize("delete", res)
		return res, nil
	default:
		if e.opts.Export != report.FormatNone {
			path, err := writer.Export(groups, e.opts.Export)
			if err != nil {
				return nil, err
			}
			slog.Info("wrote export", "format", e.opts.Export, "path", path)
		}
		return &remediate.Result{Planned: nDupes}, nil
	}
}

// detect runs walk -> size buckets -> hash -> verify and returns the sorted
// duplicate groups.
func (e *Engine) detect(ctx context.Context) ([]verify.Group, error) {
	walker := scan.NewWalker(e.opts.Root, e.opts.ExtCSV, e.opts.Excludes)
	index := scan.NewSizeIndex()
	err := walker.Walk(func(m scan.FileMeta) {
		index.Add(m)
		if index.Total()%5000 == 0 {
			slog.Debug("indexing", "files", index.Total())
		}
	})
	if err != nil {
		return nil, err
	}

	candidates := index.Candidates()
	var candidateBytes uint64
	for _, c := range candidates {
		candidateBytes += uint64(c.Size)
	}
	slog.Info("hashing candidates",
		"files", len(candidates),
		"of", index.Total(),
		"bytes", humanize.Bytes(candidateBytes))

	buckets := e.hasher.HashAll(ctx, candidates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return verify.Confirm(buckets), nil
}

// sync pushes per-file hash metadata through the external Syncer port.
// Store failures are warnings; the run never depends on the collaborator.
func (e *Engine) sync(ctx context.Context, groups []verify.Group) {
	var rows, attached int
	for _, g := range groups {
		for _, p := range g.Files {
			id, exists, err := e.opts.Syncer.UpsertFileMeta(ctx, p, g.Size, g.Digest)
			if err != nil {
				slog.Warn("db sync upsert failed", "path", p, "error", err)
				continue
			}
			rows++
			if !exists {
				continue
			}
			if err := e.opts.Syncer.AttachIdentifier(ctx, id, store.KindSHA256, g.Digest); err != nil {
				slog.Warn("db sync attach failed", "path", p, "error", err)
				continue
			}
			attached++
		}
	}
	slog.Info("db sync", "rows", rows, "identifiers", attached)
}

func (e *Engine) summarize(action string, res *remediate.Result) {
	slog.Info("summary",
		"action", action,
		"dry_run", e.opts.DryRun,
		"planned", res.Planned,
		"applied", res.Applied,
		"skipped", res.Skipped)
	for _, s := range res.Skips {
		slog.Debug("skipped", "path", s.Path, "reason", s.Reason)
	}
}
