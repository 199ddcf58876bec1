package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/musictools/dedup/internal/dedupe"
	"github.com/musictools/dedup/internal/hash"
	"github.com/musictools/dedup/internal/remediate"
	"github.com/musictools/dedup/internal/report"
	"github.com/musictools/dedup/internal/store"
	"github.com/musictools/dedup/internal/utils"
	"github.com/musictools/dedup/internal/version"
)

const (
	defaultExts      = ".flac,.txt"
	defaultOutPrefix = "~/dedup_report"
	defaultDBPath    = "~/.dedup/library.db"
)

var rootCmd = &cobra.Command{
	Use:     "dedup",
	Short:   "Exact duplicate finder and fixer (bit-for-bit)",
	Long:    "Scans a file tree and proves byte-for-byte equality via a size -> sha256 -> verify pipeline.\nDuplicates can be listed, replaced with hardlinks to a canonical keeper, or deleted.",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix("DEDUP")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: runDedup,
}

func init() {
	f := rootCmd.Flags()
	f.SortFlags = false
	f.String("root", "", "Root directory to scan (required)")
	f.String("ext", defaultExts, "Comma-separated extensions; empty matches all regular files")
	f.StringArray("exclude-glob", nil, "Glob to exclude, matched against relative paths (repeatable)")
	f.Int("workers", hash.DefaultWorkers, "Hashing workers (I/O bound)")
	f.Bool("progress", false, "Emit progress to stderr")
	f.String("out-prefix", defaultOutPrefix, "Prefix for report artifacts (_groups.tsv, _dupes_only.txt)")
	f.Bool("list", false, "Only list/report duplicates")
	f.Bool("link", false, "Replace duplicates with hardlinks to keepers (reversible)")
	f.Bool("delete", false, "Delete duplicates (destructive)")
	f.Bool("dry-run", false, "With --link/--delete: decide everything, mutate nothing")
	f.Bool("db-sync", false, "Record size/sha256 metadata in the library database")
	f.String("db-path", defaultDBPath, "Library database for --db-sync")
	f.String("export-format", "", "Extra duplicate export in list mode: txt, csv, json or songshift")
}

func runDedup(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	setupLogging(viper.GetBool("progress"))

	slog.Debug("dedup", "version", version.Short())

	mode, err := selectMode()
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(viper.GetString("export-format"))
	if err != nil {
		return dedupe.NewConfigError("%v", err)
	}

	opts := dedupe.Options{
		Root:      viper.GetString("root"),
		ExtCSV:    viper.GetString("ext"),
		Excludes:  viper.GetStringSlice("exclude-glob"),
		Workers:   viper.GetInt("workers"),
		OutPrefix: viper.GetString("out-prefix"),
		Mode:      mode,
		DryRun:    viper.GetBool("dry-run"),
		Export:    format,
	}

	if viper.GetBool("db-sync") {
		if syncer := openSyncer(viper.GetString("db-path")); syncer != nil {
			defer syncer.Close()
			opts.Syncer = syncer
		}
	}

	engine, err := dedupe.New(opts)
	if err != nil {
		return err
	}
	if _, err := engine.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func selectMode() (remediate.Mode, error) {
	var modes []remediate.Mode
	if viper.GetBool("list") {
		modes = append(modes, remediate.ModeList)
	}
	if viper.GetBool("link") {
		modes = append(modes, remediate.ModeLink)
	}
	if viper.GetBool("delete") {
		modes = append(modes, remediate.ModeDelete)
	}
	if len(modes) != 1 {
		return "", dedupe.NewConfigError("exactly one of --list, --link or --delete is required")
	}
	return modes[0], nil
}

// openSyncer opens the library store for --db-sync. An unavailable store
// disables the sync step; it never fails the run.
func openSyncer(path string) *store.SqliteSyncer {
	resolved, err := utils.ResolvePath(path)
	if err != nil {
		slog.Warn("db sync unavailable", "path", path, "error", err)
		return nil
	}
	syncer, err := store.OpenSqlite(resolved)
	if err != nil {
		slog.Warn("db sync unavailable", "path", resolved, "error", err)
		return nil
	}
	return syncer
}

func setupLogging(progress bool) {
	level := slog.LevelInfo
	if progress {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(handler))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var cfgErr *dedupe.ConfigError
		if errors.As(err, &cfgErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
