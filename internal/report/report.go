// Package report writes the audit artifacts for a detection run. Reports are
// fully regenerated each run and always written before any remediation, so
// an audit trail exists even if a later mutation is interrupted.
package report

import (
	"bufio"
	"fmt"
	"os"

	"github.com/musictools/dedup/internal/utils"
	"github.com/musictools/dedup/internal/verify"
)

const groupsHeader = "group_id\trole\tsize_bytes\tsha256_16\tpath"

// Writer emits report artifacts under a shared path prefix.
type Writer struct {
	prefix string
}

func NewWriter(prefix string) *Writer {
	return &Writer{prefix: prefix}
}

// GroupsPath is the TSV manifest location: "<prefix>_groups.tsv".
func (w *Writer) GroupsPath() string {
	return w.prefix + "_groups.tsv"
}

// DupesPath is the duplicates-only list location: "<prefix>_dupes_only.txt".
func (w *Writer) DupesPath() string {
	return w.prefix + "_dupes_only.txt"
}

// Write regenerates both artifacts: a TSV manifest covering every grouped
// file (keeper and duplicates), and a plain list of duplicate paths with
// keepers omitted.
func (w *Writer) Write(groups []verify.Group) error {
	if err := utils.EnsureParent(w.GroupsPath()); err != nil {
		return fmt.Errorf("report dir: %w", err)
	}

	gf, err := os.Create(w.GroupsPath())
	if err != nil {
		return fmt.Errorf("create groups report: %w", err)
	}
	defer gf.Close()

	df, err := os.Create(w.DupesPath())
	if err != nil {
		return fmt.Errorf("create dupes report: %w", err)
	}
	defer df.Close()

	gw := bufio.NewWriter(gf)
	dw := bufio.NewWriter(df)
	fmt.Fprintln(gw, groupsHeader)
	for i, g := range groups {
		gid := i + 1
		fmt.Fprintf(gw, "%d\tkeep\t%d\t%.16s\t%s\n", gid, g.Size, g.Digest, g.Keeper())
		for _, p := range g.Dupes() {
			fmt.Fprintf(gw, "%d\tdupe\t%d\t%.16s\t%s\n", gid, g.Size, g.Digest, p)
			fmt.Fprintln(dw, p)
		}
	}

	if err := gw.Flush(); err != nil {
		return fmt.Errorf("write groups report: %w", err)
	}
	if err := dw.Flush(); err != nil {
		return fmt.Errorf("write dupes report: %w", err)
	}
	return nil
}
