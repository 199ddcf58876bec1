package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/musictools/dedup/internal/verify"
)

// Format is an optional extra export of the duplicate listing, list mode only.
type Format string

const (
	FormatNone      Format = ""
	FormatTXT       Format = "txt"
	FormatCSV       Format = "csv"
	FormatJSON      Format = "json"
	FormatSongshift Format = "songshift"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatNone, FormatTXT, FormatCSV, FormatJSON, FormatSongshift:
		return Format(s), nil
	}
	return FormatNone, fmt.Errorf("unknown export format %q (want txt, csv, json or songshift)", s)
}

// Export writes the duplicate listing as "<prefix>.<format>" and returns the
// written path.
func (w *Writer) Export(groups []verify.Group, format Format) (string, error) {
	path := w.prefix + "." + string(format)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatTXT:
		err = exportTXT(f, groups)
	case FormatCSV:
		err = exportCSV(f, groups)
	case FormatJSON:
		err = exportJSON(f, groups)
	case FormatSongshift:
		err = exportSongshift(f, groups)
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("export %s: %w", format, err)
	}
	return path, nil
}

// exportTXT writes each group's members, groups separated by a blank line.
func exportTXT(f *os.File, groups []verify.Group) error {
	bw := bufio.NewWriter(f)
	for _, g := range groups {
		for _, p := range g.Files {
			fmt.Fprintln(bw, p)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

func exportCSV(f *os.File, groups []verify.Group) error {
	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"Group", "File"}); err != nil {
		return err
	}
	for i, g := range groups {
		for _, p := range g.Files {
			if err := cw.Write([]string{strconv.Itoa(i + 1), p}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// exportJSON maps 1-based group index to member paths.
func exportJSON(f *os.File, groups []verify.Group) error {
	out := make(map[string][]string, len(groups))
	for i, g := range groups {
		out[strconv.Itoa(i+1)] = g.Files
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}

// exportSongshift writes one resolved absolute path per line, every group
// member included, for manual import into playlist transfer tools.
func exportSongshift(f *os.File, groups []verify.Group) error {
	bw := bufio.NewWriter(f)
	for _, g := range groups {
		for _, p := range g.Files {
			abs, err := filepath.Abs(p)
			if err != nil {
				abs = p
			}
			fmt.Fprintln(bw, abs)
		}
	}
	return bw.Flush()
}
