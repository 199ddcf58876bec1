//go:build unix

package remediate

import (
	"fmt"
	"os"
	"syscall"
)

// fileID returns the (device, inode) identity of the file at path. Two paths
// with the same identity are the same underlying file.
func fileID(path string) (uint64, uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, fmt.Errorf("no stat info for %q", path)
	}
	return uint64(st.Dev), uint64(st.Ino), nil
}
