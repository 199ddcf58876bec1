//go:build windows

package remediate

import "errors"

// Hardlink remediation needs a stable device/inode identity, which this build
// does not provide; every link candidate is skipped as an I/O error.
func fileID(path string) (uint64, uint64, error) {
	return 0, 0, errors.New("file identity not supported on this platform")
}
