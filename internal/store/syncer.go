// Package store holds the optional external persistence collaborator. The
// detection core only ever writes through the narrow Syncer port; passing a
// nil Syncer disables the sync step entirely.
package store

import "context"

// KindSHA256 is the identifier kind attached for content digests.
const KindSHA256 = "hash:sha256"

// Syncer is the write-only port for per-file hash metadata.
//
// UpsertFileMeta records (path, size, digest) and reports whether the
// external store already holds a library record at that path; when it does,
// the returned record ID is valid and the caller may attach an identifier to
// it. The core never reads back from the store.
type Syncer interface {
	UpsertFileMeta(ctx context.Context, path string, size int64, digest string) (recordID int64, exists bool, err error)
	AttachIdentifier(ctx context.Context, recordID int64, kind, value string) error
}
