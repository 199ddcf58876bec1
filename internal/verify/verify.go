// Package verify proves byte-for-byte equality within (size, digest) buckets
// and emits canonical duplicate groups. Digest equality alone is never
// treated as proof: every bucket member must compare equal to a reference
// file before it is reported, which is how engineered or accidental hash
// collisions are rejected.
package verify

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/musictools/dedup/internal/hash"
)

// Group is a set of byte-identical files. Files[0] is the keeper; the rest
// are duplicates. Groups are immutable once emitted.
type Group struct {
	Size   int64
	Digest string
	Files  []string
}

func (g *Group) Keeper() string {
	return g.Files[0]
}

func (g *Group) Dupes() []string {
	return g.Files[1:]
}

// Confirm verifies every multi-member bucket and returns the surviving
// groups, each internally sorted to fix the keeper and globally sorted by
// (size, digest) so reruns on an unchanged tree produce identical output.
func Confirm(buckets map[hash.BucketKey][]string) []Group {
	var groups []Group
	for key, paths := range buckets {
		if len(paths) < 2 {
			continue
		}

		// The reference is arbitrary; the canonical sort below decides the
		// keeper once membership is settled.
		ref := paths[0]
		confirmed := []string{ref}
		for _, cand := range paths[1:] {
			eq, err := filesEqual(ref, cand)
			if err != nil {
				// Vanished or unreadable since hashing: excluded, not fatal.
				slog.Warn("verify failed, excluding file", "path", cand, "error", err)
				continue
			}
			if eq {
				confirmed = append(confirmed, cand)
			}
		}
		if len(confirmed) < 2 {
			continue
		}

		sortCanonical(confirmed)
		groups = append(groups, Group{Size: key.Size, Digest: key.Digest, Files: confirmed})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Size != groups[j].Size {
			return groups[i].Size < groups[j].Size
		}
		return groups[i].Digest < groups[j].Digest
	})
	return groups
}

// sortCanonical orders paths by (length, lowercase, raw) ascending. The
// shortest path wins keeper, so "a.flac" beats "sub/b.flac".
func sortCanonical(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		a, b := paths[i], paths[j]
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if la != lb {
			return la < lb
		}
		return a < b
	})
}

// filesEqual compares two files chunk by chunk, short-circuiting on the
// first differing chunk. A length mismatch at end-of-stream is a mismatch.
func filesEqual(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()

	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	bufA := make([]byte, hash.ChunkSize)
	bufB := make([]byte, hash.ChunkSize)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		doneA := errA == io.EOF || errA == io.ErrUnexpectedEOF
		doneB := errB == io.EOF || errB == io.ErrUnexpectedEOF
		if errA != nil && !doneA {
			return false, errA
		}
		if errB != nil && !doneB {
			return false, errB
		}
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if doneA || doneB {
			return doneA && doneB, nil
		}
	}
}
