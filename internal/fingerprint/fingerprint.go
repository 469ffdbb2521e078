// Package fingerprint computes the deterministic content digest a TaskNode
// is cached under. The digest covers resolved input files, the
// exact command string, and captured environment variables, encoded with
// length-prefixed fields so that no two distinct input tuples ever collide
// on concatenation boundaries.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"launchcore/internal/fsadapter"
)

// Size is the digest length in bytes (SHA-256).
const Size = 32

// schemeVersion is folded into every digest so that a change to the encoding
// below changes every fingerprint, rather than silently colliding with
// digests computed by an older binary.
const schemeVersion = 1

// Digest is a 256-bit content digest.
type Digest [Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d is the zero digest (never produced by Compute,
// useful as a "not computed" sentinel in callers).
func (d Digest) IsZero() bool { return d == Digest{} }

// EnvVar is one captured environment variable. Unset records that the
// variable was in the capture set but absent from the environment — this is
// distinct from Value being empty.
type EnvVar struct {
	Name  string
	Value string
	Unset bool
}

// ErrMissingInput is wrapped into the error Compute returns when a declared
// input file does not exist: a missing input always fails the fingerprint
// rather than being treated as empty.
type ErrMissingInput struct {
	Path string
}

func (e *ErrMissingInput) Error() string {
	return fmt.Sprintf("fingerprint: missing input file: %s", e.Path)
}

// ErrSymlinkCycle is returned when resolving an input's symlink chain loops.
type ErrSymlinkCycle struct {
	Path string
}

func (e *ErrSymlinkCycle) Error() string {
	return fmt.Sprintf("fingerprint: symlink cycle resolving %s", e.Path)
}

// Compute hashes the resolved input files under anchor together with
// command and env into a single deterministic digest. inputs are paths
// relative to anchor; directories are expanded by walking fsys in
// lexicographic order. Re-ordering inputs or env never changes the result —
// both are sorted before hashing.
func Compute(fsys fsadapter.FS, anchor string, inputs []string, command string, env []EnvVar) (Digest, error) {
	files, err := expandInputs(fsys, anchor, inputs)
	if err != nil {
		return Digest{}, err
	}

	h := sha256.New()
	writeUint32(h, schemeVersion)

	writeUint32(h, uint32(len(files)))
	for _, f := range files {
		data, err := fsys.Read(joinAnchor(anchor, f.relPath))
		if err != nil {
			return Digest{}, fmt.Errorf("fingerprint: reading %s: %w", f.relPath, err)
		}
		contentHash := sha256.Sum256(data)
		writeBytes(h, []byte(f.relPath))
		writeBytes(h, contentHash[:])
		if f.executable {
			writeUint32(h, 1)
		} else {
			writeUint32(h, 0)
		}
	}

	writeBytes(h, []byte(command))

	sortedEnv := append([]EnvVar(nil), env...)
	sort.Slice(sortedEnv, func(i, j int) bool { return sortedEnv[i].Name < sortedEnv[j].Name })
	writeUint32(h, uint32(len(sortedEnv)))
	for _, e := range sortedEnv {
		writeBytes(h, []byte(e.Name))
		if e.Unset {
			writeUint32(h, 1)
			writeBytes(h, nil)
		} else {
			writeUint32(h, 0)
			writeBytes(h, []byte(e.Value))
		}
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

type resolvedFile struct {
	relPath    string
	executable bool
}

// expandInputs walks directories and resolves symlinks exactly once each,
// returning the sorted, deduplicated set of regular files to hash.
func expandInputs(fsys fsadapter.FS, anchor string, inputs []string) ([]resolvedFile, error) {
	seen := make(map[string]bool)
	var out []resolvedFile

	var add func(relPath string) error
	add = func(relPath string) error {
		full := joinAnchor(anchor, relPath)
		info, err := fsys.Stat(full)
		if err != nil {
			return &ErrMissingInput{Path: relPath}
		}
		resolvedRel := relPath
		if info.IsSymlink {
			target, err := fsys.EvalSymlinks(full)
			if err != nil {
				return &ErrSymlinkCycle{Path: relPath}
			}
			resolvedRel = target
			if anchor != "" && anchor != "." {
				resolvedRel = strings.TrimPrefix(target, anchor+"/")
			}
			info, err = fsys.Stat(joinAnchor(anchor, resolvedRel))
			if err != nil {
				return &ErrMissingInput{Path: relPath}
			}
		}
		if info.IsDir {
			entries, err := fsys.Walk(full, nil, nil)
			if err != nil {
				return fmt.Errorf("fingerprint: walking %s: %w", relPath, err)
			}
			for _, e := range entries {
				if err := add(joinAnchor(relPath, e)); err != nil {
					return err
				}
			}
			return nil
		}
		if seen[resolvedRel] {
			return nil
		}
		seen[resolvedRel] = true
		out = append(out, resolvedFile{relPath: resolvedRel, executable: info.Executable})
		return nil
	}

	for _, in := range inputs {
		if err := add(in); err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].relPath < out[j].relPath })
	return out, nil
}

func joinAnchor(anchor, rel string) string {
	if anchor == "" || anchor == "." {
		return rel
	}
	return anchor + "/" + rel
}

// writeBytes length-prefixes data so that ("ab","c") and ("a","bc") never
// collide on concatenation.
func writeBytes(h interface{ Write([]byte) (int, error) }, data []byte) {
	writeUint32(h, uint32(len(data)))
	h.Write(data)
}

func writeUint32(h interface{ Write([]byte) (int, error) }, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	h.Write(b[:])
}
