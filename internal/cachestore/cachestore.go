// Package cachestore implements the Cache Store: a directory
// backed, content-addressed store for task results keyed by
// fingerprint.Digest. Blob addressing follows kai-core/cas.go's BLAKE3
// scheme; temp-file-plus-rename atomicity and the LRU sweep follow
// internal/cache/disk/lru_ttl_store.go's index pattern, adapted from a
// JSON index to a modernc.org/sqlite-backed one so size/access bookkeeping
// survives concurrent writers without holding the whole index in one file.
package cachestore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"
	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"

	"launchcore/internal/fingerprint"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS manifests (
	fingerprint TEXT PRIMARY KEY,
	size_bytes  INTEGER NOT NULL,
	accessed_at INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
`

// OutputFile is one captured output, addressed by its blob hash.
type OutputFile struct {
	RelPath string
	Hash    string // hex blake3 digest of the file's bytes
	Size    int64
}

// Entry is a cached task result.
type Entry struct {
	Fingerprint fingerprint.Digest
	ExitStatus  int
	Stdout      []byte // decompressed
	Stderr      []byte // decompressed
	Outputs     []OutputFile
	CreatedAt   time.Time
}

// ErrMissingOutput is returned by Insert when a declared output file does
// not exist after a successful run.
type ErrMissingOutput struct {
	Path string
}

func (e *ErrMissingOutput) Error() string {
	return fmt.Sprintf("cachestore: missing declared output: %s", e.Path)
}

// Store is a content-addressed, directory-backed cache of task results.
type Store struct {
	root string
	db   *sql.DB

	mu    sync.Mutex
	group singleflight.Group
}

// cacheSchemaVersion is written to root/version on every Open. A cache root
// left over from an older, incompatible schema is treated as empty rather
// than served: its manifests, blobs, and index are wiped and rebuilt from
// scratch under the current version.
const cacheSchemaVersion = "1"

// Open opens (creating if absent) a Store rooted at root, with an index
// database at root/index.db.
func Open(root string) (*Store, error) {
	objectsDir := filepath.Join(root, "objects")
	manifestsDir := filepath.Join(root, "manifests")
	versionPath := filepath.Join(root, "version")

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cachestore: creating cache root: %w", err)
	}
	if stale := isStaleVersion(versionPath); stale {
		if err := os.RemoveAll(objectsDir); err != nil {
			return nil, fmt.Errorf("cachestore: clearing stale objects dir: %w", err)
		}
		if err := os.RemoveAll(manifestsDir); err != nil {
			return nil, fmt.Errorf("cachestore: clearing stale manifests dir: %w", err)
		}
		if err := os.Remove(filepath.Join(root, "index.db")); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("cachestore: clearing stale index: %w", err)
		}
	}
	if err := os.WriteFile(versionPath, []byte(cacheSchemaVersion), 0o644); err != nil {
		return nil, fmt.Errorf("cachestore: writing version file: %w", err)
	}

	if err := os.MkdirAll(objectsDir, 0o755); err != nil {
		return nil, fmt.Errorf("cachestore: creating objects dir: %w", err)
	}
	if err := os.MkdirAll(manifestsDir, 0o755); err != nil {
		return nil, fmt.Errorf("cachestore: creating manifests dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(root, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("cachestore: opening index: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("cachestore: applying schema: %w", err)
	}
	return &Store{root: root, db: db}, nil
}

// isStaleVersion reports whether the version file at path could be read and
// names a version other than cacheSchemaVersion. A fresh cache root (no
// version file yet) or an unreadable file is not stale.
func isStaleVersion(path string) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(raw)) != cacheSchemaVersion
}

func (s *Store) Close() error { return s.db.Close() }

type manifestJSON struct {
	ExitStatus  int          `json:"exit_status"`
	StdoutBlob  string       `json:"stdout_blob,omitempty"`
	StderrBlob  string       `json:"stderr_blob,omitempty"`
	Outputs     []OutputFile `json:"outputs"`
	CreatedAtMs int64        `json:"created_at_ms"`
}

func (s *Store) manifestPath(d fingerprint.Digest) string {
	return filepath.Join(s.root, "manifests", d.String()+".json")
}

func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.root, "objects", hash[:2], hash[2:])
}

// Lookup returns the cached entry for fingerprint, if present. A manifest is
// only ever written after every referenced blob exists (Insert's ordering),
// so presence of the manifest file is sufficient for lookup's atomicity
// guarantee.
func (s *Store) Lookup(fp fingerprint.Digest) (*Entry, bool, error) {
	raw, err := os.ReadFile(s.manifestPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cachestore: reading manifest: %w", err)
	}
	var m manifestJSON
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, fmt.Errorf("cachestore: decoding manifest: %w", err)
	}

	stdout, err := s.readBlobZstd(m.StdoutBlob)
	if err != nil {
		return nil, false, err
	}
	stderr, err := s.readBlobZstd(m.StderrBlob)
	if err != nil {
		return nil, false, err
	}

	s.touch(fp)
	return &Entry{
		Fingerprint: fp,
		ExitStatus:  m.ExitStatus,
		Stdout:      stdout,
		Stderr:      stderr,
		Outputs:     m.Outputs,
		CreatedAt:   time.UnixMilli(m.CreatedAtMs),
	}, true, nil
}

func (s *Store) readBlobZstd(hash string) ([]byte, error) {
	if hash == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		return nil, fmt.Errorf("cachestore: reading blob %s: %w", hash, err)
	}
	decoder, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("cachestore: opening zstd stream for %s: %w", hash, err)
	}
	defer decoder.Close()
	return io.ReadAll(decoder)
}

// ReadOutput opens blob data read into a cached output by its hash.
func (s *Store) ReadOutput(hash string) ([]byte, error) {
	raw, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		return nil, fmt.Errorf("cachestore: reading output blob %s: %w", hash, err)
	}
	return raw, nil
}

// Insert records a successful task result. outputFiles maps an output's
// relative path (as it should be replayed under the package root) to its
// raw bytes, collected by the caller after a successful run. An output
// named in outputRelPaths but absent from outputFiles is reported as
// ErrMissingOutput and nothing is written — failures are never cached, by
// the caller simply not calling Insert at all.
func (s *Store) Insert(fp fingerprint.Digest, exitStatus int, stdout, stderr []byte, outputRelPaths []string, outputFiles map[string][]byte) (*Entry, error) {
	_, err, _ := s.group.Do(fp.String(), func() (interface{}, error) {
		return s.insertLocked(fp, exitStatus, stdout, stderr, outputRelPaths, outputFiles)
	})
	if err != nil {
		return nil, err
	}
	entry, _, lookupErr := s.Lookup(fp)
	if lookupErr != nil {
		return nil, lookupErr
	}
	return entry, nil
}

func (s *Store) insertLocked(fp fingerprint.Digest, exitStatus int, stdout, stderr []byte, outputRelPaths []string, outputFiles map[string][]byte) (struct{}, error) {
	for _, rel := range outputRelPaths {
		if _, ok := outputFiles[rel]; !ok {
			return struct{}{}, &ErrMissingOutput{Path: rel}
		}
	}

	var outputs []OutputFile
	var totalSize int64
	for _, rel := range outputRelPaths {
		data := outputFiles[rel]
		hash, size, err := s.writeBlob(data)
		if err != nil {
			return struct{}{}, err
		}
		outputs = append(outputs, OutputFile{RelPath: rel, Hash: hash, Size: size})
		totalSize += size
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].RelPath < outputs[j].RelPath })

	stdoutHash, stdoutSize, err := s.writeBlobZstd(stdout)
	if err != nil {
		return struct{}{}, err
	}
	stderrHash, stderrSize, err := s.writeBlobZstd(stderr)
	if err != nil {
		return struct{}{}, err
	}
	totalSize += stdoutSize + stderrSize

	m := manifestJSON{
		ExitStatus:  exitStatus,
		StdoutBlob:  stdoutHash,
		StderrBlob:  stderrHash,
		Outputs:     outputs,
		CreatedAtMs: time.Now().UnixMilli(),
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return struct{}{}, fmt.Errorf("cachestore: encoding manifest: %w", err)
	}

	path := s.manifestPath(fp)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return struct{}{}, fmt.Errorf("cachestore: writing manifest temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return struct{}{}, fmt.Errorf("cachestore: renaming manifest into place: %w", err)
	}

	s.index(fp, totalSize)
	return struct{}{}, nil
}

// writeBlob writes data content-addressed by its BLAKE3 hash, via
// temp-file-plus-rename. A blob that already exists is left
// untouched — insert is idempotent on bytes.
func (s *Store) writeBlob(data []byte) (hash string, size int64, err error) {
	sum := blake3.Sum256(data)
	h := hex.EncodeToString(sum[:])
	path := s.blobPath(h)
	if _, statErr := os.Stat(path); statErr == nil {
		return h, int64(len(data)), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, fmt.Errorf("cachestore: creating blob dir: %w", err)
	}
	tmp := path + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", 0, fmt.Errorf("cachestore: writing blob temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("cachestore: renaming blob into place: %w", err)
	}
	return h, int64(len(data)), nil
}

// writeBlobZstd compresses data before writing it, used for captured
// stdout/stderr. Empty input
// writes nothing and returns an empty hash.
func (s *Store) writeBlobZstd(data []byte) (hash string, size int64, err error) {
	if len(data) == 0 {
		return "", 0, nil
	}
	var buf bytes.Buffer
	encoder, err := zstd.NewWriter(&buf)
	if err != nil {
		return "", 0, fmt.Errorf("cachestore: creating zstd encoder: %w", err)
	}
	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		return "", 0, fmt.Errorf("cachestore: compressing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", 0, fmt.Errorf("cachestore: closing zstd encoder: %w", err)
	}
	return s.writeBlob(buf.Bytes())
}

func (s *Store) index(fp fingerprint.Digest, size int64) {
	now := time.Now().UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec(
		`INSERT INTO manifests (fingerprint, size_bytes, accessed_at, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET size_bytes=excluded.size_bytes, accessed_at=excluded.accessed_at`,
		fp.String(), size, now, now,
	)
}

func (s *Store) touch(fp fingerprint.Digest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec(`UPDATE manifests SET accessed_at = ? WHERE fingerprint = ?`, time.Now().UnixMilli(), fp.String())
}

// Replay materializes entry's output files via write (keyed by RelPath,
// receiving the raw bytes to place at that path) and emits the captured
// stdout/stderr to the live streams.
func (e *Entry) Replay(ctx context.Context, s *Store, write func(relPath string, data []byte) error, stdout, stderr io.Writer) error {
	for _, out := range e.Outputs {
		data, err := s.ReadOutput(out.Hash)
		if err != nil {
			return err
		}
		if err := write(out.RelPath, data); err != nil {
			return fmt.Errorf("cachestore: replaying output %s: %w", out.RelPath, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if stdout != nil && len(e.Stdout) > 0 {
		if _, err := stdout.Write(e.Stdout); err != nil {
			return err
		}
	}
	if stderr != nil && len(e.Stderr) > 0 {
		if _, err := stderr.Write(e.Stderr); err != nil {
			return err
		}
	}
	return nil
}

// SweepStats reports what a Sweep call removed.
type SweepStats struct {
	EntriesBefore  int
	EntriesRemoved int
	BytesRemoved   int64
}

// Sweep evicts the least-recently-accessed manifests until the index is
// within maxEntries and maxBytes, then deletes every blob that no surviving
// manifest references; blobs still referenced by a survivor are kept.
func (s *Store) Sweep(maxEntries int, maxBytes int64) (SweepStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct {
		fp         string
		size       int64
		accessedAt int64
	}
	rows, err := s.db.Query(`SELECT fingerprint, size_bytes, accessed_at FROM manifests ORDER BY accessed_at ASC`)
	if err != nil {
		return SweepStats{}, fmt.Errorf("cachestore: querying index: %w", err)
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.fp, &r.size, &r.accessedAt); err != nil {
			rows.Close()
			return SweepStats{}, err
		}
		all = append(all, r)
	}
	rows.Close()

	var total int64
	for _, r := range all {
		total += r.size
	}

	stats := SweepStats{EntriesBefore: len(all)}
	i := 0
	for (maxEntries > 0 && len(all)-i > maxEntries) || (maxBytes > 0 && total > maxBytes) {
		r := all[i]
		if err := os.Remove(s.manifestPathFor(r.fp)); err == nil || os.IsNotExist(err) {
			stats.EntriesRemoved++
			stats.BytesRemoved += r.size
			total -= r.size
		}
		if _, err := s.db.Exec(`DELETE FROM manifests WHERE fingerprint = ?`, r.fp); err != nil {
			return stats, fmt.Errorf("cachestore: removing index row: %w", err)
		}
		i++
	}

	survivors := make([]string, 0, len(all)-i)
	for _, r := range all[i:] {
		survivors = append(survivors, r.fp)
	}
	keep, err := s.collectReferencedHashes(survivors)
	if err != nil {
		return stats, fmt.Errorf("cachestore: collecting referenced blobs: %w", err)
	}
	if err := s.removeOrphanBlobs(keep); err != nil {
		return stats, fmt.Errorf("cachestore: removing orphan blobs: %w", err)
	}
	return stats, nil
}

func (s *Store) manifestPathFor(fpHex string) string {
	return filepath.Join(s.root, "manifests", fpHex+".json")
}

// collectReferencedHashes reads every surviving manifest and returns the set
// of blob hashes still in use, so removeOrphanBlobs knows what it may not
// delete.
func (s *Store) collectReferencedHashes(fingerprints []string) (map[string]bool, error) {
	keep := make(map[string]bool)
	for _, fp := range fingerprints {
		raw, err := os.ReadFile(s.manifestPathFor(fp))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		var m manifestJSON
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		if m.StdoutBlob != "" {
			keep[m.StdoutBlob] = true
		}
		if m.StderrBlob != "" {
			keep[m.StderrBlob] = true
		}
		for _, out := range m.Outputs {
			keep[out.Hash] = true
		}
	}
	return keep, nil
}

// removeOrphanBlobs deletes every file under objects/ whose hash is not in
// keep. This is the blob half of eviction: Sweep's manifest/index removal
// above only drops the catalog entry, so without this pass a removed
// entry's blobs would never actually free disk space.
func (s *Store) removeOrphanBlobs(keep map[string]bool) error {
	objectsDir := filepath.Join(s.root, "objects")
	prefixDirs, err := os.ReadDir(objectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, prefixDir := range prefixDirs {
		if !prefixDir.IsDir() {
			continue
		}
		prefix := prefixDir.Name()
		subDir := filepath.Join(objectsDir, prefix)
		entries, err := os.ReadDir(subDir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			hash := prefix + entry.Name()
			if keep[hash] {
				continue
			}
			if err := os.Remove(filepath.Join(subDir, entry.Name())); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}
