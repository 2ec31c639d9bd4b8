package core

// upload.go implements the secure temporary store for untrusted uploads.
//
// Every upload lives in its own directory named by a random UUID under a
// process-wide root. The directory name is the upload handle; the single file
// inside carries a second random name and the validated extension only, so a
// declared filename never reaches the filesystem.
//
// Content is streamed in fixed-size chunks with a running total. The copy
// aborts as soon as the total passes the size limit, regardless of the size
// the client declared up front.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxFileSize is the upload size ceiling (20 MiB).
const DefaultMaxFileSize int64 = 20 * 1024 * 1024

// copyChunkSize is the buffer used to stream uploads to disk.
const copyChunkSize = 1024 * 1024

// removeAttempts and removeBackoff bound retries for locked or busy files.
const (
	removeAttempts = 3
	removeBackoff  = 100 * time.Millisecond
)

const (
	dirPerm  os.FileMode = 0o700
	filePerm os.FileMode = 0o600
)

// AllowedExtensions is the upload allow-list, lower case without the dot.
var AllowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"webp": true,
	"pdf":  true,
}

// DefaultUploadRoot returns <os temp>/legato_ocr_sessions.
func DefaultUploadRoot() string {
	return filepath.Join(os.TempDir(), "legato_ocr_sessions")
}

// UploadStore owns the upload root directory.
type UploadStore struct {
	root    string
	maxSize int64

	mu    sync.RWMutex
	names map[string]uploadMeta
}

type uploadMeta struct {
	declaredName string
	createdAt    time.Time
}

// NewUploadStore creates the root directory if needed and returns a store.
// An empty root selects DefaultUploadRoot; a non-positive maxSize selects
// DefaultMaxFileSize.
func NewUploadStore(root string, maxSize int64) (*UploadStore, error) {
	if root == "" {
		root = DefaultUploadRoot()
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	restrictPerm(root, dirPerm)

	return &UploadStore{
		root:    root,
		maxSize: maxSize,
		names:   make(map[string]uploadMeta),
	}, nil
}

// Root returns the directory the sweeper should scan.
func (s *UploadStore) Root() string {
	return s.root
}

// MaxFileSize returns the configured size ceiling.
func (s *UploadStore) MaxFileSize() int64 {
	return s.maxSize
}

// ExtensionOf returns the normalized, lower-case extension of a declared
// filename without the dot. Returns "" when there is none.
func ExtensionOf(declaredName string) string {
	name := norm.NFC.String(declaredName)
	// Clients on Windows send backslash separated paths.
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Ingest streams r into a fresh upload directory.
//
// declaredSize is the size the client reported, or a negative value when
// unknown. It is checked first so oversized uploads are refused before any
// disk activity, but the streamed byte count is what ultimately enforces the
// limit.
func (s *UploadStore) Ingest(ctx context.Context, r io.Reader, declaredName string, declaredSize int64) (*StoredUpload, error) {
	if declaredSize > s.maxSize {
		return nil, reject(ErrSizeLimitExceeded, "file is %s, limit is %s", formatBytes(declaredSize), formatBytes(s.maxSize))
	}

	ext := ExtensionOf(declaredName)
	if !AllowedExtensions[ext] {
		if ext == "" {
			return nil, reject(ErrUnsupportedType, "file has no extension; allowed: png, jpg, jpeg, webp, pdf")
		}
		return nil, reject(ErrUnsupportedType, "extension %q is not allowed; allowed: png, jpg, jpeg, webp, pdf", ext)
	}

	id := uuid.NewString()
	dir := filepath.Join(s.root, id)
	if err := os.Mkdir(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	restrictPerm(dir, dirPerm)

	path := filepath.Join(dir, uuid.NewString()+"."+ext)
	written, err := s.copyLimited(ctx, path, r)
	if err != nil {
		s.cleanup(dir)
		return nil, err
	}

	now := time.Now()
	s.mu.Lock()
	s.names[id] = uploadMeta{declaredName: norm.NFC.String(declaredName), createdAt: now}
	s.mu.Unlock()

	slog.Debug("upload stored", "upload_id", id, "ext", ext, "bytes", written)

	return &StoredUpload{
		ID:           id,
		Path:         path,
		DeclaredName: declaredName,
		Ext:          ext,
		SizeBytes:    written,
		CreatedAt:    now,
		LastAccessAt: now,
	}, nil
}

// copyLimited writes r to a new file at path in copyChunkSize pieces and
// stops before writing the chunk that would exceed the size limit.
func (s *UploadStore) copyLimited(ctx context.Context, path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	restrictPerm(path, filePerm)

	var total int64
	buf := make([]byte, copyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			f.Close()
			return total, err
		}

		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			total += int64(n)
			if total > s.maxSize {
				f.Close()
				return total, reject(ErrSizeLimitExceeded, "file exceeds %s", formatBytes(s.maxSize))
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				return total, fmt.Errorf("write upload: %w", werr)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			f.Close()
			return total, fmt.Errorf("read upload: %w", rerr)
		}
	}

	if err := f.Close(); err != nil {
		return total, fmt.Errorf("close upload: %w", err)
	}
	return total, nil
}

// Open resolves a handle to its stored file and records the access.
func (s *UploadStore) Open(id string) (*StoredUpload, error) {
	dir, ok := s.dirFor(id)
	if !ok {
		return nil, ErrUploadNotFound
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.forget(id)
		return nil, ErrUploadNotFound
	}

	var file os.DirEntry
	for _, e := range entries {
		if e.Type().IsRegular() {
			if file != nil {
				return nil, fmt.Errorf("%w: upload %s holds more than one file", ErrUploadNotFound, id)
			}
			file = e
		}
	}
	if file == nil {
		return nil, ErrUploadNotFound
	}

	path := filepath.Join(dir, file.Name())
	info, err := os.Stat(path)
	if err != nil {
		return nil, ErrUploadNotFound
	}
	if info.Size() > s.maxSize {
		return nil, reject(ErrSizeLimitExceeded, "stored file exceeds %s", formatBytes(s.maxSize))
	}

	now := time.Now()
	s.touch(dir, path, now)

	s.mu.RLock()
	meta := s.names[id]
	s.mu.RUnlock()

	created := meta.createdAt
	if created.IsZero() {
		created = info.ModTime()
	}

	return &StoredUpload{
		ID:           id,
		Path:         path,
		DeclaredName: meta.declaredName,
		Ext:          ExtensionOf(file.Name()),
		SizeBytes:    info.Size(),
		CreatedAt:    created,
		LastAccessAt: now,
	}, nil
}

// Remove deletes an upload directory. It never returns an error: a missing
// directory is fine, and directories that stay locked after a few attempts
// are left for the sweeper.
func (s *UploadStore) Remove(id string) {
	dir, ok := s.dirFor(id)
	if !ok {
		return
	}
	s.forget(id)

	if err := removeWithRetry(dir); err != nil {
		slog.Warn("upload remove gave up", "upload_id", id, "error", err)
	}
}

// forget drops in-memory metadata for an upload.
func (s *UploadStore) forget(id string) {
	s.mu.Lock()
	delete(s.names, id)
	s.mu.Unlock()
}

// dirFor maps a handle to its directory. Only canonical UUID strings are
// accepted, so a handle can never escape the root.
func (s *UploadStore) dirFor(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return "", false
	}
	return filepath.Join(s.root, id), true
}

// touch records an access. The sweeper reads modification times, which are
// updated explicitly here because access times depend on mount options.
func (s *UploadStore) touch(dir, path string, now time.Time) {
	if err := os.Chtimes(path, now, now); err != nil {
		slog.Debug("touch upload file failed", "path", path, "error", err)
	}
	if err := os.Chtimes(dir, now, now); err != nil {
		slog.Debug("touch upload dir failed", "path", dir, "error", err)
	}
}

// cleanup removes a partially written upload. Failures are logged only.
func (s *UploadStore) cleanup(dir string) {
	if err := removeWithRetry(dir); err != nil {
		slog.Warn("partial upload cleanup failed", "dir", dir, "error", err)
	}
}

// removeWithRetry removes path, retrying transient failures.
func removeWithRetry(path string) error {
	var err error
	for attempt := 0; attempt < removeAttempts; attempt++ {
		err = os.RemoveAll(path)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		time.Sleep(removeBackoff)
	}
	return err
}

// restrictPerm re-applies mode after creation so the process umask cannot
// widen it. Windows has no POSIX modes.
func restrictPerm(path string, mode os.FileMode) {
	if runtime.GOOS == "windows" {
		return
	}
	if err := os.Chmod(path, mode); err != nil {
		slog.Debug("chmod failed", "path", path, "error", err)
	}
}

// formatBytes renders a byte count for user-facing messages.
func formatBytes(n int64) string {
	const mib = 1024 * 1024
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	if n >= mib {
		return fmt.Sprintf("%.1fMB", float64(n)/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}
