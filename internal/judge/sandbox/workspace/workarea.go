package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	appErr "coderunner/pkg/errors"
	"coderunner/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RetainPolicy decides what happens to a work area once its execution ends.
type RetainPolicy string

const (
	RetainNone    RetainPolicy = "none"
	RetainKeep    RetainPolicy = "keep"
	RetainArchive RetainPolicy = "archive"
)

// Uploader ships archived work areas to object storage.
type Uploader interface {
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error
}

// Config holds work area settings.
type Config struct {
	Root       string       `yaml:"root"`
	Retain     RetainPolicy `yaml:"retain"`
	ArchiveDir string       `yaml:"archiveDir"`
	Bucket     string       `yaml:"bucket"`
	// Shared makes work areas writable for a non-root sandbox user.
	Shared bool `yaml:"shared"`
}

// Manager creates uniquely named work areas under one root.
type Manager struct {
	cfg      Config
	uploader Uploader
}

// NewManager prepares the root directory. uploader may be nil.
func NewManager(cfg Config, uploader Uploader) (*Manager, error) {
	if cfg.Root == "" {
		cfg.Root = filepath.Join(os.TempDir(), "coderunner")
	}
	if cfg.Retain == "" {
		cfg.Retain = RetainNone
	}
	switch cfg.Retain {
	case RetainNone, RetainKeep, RetainArchive:
	default:
		return nil, appErr.Newf(appErr.InvalidValue, "unknown retain policy: %s", cfg.Retain)
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = filepath.Join(cfg.Root, "_archive")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkAreaError, "create work root failed")
	}
	return &Manager{cfg: cfg, uploader: uploader}, nil
}

// Root returns the directory that holds every work area.
func (m *Manager) Root() string {
	return m.cfg.Root
}

// WorkArea is a scratch directory owned by exactly one execution. The
// directory is shared with untrusted code, so every artifact access goes
// through root and never leaves Dir.
type WorkArea struct {
	ID           string
	Dir          string
	SubmissionID string
	mgr          *Manager
	root         *os.Root
}

// Create allocates a fresh work area.
func (m *Manager) Create(ctx context.Context, submissionID string) (*WorkArea, error) {
	id := uuid.NewString()
	dir := filepath.Join(m.cfg.Root, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkAreaError, "create work area failed")
	}
	if m.cfg.Shared {
		if err := os.Chmod(dir, 0o777); err != nil {
			_ = os.RemoveAll(dir)
			return nil, appErr.Wrapf(err, appErr.WorkAreaError, "chmod work area failed")
		}
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, appErr.Wrapf(err, appErr.WorkAreaError, "open work area failed")
	}
	logger.Debug(ctx, "work area created", zap.String("work_area", id), zap.String("dir", dir))
	return &WorkArea{ID: id, Dir: dir, SubmissionID: submissionID, mgr: m, root: root}, nil
}

// Path returns the host path of an artifact.
func (w *WorkArea) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// WriteFile replaces an artifact with a fresh file. Whatever the sandbox left
// under that name, link or directory, is removed first.
func (w *WorkArea) WriteFile(name, content string) error {
	perm := os.FileMode(0o644)
	if w.mgr.cfg.Shared {
		perm = 0o666
	}
	if err := w.root.RemoveAll(name); err != nil {
		return appErr.Wrapf(err, appErr.WorkAreaError, "clear %s failed", name)
	}
	f, err := w.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkAreaError, "create %s failed", name)
	}
	_, err = f.WriteString(content)
	if err == nil && w.mgr.cfg.Shared {
		// OpenFile honours umask, so widen explicitly.
		err = f.Chmod(perm)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkAreaError, "write %s failed", name)
	}
	return nil
}

// ReadFile reads at most limit bytes of an artifact. A missing artifact
// reads as empty. truncated reports whether more data was present. Anything
// but a regular file inside the work area is rejected.
func (w *WorkArea) ReadFile(name string, limit int64) (content string, truncated bool, err error) {
	info, err := w.root.Lstat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, appErr.Wrapf(err, appErr.WorkAreaError, "stat %s failed", name)
	}
	if !info.Mode().IsRegular() {
		return "", false, appErr.Newf(appErr.WorkAreaError, "artifact %s is not a regular file", name)
	}
	// O_NONBLOCK keeps a fifo swapped in after Lstat from blocking the read.
	f, err := w.root.OpenFile(name, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return "", false, appErr.Wrapf(err, appErr.WorkAreaError, "open %s failed", name)
	}
	defer f.Close()
	if info, err = f.Stat(); err != nil || !info.Mode().IsRegular() {
		return "", false, appErr.Newf(appErr.WorkAreaError, "artifact %s is not a regular file", name)
	}

	var reader io.Reader = f
	if limit > 0 {
		reader = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", false, appErr.Wrapf(err, appErr.WorkAreaError, "read %s failed", name)
	}
	if limit > 0 && int64(len(data)) > limit {
		return string(data[:limit]), true, nil
	}
	return string(data), false, nil
}

// Release applies the retain policy. It always leaves the root free of the
// work area directory unless the policy is keep.
func (w *WorkArea) Release(ctx context.Context) error {
	if w.root != nil {
		_ = w.root.Close()
	}
	switch w.mgr.cfg.Retain {
	case RetainKeep:
		logger.Info(ctx, "work area retained", zap.String("dir", w.Dir))
		return nil
	case RetainArchive:
		archiveErr := w.mgr.archive(ctx, w)
		if err := os.RemoveAll(w.Dir); err != nil {
			return appErr.Wrapf(err, appErr.WorkAreaError, "remove work area failed")
		}
		return archiveErr
	default:
		if err := os.RemoveAll(w.Dir); err != nil {
			return appErr.Wrapf(err, appErr.WorkAreaError, "remove work area failed")
		}
		return nil
	}
}

func (m *Manager) archive(ctx context.Context, w *WorkArea) error {
	if err := os.MkdirAll(m.cfg.ArchiveDir, 0o755); err != nil {
		return appErr.Wrapf(err, appErr.WorkAreaError, "create archive dir failed")
	}
	name := w.ID + ".tar.zst"
	if w.SubmissionID != "" {
		name = fmt.Sprintf("%s-%s.tar.zst", w.SubmissionID, w.ID)
	}
	archivePath := filepath.Join(m.cfg.ArchiveDir, name)
	size, err := writeArchive(w.Dir, archivePath)
	if err != nil {
		_ = os.Remove(archivePath)
		return err
	}
	if m.uploader == nil || m.cfg.Bucket == "" {
		logger.Info(ctx, "work area archived", zap.String("archive", archivePath), zap.Int64("bytes", size))
		return nil
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkAreaError, "open archive failed")
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(archivePath)
	}()
	if err := m.uploader.PutObject(ctx, m.cfg.Bucket, name, f, size, "application/zstd"); err != nil {
		logger.Warn(ctx, "upload work area archive failed", zap.String("archive", name), zap.Error(err))
		return appErr.Wrapf(err, appErr.StorageUploadFailed, "upload archive failed")
	}
	logger.Info(ctx, "work area archive uploaded", zap.String("bucket", m.cfg.Bucket), zap.String("object", name), zap.Int64("bytes", size))
	return nil
}
