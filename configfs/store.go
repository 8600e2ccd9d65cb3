// Package configfs performs the file operations behind configuration mutations.
// Every path it writes is resolved strictly under a single configuration root.
package configfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blogem/ha-gateway/models"
)

const (
	// BackupDirName is the directory under the root that holds backups
	BackupDirName = ".backup"

	// backupTimeFormat keeps backup names sortable by creation time
	backupTimeFormat = "20060102150405"

	defaultFilePerm = 0o644
	defaultDirPerm  = 0o755
)

// ErrNotFound is returned when an operation needs an existing file
var ErrNotFound = errors.New("file not found")

// BackupInfo describes a single backup file
type BackupInfo struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the filesystem collaborator used by the configuration pipeline
type Store interface {
	Root() string
	ConfigPath() string
	Resolve(relativeDir, filename string) (string, error)
	Exists(path string) (bool, error)
	Read(path string) ([]byte, error)
	Backup(path string, now time.Time) (string, error)
	Restore(backupPath, path string) error
	AppendLines(path string, lines []string) error
	WriteAtomic(path string, data []byte) error
	Remove(path string) error
	ListBackups(path string) ([]BackupInfo, error)
}

// Options configures a LocalStore
type Options struct {
	Root       string
	ConfigFile string
	// Retention is how many backups to keep per file; zero or less keeps all
	Retention int
}

// LocalStore implements Store on the local filesystem
type LocalStore struct {
	root       string
	configFile string
	retention  int
}

// NewLocalStore creates a store rooted at opts.Root. The root is made absolute
// and, when it exists, has its symlinks resolved so containment checks compare real paths.
func NewLocalStore(opts Options) (*LocalStore, error) {
	if opts.Root == "" {
		return nil, errors.New("config root is required")
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config root: %w", err)
	}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = "configuration.yaml"
	}

	return &LocalStore{
		root:       root,
		configFile: configFile,
		retention:  opts.Retention,
	}, nil
}

// Root returns the absolute configuration root
func (s *LocalStore) Root() string {
	return s.root
}

// ConfigPath returns the path of the main configuration file
func (s *LocalStore) ConfigPath() string {
	return filepath.Join(s.root, s.configFile)
}

// Resolve joins relativeDir and filename under the root and rejects anything that
// lands outside it, including through symlinked directories. Nothing is created.
func (s *LocalStore) Resolve(relativeDir, filename string) (string, error) {
	if filepath.IsAbs(relativeDir) || filepath.IsAbs(filename) {
		return "", escapeError(relativeDir, filename)
	}

	dir := filepath.Join(s.root, relativeDir)
	if !s.contains(dir) {
		return "", escapeError(relativeDir, filename)
	}

	target := filepath.Join(dir, filename)
	if !s.contains(target) || target == s.root || filepath.Dir(target) != dir {
		return "", escapeError(relativeDir, filename)
	}

	// The deepest existing ancestor must also resolve inside the root
	existing := dir
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}
	if real, err := filepath.EvalSymlinks(existing); err == nil && !s.contains(real) {
		return "", escapeError(relativeDir, filename)
	}

	// An existing target that is a symlink must not point outside either
	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		real, err := filepath.EvalSymlinks(target)
		if err != nil || !s.contains(real) {
			return "", escapeError(relativeDir, filename)
		}
	}

	return target, nil
}

func (s *LocalStore) contains(path string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func escapeError(relativeDir, filename string) error {
	return models.NewError(models.ErrPathEscape, "target path is outside the config directory").
		WithDetail("relative_dir", relativeDir).
		WithDetail("filename", filename)
}

// Exists reports whether path exists as a regular file
func (s *LocalStore) Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	return true, nil
}

// Read returns the contents of path
func (s *LocalStore) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return data, err
}

// Backup copies path into the backup directory and prunes old backups of the same file
func (s *LocalStore) Backup(path string, now time.Time) (string, error) {
	src, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	srcInfo, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat source: %w", err)
	}

	backupDir := filepath.Join(s.root, BackupDirName)
	if err := os.MkdirAll(backupDir, defaultDirPerm); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	prefix := s.backupPrefix(path)
	stamp := now.Format(backupTimeFormat)
	backupPath := filepath.Join(backupDir, prefix+stamp)

	// Two mutations inside the same second get distinct names
	dst, err := os.OpenFile(backupPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, srcInfo.Mode().Perm())
	for n := 1; errors.Is(err, os.ErrExist); n++ {
		backupPath = filepath.Join(backupDir, fmt.Sprintf("%s%s-%d", prefix, stamp, n))
		dst, err = os.OpenFile(backupPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, srcInfo.Mode().Perm())
	}
	if err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", fmt.Errorf("failed to sync backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(backupPath)
		return "", fmt.Errorf("failed to close backup: %w", err)
	}

	// Rotation failures never fail the backup itself
	_ = s.rotateBackups(path)

	return backupPath, nil
}

// backupNameEscaper percent-encodes the separator so that distinct relative paths
// never flatten to the same name: packages/a.yaml and packages_a.yaml stay apart
var backupNameEscaper = strings.NewReplacer("%", "%25", "/", "%2F")

// backupPrefix flattens the file's path relative to the root into a single name,
// so configuration.yaml becomes "configuration.yaml." and packages/a.yaml becomes "packages%2Fa.yaml."
func (s *LocalStore) backupPrefix(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return backupNameEscaper.Replace(filepath.ToSlash(rel)) + "."
}

// Restore puts the contents of backupPath back at path atomically
func (s *LocalStore) Restore(backupPath, path string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	return s.WriteAtomic(path, data)
}

// AppendLines appends lines to path, one per line. A separating newline is written
// first only when the file is non-empty and does not already end with one.
func (s *LocalStore) AppendLines(path string, lines []string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var buf bytes.Buffer
	if size := info.Size(); size > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if last[0] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.WriteString(strings.Join(lines, "\n"))
	buf.WriteByte('\n')

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return nil
}

// WriteAtomic writes data to path through a temporary file in the same directory,
// so readers see either the old content or the new content and never a mix.
func (s *LocalStore) WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	perm := os.FileMode(defaultFilePerm)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing to disk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// Remove deletes path; a missing file is not an error
func (s *LocalStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// ListBackups returns the backups of path, newest first
func (s *LocalStore) ListBackups(path string) ([]BackupInfo, error) {
	backupDir := filepath.Join(s.root, BackupDirName)
	prefix := s.backupPrefix(path)

	entries, err := os.ReadDir(backupDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}

		stamp := strings.TrimPrefix(name, prefix)
		if i := strings.IndexByte(stamp, '-'); i >= 0 {
			stamp = stamp[:i]
		}
		createdAt, err := time.ParseInLocation(backupTimeFormat, stamp, time.Local)
		if err != nil {
			// Not one of ours, e.g. configuration.yaml.old
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, BackupInfo{
			Path:      filepath.Join(backupDir, name),
			Name:      name,
			Size:      info.Size(),
			CreatedAt: createdAt,
		})
	}

	// Names sort by timestamp and then collision counter
	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return backupSeq(backups[i].Name) > backupSeq(backups[j].Name)
	})

	return backups, nil
}

func backupSeq(name string) int {
	i := strings.LastIndexByte(name, '-')
	if i < 0 {
		return 0
	}
	n := 0
	for _, r := range name[i+1:] {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// rotateBackups removes backups of path beyond the retention count
func (s *LocalStore) rotateBackups(path string) error {
	if s.retention <= 0 {
		return nil
	}

	backups, err := s.ListBackups(path)
	if err != nil {
		return err
	}

	for i := s.retention; i < len(backups); i++ {
		os.Remove(backups[i].Path)
	}
	return nil
}
