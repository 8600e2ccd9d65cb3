package configfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogem/ha-gateway/models"
)

func newTestStore(t *testing.T, retention int) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(Options{Root: t.TempDir(), Retention: retention})
	require.NoError(t, err)
	return store
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNewLocalStore_RequiresRoot(t *testing.T) {
	_, err := NewLocalStore(Options{})
	assert.Error(t, err)
}

func TestResolve_InsideRoot(t *testing.T) {
	store := newTestStore(t, 0)

	path, err := store.Resolve("packages", "lights.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), "packages", "lights.yaml"), path)

	path, err = store.Resolve("", "scripts.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), "scripts.yaml"), path)

	// Nothing is created while resolving
	_, err = os.Stat(filepath.Join(store.Root(), "packages"))
	assert.True(t, os.IsNotExist(err))
}

func TestResolve_RejectsEscapes(t *testing.T) {
	store := newTestStore(t, 0)

	cases := []struct{ dir, file string }{
		{"../../etc", "x.yaml"},
		{"..", "x.yaml"},
		{"packages/../..", "x.yaml"},
		{"/etc", "x.yaml"},
		{"packages", "../../x.yaml"},
		{"packages", "/etc/passwd"},
		{"", ".."},
	}

	for _, tc := range cases {
		_, err := store.Resolve(tc.dir, tc.file)
		require.Error(t, err, "%s/%s", tc.dir, tc.file)
		assert.Equal(t, models.ErrPathEscape, models.CodeOf(err), "%s/%s", tc.dir, tc.file)
	}
}

func TestResolve_RejectsSymlinkedDirectoryOutsideRoot(t *testing.T) {
	store := newTestStore(t, 0)
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(store.Root(), "linked")))

	_, err := store.Resolve("linked", "x.yaml")
	assert.Equal(t, models.ErrPathEscape, models.CodeOf(err))

	_, err = store.Resolve("linked/deeper", "x.yaml")
	assert.Equal(t, models.ErrPathEscape, models.CodeOf(err))
}

func TestAppendLines_NewlineHandling(t *testing.T) {
	store := newTestStore(t, 0)
	path := store.ConfigPath()

	tests := []struct {
		name     string
		initial  string
		lines    []string
		expected string
	}{
		{"ends with newline", "a: 1\n", []string{"b: 2"}, "a: 1\nb: 2\n"},
		{"no trailing newline", "a: 1", []string{"b: 2", "c: 3"}, "a: 1\nb: 2\nc: 3\n"},
		{"empty file", "", []string{"b: 2"}, "b: 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeFile(t, path, tt.initial)

			require.NoError(t, store.AppendLines(path, tt.lines))

			assert.Equal(t, tt.expected, readFile(t, path))
		})
	}
}

func TestAppendLines_MissingFile(t *testing.T) {
	store := newTestStore(t, 0)

	err := store.AppendLines(store.ConfigPath(), []string{"a: 1"})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackupAndRestore(t *testing.T) {
	store := newTestStore(t, 0)
	path := store.ConfigPath()
	writeFile(t, path, "original: true\n")

	now := time.Date(2024, 3, 1, 12, 30, 45, 0, time.Local)
	backupPath, err := store.Backup(path, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), ".backup", "configuration.yaml.20240301123045"), backupPath)
	assert.Equal(t, "original: true\n", readFile(t, backupPath))

	writeFile(t, path, "changed: true\n")
	require.NoError(t, store.Restore(backupPath, path))
	assert.Equal(t, "original: true\n", readFile(t, path))
}

func TestBackup_SameSecondGetsDistinctNames(t *testing.T) {
	store := newTestStore(t, 0)
	path := store.ConfigPath()
	writeFile(t, path, "a: 1\n")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)

	first, err := store.Backup(path, now)
	require.NoError(t, err)
	second, err := store.Backup(path, now)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	backups, err := store.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, second, backups[0].Path)
}

func TestBackup_MissingSource(t *testing.T) {
	store := newTestStore(t, 0)

	_, err := store.Backup(store.ConfigPath(), time.Now())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackup_RetentionKeepsNewest(t *testing.T) {
	store := newTestStore(t, 2)
	path := store.ConfigPath()
	writeFile(t, path, "a: 1\n")
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)

	var last string
	for i := 0; i < 4; i++ {
		var err error
		last, err = store.Backup(path, start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	backups, err := store.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, last, backups[0].Path)
	assert.Equal(t, start.Add(2*time.Minute), backups[1].CreatedAt)
}

func TestBackup_NestedFilesDoNotShareRetention(t *testing.T) {
	store := newTestStore(t, 1)
	a := filepath.Join(store.Root(), "packages", "a.yaml")
	b := filepath.Join(store.Root(), "a.yaml")
	writeFile(t, a, "a\n")
	writeFile(t, b, "b\n")

	aBackup, err := store.Backup(a, time.Now())
	require.NoError(t, err)
	_, err = store.Backup(b, time.Now())
	require.NoError(t, err)

	assert.Contains(t, filepath.Base(aBackup), "packages%2Fa.yaml.")
	backups, err := store.ListBackups(a)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestBackup_UnderscoreNameDoesNotCollideWithNestedPath(t *testing.T) {
	store := newTestStore(t, 1)
	nested := filepath.Join(store.Root(), "packages", "a.yaml")
	flat := filepath.Join(store.Root(), "packages_a.yaml")
	writeFile(t, nested, "nested: 1\n")
	writeFile(t, flat, "flat: 1\n")
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)

	nestedBackup, err := store.Backup(nested, start)
	require.NoError(t, err)
	flatBackup, err := store.Backup(flat, start.Add(time.Second))
	require.NoError(t, err)

	// Rotating the flat file's backups must leave the nested file's alone
	assert.FileExists(t, nestedBackup)

	backups, err := store.ListBackups(nested)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, nestedBackup, backups[0].Path)
	assert.Equal(t, "nested: 1\n", readFile(t, backups[0].Path))

	backups, err = store.ListBackups(flat)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, flatBackup, backups[0].Path)
	assert.Equal(t, "flat: 1\n", readFile(t, backups[0].Path))
}

func TestWriteAtomic_CreatesAndReplaces(t *testing.T) {
	store := newTestStore(t, 0)
	path := filepath.Join(store.Root(), "packages", "new.yaml")

	require.NoError(t, store.WriteAtomic(path, []byte("x: 1\n")))
	assert.Equal(t, "x: 1\n", readFile(t, path))

	require.NoError(t, os.Chmod(path, 0o600))
	require.NoError(t, store.WriteAtomic(path, []byte("x: 2\n")))
	assert.Equal(t, "x: 2\n", readFile(t, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExistsAndRemove(t *testing.T) {
	store := newTestStore(t, 0)
	path := filepath.Join(store.Root(), "x.yaml")

	exists, err := store.Exists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	writeFile(t, path, "x")
	exists, err = store.Exists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Remove(path))
	require.NoError(t, store.Remove(path))
	exists, err = store.Exists(path)
	require.NoError(t, err)
	assert.False(t, exists)
}
