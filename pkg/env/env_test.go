package env

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *[][]string) {
	t.Helper()
	var calls [][]string
	m := NewManager(t.TempDir(), "python3", nil)
	m.runCmd = func(ctx context.Context, dir string, env map[string]string, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return nil
	}
	return m, &calls
}

func TestEnsureDeps_PrefersPyProjectOverRequirements(t *testing.T) {
	m, calls := newTestManager(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte("[project]\nname='x'"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("requests"), 0o644))

	require.NoError(t, m.ensureDeps(context.Background(), "src", dir, "venv/bin/python", nil))

	require.Len(t, *calls, 1)
	assert.Equal(t, []string{"venv/bin/python", "-m", "pip", "install", "."}, (*calls)[0])
	assert.FileExists(t, filepath.Join(dir, hashFileName))
}

func TestEnsureDeps_NoConfigFileIsNoop(t *testing.T) {
	m, calls := newTestManager(t)
	dir := t.TempDir()

	require.NoError(t, m.ensureDeps(context.Background(), "src", dir, "venv/bin/python", nil))
	assert.Empty(t, *calls)
}

func TestEnsureDeps_HashGuardSkipsReinstall(t *testing.T) {
	m, calls := newTestManager(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("requests==2.0"), 0o644))

	require.NoError(t, m.ensureDeps(context.Background(), "src", dir, "venv/bin/python", nil))
	require.Len(t, *calls, 1)

	require.NoError(t, m.ensureDeps(context.Background(), "src", dir, "venv/bin/python", nil))
	assert.Len(t, *calls, 1, "second call with unchanged deps file should skip install")
}

func TestEnsureDeps_ChangedDepsTriggersReinstall(t *testing.T) {
	m, calls := newTestManager(t)
	dir := t.TempDir()
	reqPath := filepath.Join(dir, "requirements.txt")
	require.NoError(t, os.WriteFile(reqPath, []byte("requests==2.0"), 0o644))

	require.NoError(t, m.ensureDeps(context.Background(), "src", dir, "venv/bin/python", nil))
	require.Len(t, *calls, 1)

	require.NoError(t, os.WriteFile(reqPath, []byte("requests==3.0"), 0o644))
	require.NoError(t, m.ensureDeps(context.Background(), "src", dir, "venv/bin/python", nil))
	assert.Len(t, *calls, 2)
}

func TestEnsureDeps_InstallsIntoGivenInterpreter(t *testing.T) {
	m, calls := newTestManager(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("requests"), 0o644))

	require.NoError(t, m.ensureDeps(context.Background(), "src", dir, "/cache/src/venv/bin/python", nil))

	require.Len(t, *calls, 1)
	assert.Equal(t, []string{"/cache/src/venv/bin/python", "-m", "pip", "install", "-r", "requirements.txt"}, (*calls)[0])
}

func TestFindDepFile_PriorityOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.py"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte(""), 0o644))

	df, _, ok := findDepFile(dir)
	require.True(t, ok)
	assert.Equal(t, SetupPy, df)
}

func TestResetCache_RemovesCacheRoot(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, "", nil)
	nested := filepath.Join(root, "foo")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	require.NoError(t, m.ResetCache())
	_, err := os.Stat(root)
	assert.True(t, os.IsNotExist(err))
}

func TestSanitizeID_ReplacesPathSeparators(t *testing.T) {
	assert.Equal(t, "acme_widgets", sanitizeID("acme/widgets"))
}

func TestPrepareLocal_NoEnvSkipsInstall(t *testing.T) {
	m, calls := newTestManager(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("x"), 0o644))

	interp, err := m.PrepareLocal(context.Background(), dir, false, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, interp.SourceDir)
	assert.Empty(t, *calls)
}

func TestPrepareLocal_CreateEnvInstallsDeps(t *testing.T) {
	m, calls := newTestManager(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("x"), 0o644))

	interp, err := m.PrepareLocal(context.Background(), dir, true, map[string]string{"TOKEN": "xyz"})
	require.NoError(t, err)
	require.Len(t, *calls, 2, "expected a venv-create call followed by a pip-install call")

	wantEnvDir := filepath.Join(m.CacheRoot, sanitizeID(dir), envDirName)
	assert.Equal(t, []string{m.InterpreterBinary, "-m", "venv", wantEnvDir}, (*calls)[0], "first call creates the dedicated venv")
	assert.Contains(t, (*calls)[1], "install")
	assert.Equal(t, venvPythonPath(wantEnvDir), interp.Python, "interpreter path must point at the created venv's python")
}

func TestEnsureVenv_SkipsCreateWhenPythonAlreadyExists(t *testing.T) {
	m, calls := newTestManager(t)
	root := t.TempDir()
	envDir := filepath.Join(root, "venv")
	pythonPath := venvPythonPath(envDir)
	require.NoError(t, os.MkdirAll(filepath.Dir(pythonPath), 0o755))
	require.NoError(t, os.WriteFile(pythonPath, []byte(""), 0o755))

	got, err := m.ensureVenv(context.Background(), "src", envDir)
	require.NoError(t, err)
	assert.Equal(t, pythonPath, got)
	assert.Empty(t, *calls, "an already-created venv must not be recreated")
}
