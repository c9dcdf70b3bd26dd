// Package env manages per-source isolated interpreter environments:
// cloning remote sources, installing declared dependencies exactly
// once (hash-guarded), and exposing the resulting interpreter path to
// the extractor and invoker.
package env

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"

	"github.com/kadirpekel/toolindex/pkg/oracle"
)

// DepFile names a recognized dependency-config file, in the priority
// order spec.md mandates: project manifest first.
type DepFile string

const (
	PyProjectTOML  DepFile = "pyproject.toml"
	SetupPy        DepFile = "setup.py"
	RequirementsTxt DepFile = "requirements.txt"
)

var depFilePriority = []DepFile{PyProjectTOML, SetupPy, RequirementsTxt}

const hashFileName = ".deps_hash"

// EnvironmentError reports that environment creation or dependency
// installation failed. It names the failing command.
type EnvironmentError struct {
	SourceID string
	Command  string
	Err      error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("environment %q: command %q failed: %v", e.SourceID, e.Command, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// Interpreter is the fully-prepared execution environment for one
// source: a path to its interpreter binary and the working directory
// containing its materialized source tree.
type Interpreter struct {
	// Python is the path to the interpreter executable to launch
	// bootstrap/runner programs with (pkg/extract, pkg/invoke).
	Python string
	// SourceDir is the root of the cloned/local source tree, where
	// tools.toml and the dependency config live.
	SourceDir string
	// EnvVars are the variables visible to subprocesses spawned for
	// this source, and only these — host variables do not leak in.
	EnvVars map[string]string
}

// Manager provisions and caches per-source environments under a single
// cache root.
type Manager struct {
	CacheRoot         string
	InterpreterBinary string // defaults to "python3" on PATH
	Oracle            *oracle.Client
	Logger            hclog.Logger

	installs singleflight.Group
	runCmd   func(ctx context.Context, dir string, env map[string]string, name string, args ...string) error
}

// NewManager creates a Manager rooted at cacheRoot. interpreterBinary
// may be empty, defaulting to "python3".
func NewManager(cacheRoot, interpreterBinary string, oc *oracle.Client) *Manager {
	if interpreterBinary == "" {
		interpreterBinary = "python3"
	}
	return &Manager{
		CacheRoot:         cacheRoot,
		InterpreterBinary: interpreterBinary,
		Oracle:            oc,
		Logger:            hclog.Default().Named("env"),
		runCmd:            runCommand,
	}
}

// ResetCache clears the cache root before any resolution happens.
func (m *Manager) ResetCache() error {
	if m.CacheRoot == "" {
		return nil
	}
	return os.RemoveAll(m.CacheRoot)
}

func runCommand(ctx context.Context, dir string, env map[string]string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = envSlice(env)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, string(out))
	}
	return nil
}

func envSlice(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	return out
}

// sourceDirName and envDirName are the two children of
// <cache_root>/<source_id>/ spec.md §4.2 describes.
const (
	sourceDirName = "source"
	envDirName    = "venv"
)

// PrepareRemote clones (or reuses the cached clone of) a remote source
// at the resolved revision, creates (or reuses) its dedicated venv,
// installs its dependencies into that venv, and returns its
// Interpreter. sourceID is the cache key (owner/name form).
func (m *Manager) PrepareRemote(ctx context.Context, sourceID, revision string, envVars map[string]string) (*Interpreter, error) {
	root := filepath.Join(m.CacheRoot, sanitizeID(sourceID))
	sourceDir := filepath.Join(root, sourceDirName)
	envDir := filepath.Join(root, envDirName)

	if _, err := m.installs.Do(sourceID, func() (any, error) {
		return nil, m.cloneIfNeeded(ctx, sourceID, revision, sourceDir)
	}); err != nil {
		return nil, &EnvironmentError{SourceID: sourceID, Command: "git clone", Err: err}
	}

	pythonPath, err := m.ensureVenv(ctx, sourceID, envDir)
	if err != nil {
		return nil, err
	}

	if err := m.ensureDeps(ctx, sourceID, sourceDir, pythonPath, envVars); err != nil {
		return nil, err
	}

	return &Interpreter{
		Python:    pythonPath,
		SourceDir: sourceDir,
		EnvVars:   envVars,
	}, nil
}

// PrepareLocal wires a local directory source into an Interpreter. If
// createEnv is set, dependencies install into a dedicated venv at
// <cache_root>/<sanitized path>/venv (keyed by the path the way a
// remote source's is keyed by its id) rather than the ambient
// interpreter; otherwise the local source runs
// against the ambient InterpreterBinary directly, matching the
// no-isolation-requested case.
func (m *Manager) PrepareLocal(ctx context.Context, path string, createEnv bool, envVars map[string]string) (*Interpreter, error) {
	if !createEnv {
		return &Interpreter{
			Python:    m.InterpreterBinary,
			SourceDir: path,
			EnvVars:   envVars,
		}, nil
	}

	root := filepath.Join(m.CacheRoot, sanitizeID(path))
	envDir := filepath.Join(root, envDirName)

	pythonPath, err := m.ensureVenv(ctx, path, envDir)
	if err != nil {
		return nil, err
	}
	if err := m.ensureDeps(ctx, path, path, pythonPath, envVars); err != nil {
		return nil, err
	}
	return &Interpreter{
		Python:    pythonPath,
		SourceDir: path,
		EnvVars:   envVars,
	}, nil
}

// ensureVenv creates, if absent, the isolated interpreter environment
// at envDir via "python -m venv" and returns its bin/python path.
// Singleflight-guarded per sourceID so concurrent prepares of the same
// source don't race to create the same venv.
func (m *Manager) ensureVenv(ctx context.Context, sourceID, envDir string) (string, error) {
	pythonPath := venvPythonPath(envDir)
	if _, err := os.Stat(pythonPath); err == nil {
		return pythonPath, nil
	}

	_, err, _ := m.installs.Do(sourceID+":venv", func() (any, error) {
		if _, err := os.Stat(pythonPath); err == nil {
			return nil, nil // created while we waited on the singleflight
		}
		if err := os.MkdirAll(filepath.Dir(envDir), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		m.Logger.Debug("creating virtual environment", "source", sourceID, "path", envDir)
		return nil, m.runCmd(ctx, "", nil, m.InterpreterBinary, "-m", "venv", envDir)
	})
	if err != nil {
		return "", &EnvironmentError{SourceID: sourceID, Command: "venv", Err: err}
	}
	return pythonPath, nil
}

// venvPythonPath is the interpreter path inside a venv created at
// envDir, matching venv's own layout on each OS.
func venvPythonPath(envDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(envDir, "Scripts", "python.exe")
	}
	return filepath.Join(envDir, "bin", "python")
}

func (m *Manager) cloneIfNeeded(ctx context.Context, sourceID, revision, sourceDir string) error {
	if _, err := git.PlainOpen(sourceDir); err == nil {
		return nil // already cloned; cache hit
	}

	meta := m.Oracle.Resolve(ctx, sourceID, revision)

	if err := os.MkdirAll(filepath.Dir(sourceDir), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	cloneOpts := &git.CloneOptions{URL: meta.CloneURL}
	if revision != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(revision)
		cloneOpts.SingleBranch = true
	}

	m.Logger.Debug("cloning remote source", "id", sourceID, "url", meta.CloneURL)

	_, err := git.PlainCloneContext(ctx, sourceDir, false, cloneOpts)
	if err != nil && !errors.Is(err, git.ErrRepositoryAlreadyExists) {
		return fmt.Errorf("cloning %s: %w", meta.CloneURL, err)
	}
	return nil
}

// ensureDeps installs the dependencies declared in sourceDir's
// recognized config file into the venv at pythonPath, skipping the
// install if the hash guard at <sourceDir>/.deps_hash already matches.
func (m *Manager) ensureDeps(ctx context.Context, sourceID, sourceDir, pythonPath string, envVars map[string]string) error {
	depFile, depPath, found := findDepFile(sourceDir)
	if !found {
		return nil // no dependency config declared; nothing to install
	}

	digest, err := hashFile(depPath)
	if err != nil {
		return &EnvironmentError{SourceID: sourceID, Command: "hash " + string(depFile), Err: err}
	}

	hashPath := filepath.Join(sourceDir, hashFileName)
	if existing, err := os.ReadFile(hashPath); err == nil && string(existing) == digest {
		m.Logger.Debug("dependencies already installed", "source", sourceID)
		return nil
	}

	_, err, _ = m.installs.Do(sourceID+":deps", func() (any, error) {
		cmd, args := installCommand(pythonPath, depFile)
		if err := m.runCmd(ctx, sourceDir, envVars, cmd, args...); err != nil {
			return nil, err
		}
		return nil, os.WriteFile(hashPath, []byte(digest), 0o644)
	})
	if err != nil {
		return &EnvironmentError{SourceID: sourceID, Command: string(depFile), Err: err}
	}
	return nil
}

// installCommand runs pip as a module of pythonPath itself, rather
// than a bare "pip" off PATH, so the install always lands inside the
// venv pythonPath belongs to.
func installCommand(pythonPath string, depFile DepFile) (string, []string) {
	switch depFile {
	case PyProjectTOML, SetupPy:
		return pythonPath, []string{"-m", "pip", "install", "."}
	case RequirementsTxt:
		return pythonPath, []string{"-m", "pip", "install", "-r", "requirements.txt"}
	default:
		return "true", nil
	}
}

func findDepFile(sourceDir string) (DepFile, string, bool) {
	for _, df := range depFilePriority {
		p := filepath.Join(sourceDir, string(df))
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return df, p, true
		}
	}
	return "", "", false
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func sanitizeID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch r {
		case '/', ':', '\\':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
