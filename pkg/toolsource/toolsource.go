// Package toolsource classifies the heterogeneous entries a caller
// passes to the index (bare callables, directory paths, remote repo
// references, MCP endpoints) into one of a small closed set of source
// kinds. Remote references are only parsed here; pkg/env resolves them
// through the metadata oracle when it clones them.
package toolsource

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Kind discriminates the classified source.
type Kind string

const (
	KindInline Kind = "inline"
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
	KindMCP    Kind = "mcp"
)

// Inline wraps an already-callable host-process value. pkg/index
// accepts it only as an index.InlineTool; this source kind only
// records that the entry was not a string or a source struct.
type Inline struct {
	Value any
}

// LocalSource names a directory containing a tools.toml manifest.
type LocalSource struct {
	Path      string
	CreateEnv bool
	EnvVars   map[string]string
}

// RemoteSource names a repository reference, optionally pinned to a
// revision after a colon (owner/name[:rev]).
type RemoteSource struct {
	ID       string
	Revision string // empty means "default branch at clone time"
	EnvVars  map[string]string
}

// MCPEntry identifies an MCP server to connect to, recognized as a
// distinct source kind (an addition beyond the original string-only
// classification rules) whenever the caller passes this struct rather
// than a bare string.
type MCPEntry struct {
	// Command, if set, launches a local stdio MCP server.
	Command string
	Args    []string
	// URL, if set (and Command is empty), connects to an HTTP/SSE
	// MCP server instead.
	URL     string
	EnvVars map[string]string
}

// Classified is the resolved form of one user-supplied entry.
type Classified struct {
	Kind   Kind
	Inline Inline
	Local  LocalSource
	Remote RemoteSource
	MCP    MCPEntry
}

// ResolutionError reports that an entry could not be classified or
// materialized. It names the offending entry, per spec.
type ResolutionError struct {
	Entry any
	Msg   string
	Err   error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolving tool source %v: %s: %v", e.Entry, e.Msg, e.Err)
	}
	return fmt.Sprintf("resolving tool source %v: %s", e.Entry, e.Msg)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

var remoteIDPattern = regexp.MustCompile(`^[\w.-]+/[\w.-]+(:[\w.\-/]+)?$`)

// statDir abstracts directory-existence checking so it can be faked in
// tests without touching the real filesystem.
var statDir = func(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Classify inspects one user-supplied entry and determines its kind.
// entry may be: an MCPEntry, a string (directory path or remote id), or
// any other value, which is treated as an inline callable.
func Classify(entry any) (Classified, error) {
	switch v := entry.(type) {
	case MCPEntry:
		if v.Command == "" && v.URL == "" {
			return Classified{}, &ResolutionError{Entry: entry, Msg: "MCP entry must set Command or URL"}
		}
		return Classified{Kind: KindMCP, MCP: v}, nil

	case LocalSource:
		if !statDir(v.Path) {
			return Classified{}, &ResolutionError{Entry: entry, Msg: fmt.Sprintf("directory %q does not exist", v.Path)}
		}
		return Classified{Kind: KindLocal, Local: v}, nil

	case RemoteSource:
		if v.ID == "" {
			return Classified{}, &ResolutionError{Entry: entry, Msg: "remote source id is empty"}
		}
		return Classified{Kind: KindRemote, Remote: v}, nil

	case string:
		return classifyString(entry, v)

	default:
		// Any other value is presumed to be an in-process callable.
		// pkg/index rejects it unless it is an index.InlineTool; the
		// resolver itself never silently skips an entry.
		return Classified{Kind: KindInline, Inline: Inline{Value: v}}, nil
	}
}

func classifyString(entry any, s string) (Classified, error) {
	if statDir(s) {
		return Classified{Kind: KindLocal, Local: LocalSource{Path: s}}, nil
	}

	id, rev, ok := splitRemoteID(s)
	if !ok {
		return Classified{}, &ResolutionError{
			Entry: entry,
			Msg:   fmt.Sprintf("%q is neither an existing directory nor a valid owner/name[:rev] remote reference", s),
		}
	}
	return Classified{Kind: KindRemote, Remote: RemoteSource{ID: id, Revision: rev}}, nil
}

func splitRemoteID(s string) (id, rev string, ok bool) {
	if !remoteIDPattern.MatchString(s) {
		return "", "", false
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		return s[:idx], s[idx+1:], true
	}
	return s, "", true
}

// ClassifyAll classifies every entry, stopping at the first failure so
// construction can abort with a named offending entry (spec: the
// resolver never silently skips an entry).
func ClassifyAll(entries []any) ([]Classified, error) {
	out := make([]Classified, 0, len(entries))
	for _, e := range entries {
		c, err := Classify(e)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
