// Package index is the top-level façade: it resolves a heterogeneous
// list of tool sources (inline callables, local directories, remote
// git repositories, MCP servers) into one addressable registry of
// wrapped tools, and exposes execution by name.
package index

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kadirpekel/toolindex/pkg/descriptor"
	"github.com/kadirpekel/toolindex/pkg/env"
	"github.com/kadirpekel/toolindex/pkg/extract"
	"github.com/kadirpekel/toolindex/pkg/invoke"
	"github.com/kadirpekel/toolindex/pkg/mcpsource"
	"github.com/kadirpekel/toolindex/pkg/metrics"
	"github.com/kadirpekel/toolindex/pkg/oracle"
	"github.com/kadirpekel/toolindex/pkg/parseprose"
	"github.com/kadirpekel/toolindex/pkg/reconstruct"
	"github.com/kadirpekel/toolindex/pkg/registry"
	"github.com/kadirpekel/toolindex/pkg/schema"
	"github.com/kadirpekel/toolindex/pkg/toolsource"
	"github.com/kadirpekel/toolindex/pkg/tool"
	"github.com/kadirpekel/toolindex/pkg/wrapper"
	"golang.org/x/sync/errgroup"
)

// NameError reports that a requested tool name did not resolve to
// exactly one registered tool: either nothing matched, or more than
// one tool shares the same unique suffix.
type NameError struct {
	Requested string
	Matches   []string
}

func (e *NameError) Error() string {
	if len(e.Matches) == 0 {
		return fmt.Sprintf("no tool matches %q", e.Requested)
	}
	return fmt.Sprintf("%q is ambiguous: matches %s", e.Requested, strings.Join(e.Matches, ", "))
}

// ConstructionError reports a fatal error while building the index:
// either a source could not be resolved at all, or two tools ended up
// registered under the same fully-qualified name.
type ConstructionError struct {
	Msg string
	Err error
}

func (e *ConstructionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("building tool index: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("building tool index: %s", e.Msg)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// Options configures index construction.
type Options struct {
	CacheRoot         string
	InterpreterBinary string
	OracleEndpoint    string
	Logger            *slog.Logger
	Metrics           *metrics.Metrics

	// Extractor recovers {toolname, kwargs} from prose for
	// ParseAndExecute. Defaults to parseprose.Fallback{}.
	Extractor parseprose.Extractor
}

// Index is the constructed, queryable tool registry.
type Index struct {
	reg       *registry.BaseRegistry[tool.Tool]
	logger    *slog.Logger
	metrics   *metrics.Metrics
	extractor parseprose.Extractor
}

// New resolves every entry and builds the index. Per-tool extraction
// failures are logged and skipped (the rest of that source's tools
// still load); a source that cannot be resolved at all, or a final
// duplicate tool name, aborts construction.
func New(ctx context.Context, entries []any, opts Options) (*Index, error) {
	start := time.Now()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Extractor == nil {
		opts.Extractor = parseprose.Fallback{}
	}

	classified, err := toolsource.ClassifyAll(entries)
	if err != nil {
		return nil, &ConstructionError{Msg: "classifying sources", Err: err}
	}

	oc := oracle.New(opts.OracleEndpoint)
	envMgr := env.NewManager(opts.CacheRoot, opts.InterpreterBinary, oc)

	// Each source resolves independently (network/clone/subprocess
	// I/O dominates wall-clock here), but tools are registered
	// afterward in declaration order so name-map construction and
	// duplicate detection stay deterministic regardless of which
	// source happened to finish first.
	resolved := make([][]*wrapper.Wrapped, len(classified))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range classified {
		i, c := i, c
		g.Go(func() error {
			ws, err := resolveSource(gctx, envMgr, c, opts.Logger, opts.Metrics)
			if err != nil {
				return err
			}
			resolved[i] = ws
			opts.Metrics.RecordSourceResolved(string(c.Kind))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reg := registry.NewBaseRegistry[tool.Tool]()
	for _, ws := range resolved {
		for _, w := range ws {
			if err := reg.Register(w.Name(), w); err != nil {
				return nil, &ConstructionError{Msg: fmt.Sprintf("registering tool %q", w.Name()), Err: err}
			}
		}
	}

	opts.Metrics.RecordConstruction(time.Since(start))

	return &Index{reg: reg, logger: opts.Logger, metrics: opts.Metrics, extractor: opts.Extractor}, nil
}

// resolveSource drives one classified source to its wrapped tools,
// without touching the shared registry (construction parallelizes
// this; registration itself stays sequential for deterministic order).
func resolveSource(ctx context.Context, envMgr *env.Manager, c toolsource.Classified, logger *slog.Logger, m *metrics.Metrics) ([]*wrapper.Wrapped, error) {
	switch c.Kind {
	case toolsource.KindInline:
		w, err := addInline(c.Inline)
		if err != nil {
			return nil, err
		}
		return []*wrapper.Wrapped{w}, nil

	case toolsource.KindLocal:
		return addDirectorySource(ctx, envMgr, c.Local.Path, c.Local.CreateEnv, c.Local.EnvVars, logger, m)

	case toolsource.KindRemote:
		return addRemoteSource(ctx, envMgr, c.Remote, logger, m)

	case toolsource.KindMCP:
		return addMCPSource(ctx, c.MCP, logger)

	default:
		return nil, &ConstructionError{Msg: fmt.Sprintf("unknown source kind %q", c.Kind)}
	}
}

func addInline(in toolsource.Inline) (*wrapper.Wrapped, error) {
	it, ok := in.Value.(InlineTool)
	if !ok {
		return nil, &ConstructionError{Msg: fmt.Sprintf("inline entry %v is not an index.InlineTool", in.Value)}
	}

	sig := reconstruct.BuildSignature(it.asDescriptor())
	return wrapper.Wrap(it.ID, it.Doc, it.Shape, sig, &inlineCaller{t: it}), nil
}

// addDirectorySource loads <path>/tools.toml and extracts every
// declared tool's signature. A tool whose signature cannot be
// extracted is logged and skipped rather than aborting the whole
// source.
func addDirectorySource(ctx context.Context, envMgr *env.Manager, path string, createEnv bool, envVars map[string]string, logger *slog.Logger, m *metrics.Metrics) ([]*wrapper.Wrapped, error) {
	interp, err := envMgr.PrepareLocal(ctx, path, createEnv, envVars)
	if err != nil {
		return nil, &ConstructionError{Msg: fmt.Sprintf("preparing local source %q", path), Err: err}
	}

	toolIDs, err := loadManifest(extract.ManifestPath(path))
	if err != nil {
		return nil, &ConstructionError{Msg: fmt.Sprintf("loading manifest for %q", path), Err: err}
	}

	return buildWrapped(ctx, interp, toolIDs, path, logger, m)
}

// addRemoteSource clones the remote repository (caching it under
// envMgr's cache root), installs its declared dependencies, and
// extracts every tool its manifest names.
func addRemoteSource(ctx context.Context, envMgr *env.Manager, src toolsource.RemoteSource, logger *slog.Logger, m *metrics.Metrics) ([]*wrapper.Wrapped, error) {
	interp, err := envMgr.PrepareRemote(ctx, src.ID, src.Revision, src.EnvVars)
	if err != nil {
		return nil, &ConstructionError{Msg: fmt.Sprintf("preparing remote source %q", src.ID), Err: err}
	}

	toolIDs, err := loadManifest(extract.ManifestPath(interp.SourceDir))
	if err != nil {
		return nil, &ConstructionError{Msg: fmt.Sprintf("loading manifest for %q", src.ID), Err: err}
	}

	return buildWrapped(ctx, interp, toolIDs, src.ID, logger, m)
}

func buildWrapped(ctx context.Context, interp *env.Interpreter, toolIDs []string, sourceName string, logger *slog.Logger, m *metrics.Metrics) ([]*wrapper.Wrapped, error) {
	wrapped := make([]*wrapper.Wrapped, 0, len(toolIDs))
	for _, toolID := range toolIDs {
		desc, err := extract.One(ctx, interp, toolID)
		if err != nil {
			logger.Warn("skipping tool: signature extraction failed", "tool", toolID, "error", err)
			m.RecordExtractionFailure(sourceName)
			continue
		}

		sig := reconstruct.BuildSignature(*desc)
		raw := invoke.New(interp, toolID, desc.Shape)
		wrapped = append(wrapped, wrapper.Wrap(desc.ID, desc.Doc, desc.Shape, sig, raw))
	}
	return wrapped, nil
}

// addMCPSource connects to the MCP server and builds one wrapped tool
// per advertised MCP tool. MCP tools are always Plain-shaped (spec's
// generator/coroutine shapes are a Python-source concept; MCP already
// normalizes to request/response).
func addMCPSource(ctx context.Context, cfg toolsource.MCPEntry, logger *slog.Logger) ([]*wrapper.Wrapped, error) {
	name := cfg.Command
	if name == "" {
		name = cfg.URL
	}

	src, err := mcpsource.New(mcpsource.Config{
		Name:    name,
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     cfg.EnvVars,
		URL:     cfg.URL,
	})
	if err != nil {
		return nil, &ConstructionError{Msg: fmt.Sprintf("configuring MCP source %q", name), Err: err}
	}

	infos, err := src.Tools(ctx)
	if err != nil {
		return nil, &ConstructionError{Msg: fmt.Sprintf("connecting to MCP source %q", name), Err: err}
	}

	wrapped := make([]*wrapper.Wrapped, 0, len(infos))
	for _, info := range infos {
		desc := mcpsource.DescriptorTool(name, info)
		sig := reconstruct.BuildSignature(desc)
		raw := &mcpCaller{src: src, toolName: info.Name}
		wrapped = append(wrapped, wrapper.Wrap(desc.ID, desc.Doc, desc.Shape, sig, raw))
	}
	return wrapped, nil
}

// mcpCaller adapts one MCP source's Call method to wrapper.RawCaller.
// MCP tools never stream; Stream is unreachable since DescriptorTool
// always declares descriptor.Plain.
type mcpCaller struct {
	src      *mcpsource.Source
	toolName string
}

func (c *mcpCaller) Call(ctx context.Context, args map[string]any) (any, error) {
	return c.src.Call(ctx, c.toolName, args)
}

func (c *mcpCaller) Stream(ctx context.Context, args map[string]any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		yield(nil, fmt.Errorf("mcp tool %q does not stream", c.toolName))
	}
}

// resolve finds the single registered tool matching name: either an
// exact fully-qualified match, or the unique tool whose id ends in
// "."+name. Matching more than one, or none, is a NameError.
func (idx *Index) resolve(name string) (tool.Tool, error) {
	if t, ok := idx.reg.Get(name); ok {
		return t, nil
	}

	suffix := "." + name
	var matches []string
	for _, id := range idx.reg.Names() {
		if id == name || strings.HasSuffix(id, suffix) {
			matches = append(matches, id)
		}
	}

	if len(matches) == 1 {
		t, _ := idx.reg.Get(matches[0])
		return t, nil
	}
	sort.Strings(matches)
	return nil, &NameError{Requested: name, Matches: matches}
}

// Names lists every registered tool's fully-qualified id, in the
// order its source declared it.
func (idx *Index) Names() []string { return idx.reg.Names() }

// Describe returns the apparent (post-wrap) schema for one tool in the
// given dialect.
func (idx *Index) Describe(name string, dialect schema.Dialect) (map[string]any, error) {
	t, err := idx.resolve(name)
	if err != nil {
		return nil, err
	}
	ct, ok := t.(interface {
		Signature() reconstruct.Signature
	})
	if !ok {
		return nil, fmt.Errorf("tool %q does not expose a signature", name)
	}

	sig := ct.Signature()
	params := make([]schema.ParamSignature, 0, len(sig.Params))
	for _, p := range sig.Params {
		params = append(params, schema.ParamSignature{
			Name:     p.Name,
			Type:     p.Type,
			Required: !p.Default.HasDefault(),
		})
	}

	return schema.Format(schema.ToolSignature{
		Name:        t.Name(),
		Description: t.Description(),
		Params:      params,
	}, dialect)
}

// Execute runs name to its single result, resolving generator shapes
// to their last value.
func (idx *Index) Execute(ctx context.Context, name string, kwargs map[string]any) (*tool.Result, error) {
	t, err := idx.resolve(name)
	if err != nil {
		return nil, err
	}
	ct, ok := t.(tool.CallableTool)
	if !ok {
		return nil, fmt.Errorf("tool %q is not callable", name)
	}

	start := time.Now()
	result, err := ct.Call(ctx, kwargs)
	idx.metrics.RecordToolCall(t.Name(), time.Since(start), err)
	return result, err
}

// StreamExecute runs name, yielding each result as it arrives. A
// Plain/Coroutine tool yields exactly one value.
func (idx *Index) StreamExecute(ctx context.Context, name string, kwargs map[string]any) iter.Seq2[*tool.Result, error] {
	t, err := idx.resolve(name)
	if err != nil {
		return func(yield func(*tool.Result, error) bool) { yield(nil, err) }
	}
	st, ok := t.(tool.StreamingTool)
	if !ok {
		return func(yield func(*tool.Result, error) bool) {
			yield(nil, fmt.Errorf("tool %q is not streaming", name))
		}
	}
	return st.CallStreaming(ctx, kwargs)
}

// ParseAndExecute recovers a tool call from free-form prose (via the
// configured Extractor, a heuristic fallback by default) and executes
// it. Useful when a model's output names the intended call in text
// rather than through a structured tool-call API.
func (idx *Index) ParseAndExecute(ctx context.Context, text string) (*tool.Result, error) {
	call, err := idx.extractor.Extract(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("parsing tool call: %w", err)
	}
	return idx.Execute(ctx, call.ToolName, call.Kwargs)
}

// Shape reports the execution shape of one registered tool.
func (idx *Index) Shape(name string) (descriptor.Shape, error) {
	t, err := idx.resolve(name)
	if err != nil {
		return "", err
	}
	return t.Shape(), nil
}
