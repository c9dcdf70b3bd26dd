package config

import (
	"fmt"

	"github.com/kadirpekel/toolindex/pkg/toolsource"
)

// ToolEntries converts every declared Source into the typed value
// pkg/index.New expects: a toolsource.LocalSource, RemoteSource, or
// MCPEntry, chosen by which keys the map sets. A source with none of
// the recognized keys is an error rather than a silent no-op.
func (c *Config) ToolEntries() ([]any, error) {
	entries := make([]any, 0, len(c.Tools))
	for i, src := range c.Tools {
		entry, err := sourceEntry(src)
		if err != nil {
			return nil, fmt.Errorf("tools[%d]: %w", i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func sourceEntry(src Source) (any, error) {
	switch {
	case src["path"] != nil:
		path, _ := src["path"].(string)
		return toolsource.LocalSource{
			Path:      path,
			CreateEnv: boolField(src, "create_env"),
			EnvVars:   stringMapField(src, "env"),
		}, nil

	case src["repo"] != nil:
		repo, _ := src["repo"].(string)
		revision, _ := src["revision"].(string)
		return toolsource.RemoteSource{
			ID:       repo,
			Revision: revision,
			EnvVars:  stringMapField(src, "env"),
		}, nil

	case src["mcp_command"] != nil, src["mcp_url"] != nil:
		command, _ := src["mcp_command"].(string)
		url, _ := src["mcp_url"].(string)
		return toolsource.MCPEntry{
			Command: command,
			Args:    stringSliceField(src, "mcp_args"),
			URL:     url,
			EnvVars: stringMapField(src, "env"),
		}, nil

	default:
		return nil, fmt.Errorf("source %v names none of path, repo, mcp_command, mcp_url", src)
	}
}

func boolField(src Source, key string) bool {
	v, _ := src[key].(bool)
	return v
}

func stringMapField(src Source, key string) map[string]string {
	raw, ok := src[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func stringSliceField(src Source, key string) []string {
	raw, ok := src[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
