// Package mcpsource is the fourth tool-source kind: an MCP server,
// connected lazily, whose tools are already described by typed
// JSON-schema — no cross-process Go-side introspection is needed, only
// the usual wrapping and schema emission.
package mcpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/toolindex/pkg/descriptor"
)

// Config describes how to reach an MCP server.
type Config struct {
	Name string

	// Command/Args launch a local stdio MCP server.
	Command string
	Args    []string
	Env     map[string]string

	// URL connects to an HTTP/SSE MCP server instead, when Command is
	// empty. Only stdio is implemented directly against mark3labs/mcp-go's
	// client.Client; HTTP transports route through the same client,
	// which accepts a streamable-http URL via client.NewStreamableHttpClient.
	URL string
}

// ToolInfo is one MCP-advertised tool, already typed via JSON Schema.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Source connects to one MCP server and exposes its tools, lazily.
type Source struct {
	cfg Config

	mu        sync.Mutex
	client    *client.Client
	connected bool
	tools     []ToolInfo
}

// New validates cfg and returns an unconnected Source.
func New(cfg Config) (*Source, error) {
	if cfg.Command == "" && cfg.URL == "" {
		return nil, fmt.Errorf("mcpsource: either Command or URL is required")
	}
	return &Source{cfg: cfg}, nil
}

// Name returns the toolset's configured name.
func (s *Source) Name() string { return s.cfg.Name }

// Tools connects on first call (lazy initialization, matching the
// teacher's mcptoolset) and returns the server's advertised tools.
func (s *Source) Tools(ctx context.Context) ([]ToolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return s.tools, nil
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s.tools, nil
}

func (s *Source) connect(ctx context.Context) error {
	var c *client.Client
	var err error

	if s.cfg.Command != "" {
		c, err = client.NewStdioMCPClient(s.cfg.Command, envSlice(s.cfg.Env), s.cfg.Args...)
	} else {
		c, err = client.NewStreamableHttpClient(s.cfg.URL)
	}
	if err != nil {
		return fmt.Errorf("mcpsource %q: creating client: %w", s.cfg.Name, err)
	}

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("mcpsource %q: starting client: %w", s.cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "toolindex", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"

	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return fmt.Errorf("mcpsource %q: initializing: %w", s.cfg.Name, err)
	}

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return fmt.Errorf("mcpsource %q: listing tools: %w", s.cfg.Name, err)
	}

	tools := make([]ToolInfo, 0, len(listResp.Tools))
	for _, t := range listResp.Tools {
		tools = append(tools, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: convertSchema(t.InputSchema),
		})
	}

	s.client = c
	s.tools = tools
	s.connected = true
	return nil
}

// Call invokes one MCP tool by name with the given arguments.
func (s *Source) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("mcpsource %q: not connected", s.cfg.Name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcpsource %q: calling %q: %w", s.cfg.Name, name, err)
	}
	return parseResult(resp)
}

// Close releases the underlying client connection, if any.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func parseResult(resp *mcp.CallToolResult) (any, error) {
	if resp.IsError {
		return nil, fmt.Errorf("mcp tool reported an error")
	}
	texts := make([]string, 0, len(resp.Content))
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	if len(texts) == 1 {
		var decoded any
		if err := json.Unmarshal([]byte(texts[0]), &decoded); err == nil {
			return decoded, nil
		}
		return texts[0], nil
	}
	return texts, nil
}

func envSlice(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	return out
}

// convertSchema marshals an MCP tool's typed input schema through JSON
// to get a plain map, kept on ToolInfo verbatim and translated at wrap
// time (pkg/index, through DescriptorTool) via descriptorFromJSONSchema.
func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// descriptorFromJSONSchema produces a best-effort descriptor.TypeTag
// tree from a JSON-Schema fragment ({"type": ..., "properties": ...,
// "enum": ...}), used to fit MCP tools into the same wrapper/schema
// pipeline as extracted tools.
func descriptorFromJSONSchema(schema map[string]any) descriptor.TypeTag {
	if enumRaw, ok := schema["enum"].([]any); ok {
		return descriptor.Literal(enumRaw...)
	}

	typeName, _ := schema["type"].(string)
	switch typeName {
	case "string":
		return descriptor.Primitive(descriptor.KindString)
	case "integer":
		return descriptor.Primitive(descriptor.KindInteger)
	case "number":
		return descriptor.Primitive(descriptor.KindNumber)
	case "boolean":
		return descriptor.Primitive(descriptor.KindBoolean)
	case "array":
		item := descriptor.Primitive(descriptor.KindString)
		if items, ok := schema["items"].(map[string]any); ok {
			item = descriptorFromJSONSchema(items)
		}
		return descriptor.List(item)
	case "object":
		props, _ := schema["properties"].(map[string]any)
		fields := make(map[string]descriptor.TypeTag, len(props))
		for name, raw := range props {
			if fieldSchema, ok := raw.(map[string]any); ok {
				fields[name] = descriptorFromJSONSchema(fieldSchema)
			}
		}
		return descriptor.Record("", fields)
	default:
		return descriptor.Primitive(descriptor.KindObject)
	}
}

// DescriptorTool builds a full descriptor.Tool for one MCP ToolInfo,
// so pkg/index can wrap it exactly like an extracted remote tool.
func DescriptorTool(sourceName string, t ToolInfo) descriptor.Tool {
	props, _ := t.InputSchema["properties"].(map[string]any)
	requiredSet := map[string]bool{}
	if reqList, ok := t.InputSchema["required"].([]any); ok {
		for _, r := range reqList {
			if s, ok := r.(string); ok {
				requiredSet[s] = true
			}
		}
	}

	params := make([]descriptor.Param, 0, len(props))
	for name, raw := range props {
		fieldSchema, _ := raw.(map[string]any)
		tt := descriptorFromJSONSchema(fieldSchema)
		def := descriptor.NoDefault()
		if !requiredSet[name] {
			def = descriptor.NewDefault(nil)
			tt = descriptor.Union(tt, descriptor.Primitive(descriptor.KindNull))
		}
		params = append(params, descriptor.Param{
			Name:    name,
			Kind:    descriptor.PositionalOrKeyword,
			Default: def,
			Type:    tt,
		})
	}

	return descriptor.Tool{
		ID:     sourceName + "." + t.Name,
		Params: params,
		Return: descriptor.Primitive(descriptor.KindObject),
		Doc:    t.Description,
		Shape:  descriptor.Plain,
	}
}
