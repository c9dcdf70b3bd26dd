// Command toolindex is the CLI for the tool index.
//
// Usage:
//
//	toolindex list --config toolindex.yaml
//	toolindex describe search.run --config toolindex.yaml --dialect anthropic
//	toolindex call search.run --config toolindex.yaml --args '{"query":"go generics"}'
//	toolindex schema --config toolindex.yaml --dialect openai-chat-completions
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/toolindex/pkg/config"
	"github.com/kadirpekel/toolindex/pkg/index"
	"github.com/kadirpekel/toolindex/pkg/logger"
	"github.com/kadirpekel/toolindex/pkg/metrics"
	"github.com/kadirpekel/toolindex/pkg/schema"
)

// CLI defines the command-line interface.
type CLI struct {
	List         ListCmd         `cmd:"" help:"List every registered tool's fully-qualified id."`
	Describe     DescribeCmd     `cmd:"" help:"Show one tool's schema in a given dialect."`
	Call         CallCmd         `cmd:"" help:"Invoke one tool and print its result."`
	Schema       SchemaCmd       `cmd:"" help:"Emit every tool's schema in a given dialect."`
	ConfigSchema ConfigSchemaCmd `cmd:"" name:"config-schema" help:"Emit the JSON Schema for the config file itself."`

	Config   string `short:"c" required:"" help:"Path to the tool index config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("toolindex"),
		kong.Description("toolindex - typed registry and runtime for agent tools"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

// buildIndex loads cli.Config and constructs the index every
// subcommand operates on.
func buildIndex(ctx context.Context, cli *CLI) (*index.Index, error) {
	logger.Init(logger.ParseLevel(cli.LogLevel), os.Stderr)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	entries, err := cfg.ToolEntries()
	if err != nil {
		return nil, fmt.Errorf("converting tool sources: %w", err)
	}

	m := metrics.New(&metrics.Config{Enabled: cfg.MetricsEnabled, Namespace: "toolindex"})

	idx, err := index.New(ctx, entries, index.Options{
		CacheRoot:         cfg.CacheRoot,
		InterpreterBinary: cfg.InterpreterBinary,
		OracleEndpoint:    cfg.OracleEndpoint,
		Logger:            logger.Get(),
		Metrics:           m,
	})
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}
	return idx, nil
}

func parseDialect(s string) (schema.Dialect, error) {
	switch schema.Dialect(s) {
	case schema.OpenAIChatCompletions, schema.OpenAIResponses, schema.Anthropic, schema.GoogleGemini:
		return schema.Dialect(s), nil
	default:
		return "", fmt.Errorf("unknown dialect %q (valid: %s, %s, %s, %s)", s,
			schema.OpenAIChatCompletions, schema.OpenAIResponses, schema.Anthropic, schema.GoogleGemini)
	}
}

// ListCmd lists every registered tool's id.
type ListCmd struct{}

func (c *ListCmd) Run(cli *CLI) error {
	idx, err := buildIndex(context.Background(), cli)
	if err != nil {
		return err
	}
	for _, name := range idx.Names() {
		fmt.Println(name)
	}
	return nil
}

// DescribeCmd shows one tool's schema.
type DescribeCmd struct {
	Tool    string `arg:"" help:"Fully-qualified or unique-suffix tool name."`
	Dialect string `default:"openai-chat-completions" help:"Schema dialect."`
}

func (c *DescribeCmd) Run(cli *CLI) error {
	idx, err := buildIndex(context.Background(), cli)
	if err != nil {
		return err
	}

	dialect, err := parseDialect(c.Dialect)
	if err != nil {
		return err
	}

	out, err := idx.Describe(c.Tool, dialect)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// CallCmd invokes one tool.
type CallCmd struct {
	Tool string `arg:"" help:"Fully-qualified or unique-suffix tool name."`
	Args string `default:"{}" help:"JSON object of keyword arguments."`
}

func (c *CallCmd) Run(cli *CLI) error {
	var kwargs map[string]any
	if err := json.Unmarshal([]byte(c.Args), &kwargs); err != nil {
		return fmt.Errorf("parsing --args as JSON: %w", err)
	}

	idx, err := buildIndex(context.Background(), cli)
	if err != nil {
		return err
	}

	result, err := idx.Execute(context.Background(), c.Tool, kwargs)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result.Content)
}

// SchemaCmd emits every tool's schema in one dialect.
type SchemaCmd struct {
	Dialect string `default:"openai-chat-completions" help:"Schema dialect."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	idx, err := buildIndex(context.Background(), cli)
	if err != nil {
		return err
	}

	dialect, err := parseDialect(c.Dialect)
	if err != nil {
		return err
	}

	schemas := make([]map[string]any, 0, len(idx.Names()))
	for _, name := range idx.Names() {
		out, err := idx.Describe(name, dialect)
		if err != nil {
			return fmt.Errorf("describing %q: %w", name, err)
		}
		schemas = append(schemas, out)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(schemas)
}

// ConfigSchemaCmd emits the JSON Schema of the config file format
// itself, for editor/IDE validation and external tooling — distinct
// from SchemaCmd, which describes registered tools.
type ConfigSchemaCmd struct {
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *ConfigSchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:           true,
	}

	configSchema := reflector.Reflect(&config.Config{})
	configSchema.Title = "toolindex configuration schema"
	configSchema.Description = "Configuration schema for the toolindex runtime config file"

	enc := json.NewEncoder(os.Stdout)
	if !c.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(configSchema)
}
