package index

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// manifest mirrors tools.toml's required shape: a single [index]
// section with an ordered `tools` list of dotted symbol paths.
type manifest struct {
	Index struct {
		Tools []string `toml:"tools"`
	} `toml:"index"`
}

// loadManifest reads and parses <sourceRoot>/tools.toml. Missing file
// or missing index.tools is a load error, per the external-interface
// spec for the manifest.
func loadManifest(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	if len(m.Index.Tools) == 0 {
		return nil, fmt.Errorf("manifest %s has no index.tools entries", path)
	}

	return m.Index.Tools, nil
}
