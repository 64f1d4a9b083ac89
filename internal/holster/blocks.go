package ih

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sjc5/holster/internal/globset"
	"gopkg.in/yaml.v3"
)

// ManifestMode decides how a block manifest writes each import path.
type ManifestMode int

const (
	// ManifestCSS points imports at the compiled ".css" files.
	ManifestCSS ManifestMode = iota
	// ManifestKeep keeps the source ".scss" extension.
	ManifestKeep
	// ManifestStrip drops the extension and lets the importer resolve it.
	ManifestStrip
)

var manifestModeNames = map[ManifestMode]string{
	ManifestCSS:   "css",
	ManifestKeep:  "keep",
	ManifestStrip: "strip",
}

func (m ManifestMode) String() string {
	if name, ok := manifestModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ManifestMode(%d)", int(m))
}

func ParseManifestMode(s string) (ManifestMode, error) {
	for mode, name := range manifestModeNames {
		if name == strings.ToLower(strings.TrimSpace(s)) {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown blocks list mode %q (want css, keep or strip)", s)
}

func (m *ManifestMode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	mode, err := ParseManifestMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// BlocksManifest builds one import line per file, in the given order. Paths
// are written relative to root.
func BlocksManifest(root string, rels []string, mode ManifestMode) []byte {
	var buf bytes.Buffer
	for i, rel := range rels {
		p := strings.TrimPrefix(rel, strings.TrimSuffix(root, "/")+"/")
		switch mode {
		case ManifestCSS:
			p = strings.TrimSuffix(p, path.Ext(p)) + ".css"
		case ManifestStrip:
			p = strings.TrimSuffix(p, path.Ext(p))
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, `@import "%s";`, p)
	}
	return buf.Bytes()
}

type blocksList struct {
	patterns globset.Set
	dest     string // root-relative file
	mode     ManifestMode
}

// writeBlocksList expands the block patterns and writes their manifest. No
// matches write an empty manifest.
func (c *Config) writeBlocksList(bl blocksList) error {
	root := c.getCleanRootDir()
	matches, err := bl.patterns.Expand(root)
	if err != nil {
		return fmt.Errorf("error expanding blocks: %w", err)
	}
	out := filepath.Join(root, filepath.FromSlash(bl.dest))
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("error creating blocks list directory: %w", err)
	}
	if err := os.WriteFile(out, BlocksManifest(c.Paths.BlocksFolder, matches, bl.mode), 0644); err != nil {
		return fmt.Errorf("error writing blocks list: %w", err)
	}
	c.Logger.Infof("blocks list %s: %d imports", bl.dest, len(matches))
	return nil
}
