package ih

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const ProjectFileName = "holster.yaml"

// ProjectFile is the optional per-theme settings file. Every field left out
// keeps its default.
type ProjectFile struct {
	Root                string       `yaml:"root"`
	SassBinary          string       `yaml:"sass_binary"`
	Browsers            []string     `yaml:"browsers"`
	Compatibility       string       `yaml:"compatibility"`
	KeepSpecialComments int          `yaml:"keep_special_comments"`
	BlocksListMode      ManifestMode `yaml:"blocks_list_mode"`
	UsedContent         []string     `yaml:"used_content"`
	URLPrepend          string       `yaml:"url_prepend"`
	TemplateURICall     string       `yaml:"template_uri_call"`

	SizeLimits struct {
		Main     int64 `yaml:"main"`
		Critical int64 `yaml:"critical"`
	} `yaml:"size_limits"`

	Paths struct {
		Images       []string `yaml:"images"`
		BlocksFolder string   `yaml:"blocks_folder"`
		WatchRoot    string   `yaml:"watch_root"`
		SassFiles    []string `yaml:"sass_files"`
		Holsters     []string `yaml:"holsters"`
		Compiled     string   `yaml:"compiled"`
	} `yaml:"paths"`

	Dest struct {
		Dist   string `yaml:"dist"`
		Images string `yaml:"images"`
	} `yaml:"dest"`

	Dev *struct {
		WatchDebounce     time.Duration `yaml:"watch_debounce"`
		RefreshServer     bool          `yaml:"refresh_server"`
		RefreshServerPort int           `yaml:"refresh_server_port"`
	} `yaml:"dev"`
}

// LoadProjectFile reads and validates a project file. A missing file
// returns an error wrapping os.ErrNotExist.
func LoadProjectFile(filename string) (*ProjectFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading project file: %w", err)
	}
	return ParseProjectFile(data)
}

func ParseProjectFile(data []byte) (*ProjectFile, error) {
	var pf ProjectFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error decoding project file: %w", err)
	}
	if err := pf.normalize(); err != nil {
		return nil, err
	}
	return &pf, nil
}

// normalize cleans every path and rejects absolute ones, which would
// escape the theme root.
func (pf *ProjectFile) normalize() error {
	var errs []error
	one := func(field string, p *string) {
		if *p == "" {
			return
		}
		if filepath.IsAbs(*p) || path.IsAbs(*p) {
			errs = append(errs, fmt.Errorf("%s: %q must be relative to the theme root", field, *p))
			return
		}
		*p = cleanRel(*p)
	}
	many := func(field string, ps []string) {
		for i := range ps {
			neg := strings.HasPrefix(ps[i], "!")
			p := strings.TrimPrefix(ps[i], "!")
			one(field, &p)
			if neg {
				p = "!" + p
			}
			ps[i] = p
		}
	}

	many("paths.images", pf.Paths.Images)
	one("paths.blocks_folder", &pf.Paths.BlocksFolder)
	one("paths.watch_root", &pf.Paths.WatchRoot)
	many("paths.sass_files", pf.Paths.SassFiles)
	many("paths.holsters", pf.Paths.Holsters)
	one("paths.compiled", &pf.Paths.Compiled)
	one("dest.dist", &pf.Dest.Dist)
	one("dest.images", &pf.Dest.Images)
	many("used_content", pf.UsedContent)

	if pf.SizeLimits.Main < 0 || pf.SizeLimits.Critical < 0 {
		errs = append(errs, fmt.Errorf("size_limits must not be negative"))
	}
	if pf.Dev != nil && pf.Dev.WatchDebounce < 0 {
		errs = append(errs, fmt.Errorf("dev.watch_debounce must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("error validating project file: %w", errors.Join(errs...))
	}
	return nil
}

func cleanRel(p string) string {
	p = path.Clean(filepath.ToSlash(p))
	return strings.TrimPrefix(p, "./")
}

// Apply copies the fields the file sets onto c. Root is resolved against
// dir, the directory holding the file.
func (pf *ProjectFile) Apply(c *Config, dir string) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	sets := func(dst *[]string, v []string) {
		if len(v) > 0 {
			*dst = v
		}
	}

	if pf.Root != "" && !filepath.IsAbs(pf.Root) {
		c.RootDir = filepath.Join(dir, pf.Root)
	} else if pf.Root != "" {
		c.RootDir = pf.Root
	} else if c.RootDir == "" || c.RootDir == "." {
		c.RootDir = dir
	}

	set(&c.SassBinary, pf.SassBinary)
	sets(&c.Browsers, pf.Browsers)
	set(&c.Compatibility, pf.Compatibility)
	if pf.KeepSpecialComments != 0 {
		c.KeepSpecialComments = pf.KeepSpecialComments
	}
	c.BlocksListMode = pf.BlocksListMode
	sets(&c.UsedContent, pf.UsedContent)
	set(&c.URLPrepend, pf.URLPrepend)
	set(&c.TemplateURICall, pf.TemplateURICall)

	if pf.SizeLimits.Main > 0 {
		c.SizeLimits.Main = pf.SizeLimits.Main
	}
	if pf.SizeLimits.Critical > 0 {
		c.SizeLimits.Critical = pf.SizeLimits.Critical
	}

	sets(&c.Paths.Images, pf.Paths.Images)
	set(&c.Paths.BlocksFolder, pf.Paths.BlocksFolder)
	set(&c.Paths.WatchRoot, pf.Paths.WatchRoot)
	sets(&c.Paths.SassFiles, pf.Paths.SassFiles)
	sets(&c.Paths.Holsters, pf.Paths.Holsters)
	set(&c.Paths.Compiled, pf.Paths.Compiled)
	set(&c.Dest.Dist, pf.Dest.Dist)
	set(&c.Dest.Images, pf.Dest.Images)

	if pf.Dev != nil {
		c.DevConfig = &DevConfig{
			WatchDebounce:     pf.Dev.WatchDebounce,
			RefreshServer:     pf.Dev.RefreshServer,
			RefreshServerPort: pf.Dev.RefreshServerPort,
		}
		if c.DevConfig.WatchDebounce == 0 {
			c.DevConfig.WatchDebounce = defaultWatchDebounce
		}
	}
}
