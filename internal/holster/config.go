package ih

import (
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/sjc5/holster/internal/csspipe"
	"github.com/sjc5/holster/internal/util"
	"github.com/sjc5/kit/pkg/safecache"
)

type Logger = util.Logger

type Config struct {
	/*
		RootDir is the theme directory: the parent of "styles", "dist",
		"build/images" and the markup the unused-CSS pass scans. Every path
		in Paths, Dest and Files is relative to it. It is cleaned with
		filepath.Clean, so leaving it blank means ".".
	*/
	RootDir string

	Paths Paths
	Dest  Dest
	Files Files

	// Browsers is the autoprefixer target list.
	Browsers []string

	// Compatibility is the minifier's browser floor, e.g. "ie8".
	Compatibility string

	// KeepSpecialComments is how many "/*!" comments minification keeps.
	KeepSpecialComments int

	SizeLimits SizeLimits

	// UsedContent selects the markup and script files whose words decide
	// which selectors are used.
	UsedContent []string

	// CriticalToken is replaced with CriticalTokenReplacement in
	// non-production Sass output.
	CriticalToken            string
	CriticalTokenReplacement string

	// URLPrepend is prepended to relative url() references in
	// non-production Sass output, to resolve them from the dist folder.
	URLPrepend string

	// TemplateURICall is injected before every url() of the critical-path
	// template fragment.
	TemplateURICall string

	// BlocksListMode controls the import paths of the development block
	// manifest. The dist manifests always keep ".scss".
	BlocksListMode ManifestMode

	// SassBinary is the Dart Sass executable. Blank looks next to the
	// holster binary, then on the PATH.
	SassBinary string

	// Compiler overrides the Dart Sass compiler, mostly for tests.
	Compiler csspipe.Compiler

	DevConfig *DevConfig

	Logger Logger

	initOnce     sync.Once
	compilerOnce sync.Once
	dartSass     *csspipe.DartSass

	watchBindings *safecache.Cache[[]watchBinding]
}

type DevConfig struct {
	// WatchDebounce batches filesystem events. Defaults to 30ms.
	WatchDebounce time.Duration

	// RefreshServer starts a server-sent events endpoint that tells open
	// pages to reload their stylesheets after a watch-triggered task.
	RefreshServer bool

	// RefreshServerPort is the port of the refresh server; 0 picks the
	// first free port from 10000.
	RefreshServerPort int
}

type Paths struct {
	Images       []string
	BlocksFolder string
	// WatchRoot is the directory tree the watcher follows.
	WatchRoot string

	SassFiles    []string
	AllBlocks    []string
	BlocksOnly   []string
	CriticalPath []string
	Holsters     []string

	// Sass is what the development "sass" task compiles.
	Sass []string
	// SassChanged is what a watched change recompiles.
	SassChanged []string

	MainEntry     string
	CriticalEntry string
	HolstersEntry string

	// Compiled holds the precompiled bootstrap and holster stylesheets.
	Compiled string
}

type Dest struct {
	Dist   string
	Images string
}

type Files struct {
	Main        string
	Critical    string
	CriticalPHP string

	BlocksList         string // development manifest, written to <dist>/blocks
	BlocksListDist     string // written to the blocks folder
	CriticalBlocksList string // written to the blocks folder

	BootstrapInline string // inside Paths.Compiled
	HolstersCSS     string // inside Paths.Compiled
}

type SizeLimits struct {
	// Main and Critical are gzipped byte limits.
	Main     int64
	Critical int64
}

func DefaultConfig() *Config {
	c := &Config{}
	c.init()
	return c
}

func (c *Config) applyDefaults() {
	def := func(s *string, v string) {
		if *s == "" {
			*s = v
		}
	}
	defs := func(s *[]string, v ...string) {
		if len(*s) == 0 {
			*s = v
		}
	}

	def(&c.RootDir, ".")

	defs(&c.Paths.Images, "build/images/**/*")
	def(&c.Paths.BlocksFolder, "styles/blocks")
	def(&c.Paths.WatchRoot, "styles")
	defs(&c.Paths.SassFiles,
		"styles/*.scss",
		"styles/**/*.scss",
		"!styles/**/_*.scss",
		"!styles/common/holsters/**/*.scss",
	)
	defs(&c.Paths.AllBlocks,
		"styles/blocks/**/*.scss",
		"!styles/blocks/**/_*.scss",
		"!**/blocks.scss",
	)
	defs(&c.Paths.BlocksOnly,
		"styles/blocks/**/*.scss",
		"!styles/blocks/**/_*.scss",
		"!styles/blocks/*--cp/*.scss",
		"!**/blocks.scss",
		"!**/critical-path.scss",
	)
	defs(&c.Paths.CriticalPath,
		"styles/blocks/*--cp/*.scss",
		"!styles/blocks/**/_*.scss",
	)
	defs(&c.Paths.Holsters,
		"styles/common/holsters/*.scss",
		"styles/common/holsters/**/*.scss",
	)
	defs(&c.Paths.Sass,
		"styles/**/*.scss",
		"!**/blocks.scss",
		"!**/main.scss",
		"!**/holsters.scss",
		"!**/critical-path.scss",
	)
	defs(&c.Paths.SassChanged,
		"styles/**/*.scss",
		"!**/blocks.scss",
		"!styles/common/holsters/**/*.scss",
		"!**/critical-path.scss",
	)
	def(&c.Paths.MainEntry, "styles/main.scss")
	def(&c.Paths.CriticalEntry, "styles/blocks/critical-path.scss")
	def(&c.Paths.HolstersEntry, "styles/common/holsters/holsters.scss")
	def(&c.Paths.Compiled, "styles/compiled")

	def(&c.Dest.Dist, "dist")
	def(&c.Dest.Images, "images")

	def(&c.Files.Main, "main.css")
	def(&c.Files.Critical, "critical-path.css")
	def(&c.Files.CriticalPHP, "critical-path.php")
	def(&c.Files.BlocksList, "blocks.css")
	def(&c.Files.BlocksListDist, "blocks.scss")
	def(&c.Files.CriticalBlocksList, "critical-path.scss")
	def(&c.Files.BootstrapInline, "bootstrap-inline.css")
	def(&c.Files.HolstersCSS, "holsters.css")

	defs(&c.Browsers, csspipe.DefaultBrowsers...)
	def(&c.Compatibility, "ie8")
	if c.KeepSpecialComments == 0 {
		c.KeepSpecialComments = 1
	}
	if c.SizeLimits.Main == 0 {
		c.SizeLimits.Main = 20240
	}
	if c.SizeLimits.Critical == 0 {
		c.SizeLimits.Critical = 10240
	}
	defs(&c.UsedContent, "**/*.php", "js/**/*.js")

	def(&c.CriticalToken, "___ini")
	def(&c.CriticalTokenReplacement, ":not(simple_class_but_critical)")
	def(&c.URLPrepend, "../../")
	def(&c.TemplateURICall, "<?php echo get_template_directory_uri()?>")

	if c.Logger == nil {
		c.Logger = util.Log
	}
	if c.DevConfig != nil && c.DevConfig.WatchDebounce == 0 {
		c.DevConfig.WatchDebounce = defaultWatchDebounce
	}
}

func (c *Config) init() {
	c.initOnce.Do(func() {
		c.applyDefaults()
		c.watchBindings = safecache.New(c.getInitialWatchBindings, nil)
	})
}

func (c *Config) getCleanRootDir() string {
	return filepath.Clean(c.RootDir)
}

func (c *Config) compiler() csspipe.Compiler {
	if c.Compiler != nil {
		return c.Compiler
	}
	c.compilerOnce.Do(func() {
		c.dartSass = csspipe.NewDartSass(util.FindBinary(c.SassBinary, "sass"))
	})
	return c.dartSass
}

// Close stops the Sass compiler process, if one was started. A Compiler
// override that is an io.Closer is closed too.
func (c *Config) Close() error {
	if cl, ok := c.Compiler.(io.Closer); ok {
		return cl.Close()
	}
	if c.dartSass == nil {
		return nil
	}
	return c.dartSass.Close()
}
