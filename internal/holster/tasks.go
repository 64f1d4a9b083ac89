package ih

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sjc5/holster/internal/csspipe"
	"github.com/sjc5/holster/internal/globset"
	"github.com/sjc5/holster/internal/taskgraph"
)

type (
	Task       = taskgraph.Task[Options]
	Graph      = taskgraph.Graph[Options]
	Invocation = taskgraph.Invocation[Options]
)

const DefaultTask = "default"

var urlFuncRegex = regexp.MustCompile(`url\((.*?)\)`)

// Graph validates the theme's task set.
func (c *Config) Graph() (*Graph, error) {
	c.init()
	r := taskgraph.NewRegistry[Options]()
	for _, t := range c.tasks() {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r.Graph()
}

// Run runs names, in order, in one invocation with opts. No names runs the
// default task.
func (c *Config) Run(ctx context.Context, opts Options, names ...string) error {
	g, err := c.Graph()
	if err != nil {
		return fmt.Errorf("error building task graph: %w", err)
	}
	if len(names) == 0 {
		names = []string{DefaultTask}
	}
	_, err = taskgraph.NewRunner(g, c.Logger).Run(ctx, opts, names...)
	return err
}

func (c *Config) tasks() []Task {
	dist := c.Dest.Dist
	mainCSS := c.distFile(c.Files.Main)
	criticalCSS := c.distFile(c.Files.Critical)

	tasks := []Task{
		{
			Name:        "clean",
			Description: "Remove the dist folder",
			Run: func(context.Context, *Invocation) error {
				if err := os.RemoveAll(filepath.Join(c.getCleanRootDir(), filepath.FromSlash(dist))); err != nil {
					return fmt.Errorf("error removing %s: %w", dist, err)
				}
				return nil
			},
		},
		{
			Name:        "sass:blocks_list",
			Description: "Write the development block manifest",
			Run: func(context.Context, *Invocation) error {
				return c.writeBlocksList(blocksList{
					patterns: globset.New(c.Paths.AllBlocks...),
					dest:     path.Join(c.distBlocksDir(), c.Files.BlocksList),
					mode:     c.BlocksListMode,
				})
			},
		},
		{
			Name:        "sass:blocks_list:dist",
			Description: "Write the block manifest imported by the main stylesheet",
			Run: func(context.Context, *Invocation) error {
				return c.writeBlocksList(blocksList{
					patterns: globset.New(c.Paths.BlocksOnly...),
					dest:     path.Join(c.Paths.BlocksFolder, c.Files.BlocksListDist),
					mode:     ManifestKeep,
				})
			},
		},
		{
			Name:        "critical:blocks_list:dist",
			Description: "Write the critical-path block manifest",
			Run: func(context.Context, *Invocation) error {
				return c.writeBlocksList(blocksList{
					patterns: globset.New(c.Paths.CriticalPath...),
					dest:     path.Join(c.Paths.BlocksFolder, c.Files.CriticalBlocksList),
					mode:     ManifestKeep,
				})
			},
		},
		{
			Name:        "styles:add-css-imports",
			Description: "Write the development main stylesheet as imports",
			Run: func(context.Context, *Invocation) error {
				return c.writeMainImports()
			},
		},
		{
			Name:        "sass",
			Description: "Compile every stylesheet into dist",
			Run: func(ctx context.Context, inv *Invocation) error {
				return c.runSass(ctx, "sass", inv.Options(), globset.New(c.Paths.Sass...), dist)
			},
		},
		{
			Name:        "sass:partials",
			Description: "Recompile the block directories of changed partials",
			Run:         c.sassPartials,
		},
		{
			Name:        "sass:changed",
			Description: "Recompile stylesheets after a change",
			Run: func(ctx context.Context, inv *Invocation) error {
				return c.runSass(ctx, "sass:changed", inv.Options(), globset.New(c.Paths.SassChanged...), dist)
			},
		},
		{
			Name:        "sass:compile",
			Description: "Block manifest, stylesheets and main imports",
			Run: func(ctx context.Context, inv *Invocation) error {
				return inv.Series(ctx, "sass:blocks_list", "sass", "styles:add-css-imports")
			},
		},
		{
			Name:        "sass:dist",
			Description: "Compile the main stylesheet for production",
			Deps:        []string{"sass:blocks_list:dist"},
			Run: func(ctx context.Context, inv *Invocation) error {
				return c.runSass(ctx, "sass:dist", inv.Options().AsProduction(), globset.New(c.Paths.MainEntry), dist)
			},
		},
		{
			Name:        "critical:sass:dist",
			Description: "Compile the critical-path stylesheet for production",
			Deps:        []string{"critical:blocks_list:dist"},
			Run: func(ctx context.Context, inv *Invocation) error {
				return c.runSass(ctx, "critical:sass:dist", inv.Options().AsProduction(), globset.New(c.Paths.CriticalEntry), dist)
			},
		},
	}

	tasks = append(tasks, c.postProcessTasks("styles", mainCSS, c.SizeLimits.Main)...)
	tasks = append(tasks,
		Task{
			Name:        "styles:concat",
			Description: "Concatenate the main stylesheet",
			Run: func(ctx context.Context, _ *Invocation) error {
				return c.rewriteArtifact(ctx, "styles:concat", mainCSS, csspipe.Concat(c.Files.Main))
			},
		},
		Task{
			Name:        "styles:dist",
			Description: "Post-process the production main stylesheet",
			Deps:        []string{"sass:dist"},
			Run: func(ctx context.Context, inv *Invocation) error {
				return inv.WithOptions(inv.Options().AsProduction()).Series(ctx,
					"styles:concat",
					"styles:remove-unused-css",
					"styles:cmq",
					"styles:minify",
					"styles:ensureFileSize",
				)
			},
		},
	)

	tasks = append(tasks, c.postProcessTasks("critical", criticalCSS, c.SizeLimits.Critical)...)
	tasks = append(tasks,
		Task{
			Name:        "critical:concat",
			Description: "Prepend the inline bootstrap and holster styles to the critical path",
			Run:         c.criticalConcat,
		},
		Task{
			Name:        "critical:replace-urls",
			Description: "Point critical-path URLs at the template directory",
			Run: func(ctx context.Context, _ *Invocation) error {
				repl := "url(" + strings.ReplaceAll(c.TemplateURICall, "$", "$$") + "$1)"
				return c.rewriteArtifact(ctx, "critical:replace-urls", criticalCSS,
					csspipe.Replace("..", ""),
					csspipe.ReplaceRegexp(urlFuncRegex, repl),
				)
			},
		},
		Task{
			Name:        "critical:to-php",
			Description: "Wrap the critical path in a style element template",
			Run: func(ctx context.Context, _ *Invocation) error {
				return c.rewriteArtifact(ctx, "critical:to-php", criticalCSS,
					csspipe.Wrap("<style>", "</style>"),
					csspipe.Rename(c.Files.CriticalPHP),
				)
			},
		},
		Task{
			Name:        "critical:clean",
			Description: "Remove the intermediate critical-path stylesheet",
			Run: func(context.Context, *Invocation) error {
				err := os.Remove(filepath.Join(c.getCleanRootDir(), filepath.FromSlash(criticalCSS)))
				if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("error removing %s: %w", criticalCSS, err)
				}
				return nil
			},
		},
		Task{
			Name:        "critical:dist",
			Description: "Build the critical-path template fragment",
			Run: func(ctx context.Context, inv *Invocation) error {
				return inv.WithOptions(inv.Options().AsProduction()).Series(ctx,
					"critical:sass:dist",
					"critical:concat",
					"critical:remove-unused-css",
					"critical:cmq",
					"critical:minify",
					"critical:ensureFileSize",
					"critical:replace-urls",
					"critical:to-php",
					"critical:clean",
				)
			},
		},
		Task{
			Name:        "holsters:generate",
			Description: "Compile, prefix and minify the holsters",
			Run:         c.generateHolsters,
		},
		Task{
			Name:        "holsters:changed",
			Description: "Recompile holsters newer than their output",
			Run:         c.holstersChanged,
		},
		Task{
			Name:        "images",
			Description: "Optimize images",
			Run:         c.optimizeImages,
		},
		Task{
			Name:        "build",
			Description: "Production build",
			Deps:        []string{"clean"},
			Run: func(ctx context.Context, inv *Invocation) error {
				return inv.WithOptions(inv.Options().AsProduction()).Series(ctx,
					"critical:dist",
					"holsters:changed",
					"styles:dist",
				)
			},
		},
		Task{
			Name:        "watch",
			Description: "Build for development, then rebuild on changes",
			Deps:        []string{"clean", "sass:compile"},
			Run:         c.watch,
		},
		Task{
			Name:        DefaultTask,
			Description: "Same as watch",
			Deps:        []string{"watch"},
		},
	)
	return tasks
}

// postProcessTasks registers the shared tail of the post-processing chain
// for one artifact: unused rules, media queries, minification, size.
func (c *Config) postProcessTasks(prefix, rel string, limit int64) []Task {
	step := func(name, desc string, build func(ctx context.Context) (csspipe.Step, error)) Task {
		full := prefix + ":" + name
		return Task{
			Name:        full,
			Description: desc,
			Run: func(ctx context.Context, _ *Invocation) error {
				s, err := build(ctx)
				if err != nil {
					return err
				}
				return c.rewriteArtifact(ctx, full, rel, s)
			},
		}
	}
	fixed := func(s csspipe.Step) func(context.Context) (csspipe.Step, error) {
		return func(context.Context) (csspipe.Step, error) { return s, nil }
	}

	return []Task{
		step("remove-unused-css", "Strip rules unused by the theme markup", func(ctx context.Context) (csspipe.Step, error) {
			corpus, err := c.usedContentCorpus(ctx)
			if err != nil {
				return nil, err
			}
			return csspipe.RemoveUnused(corpus), nil
		}),
		step("cmq", "Combine media queries", fixed(csspipe.CombineMediaQueries(true))),
		step("minify", "Minify", fixed(csspipe.Minify(csspipe.MinifyOptions{
			Compatibility:       c.Compatibility,
			KeepSpecialComments: c.KeepSpecialComments,
		}))),
		step("ensureFileSize", "Fail when the gzipped size is over the limit", fixed(csspipe.CheckSize(csspipe.SizeOptions{
			Limit:  limit,
			Gzip:   true,
			Logger: c.Logger,
		}))),
	}
}

func (c *Config) distBlocksDir() string {
	base := globset.New(c.Paths.Sass...).Base()
	rel := strings.TrimPrefix(c.Paths.BlocksFolder, base+"/")
	if base == "." {
		rel = c.Paths.BlocksFolder
	}
	return path.Join(c.Dest.Dist, rel)
}

// writeMainImports writes the development main stylesheet: imports of the
// compiled bootstrap, the block manifest and the holsters, relative to dist.
func (c *Config) writeMainImports() error {
	compiled, err := filepath.Rel(filepath.FromSlash(c.Dest.Dist), filepath.FromSlash(c.Paths.Compiled))
	if err != nil {
		return fmt.Errorf("error resolving compiled directory: %w", err)
	}
	compiled = filepath.ToSlash(compiled)
	blocks := strings.TrimPrefix(path.Join(c.distBlocksDir(), c.Files.BlocksList), c.Dest.Dist+"/")

	content := fmt.Sprintf(`@import "%s"; @import "%s"; @import "%s";`,
		path.Join(compiled, c.Files.BootstrapInline),
		blocks,
		path.Join(compiled, c.Files.HolstersCSS),
	)

	out := filepath.Join(c.getCleanRootDir(), filepath.FromSlash(c.distFile(c.Files.Main)))
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("error creating dist directory: %w", err)
	}
	if err := os.WriteFile(out, []byte(content), 0644); err != nil {
		return fmt.Errorf("error writing main imports: %w", err)
	}
	return nil
}

func (c *Config) sassPartials(ctx context.Context, inv *Invocation) error {
	opts := inv.Options()
	if len(opts.Partials) == 0 {
		c.Logger.Infof("sass:partials: no partial directory to recompile")
		return nil
	}
	for _, dir := range opts.Partials {
		// the blocks folder itself holds the generated dist manifests
		set := globset.New(
			path.Join(c.Paths.BlocksFolder, dir, "*.scss"),
			"!**/"+c.Files.BlocksListDist,
			"!**/"+c.Files.CriticalBlocksList,
		)
		if err := c.runSass(ctx, "sass:partials", opts, set, path.Join(c.distBlocksDir(), dir)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) criticalConcat(ctx context.Context, _ *Invocation) error {
	criticalCSS := c.distFile(c.Files.Critical)
	files, err := c.readExisting(ctx,
		path.Join(c.Paths.Compiled, c.Files.BootstrapInline),
		path.Join(c.Paths.Compiled, c.Files.HolstersCSS),
		criticalCSS,
	)
	if err != nil {
		return err
	}
	out, err := csspipe.NewPipeline("critical:concat", c.Logger).
		Pipe(csspipe.Concat(c.Files.Critical)).
		Run(ctx, files)
	if err != nil {
		return err
	}
	return csspipe.Dest(ctx, c.getCleanRootDir(), c.Dest.Dist, out)
}

func (c *Config) generateHolsters(ctx context.Context, _ *Invocation) error {
	root := c.getCleanRootDir()
	files, err := csspipe.Src(ctx, root, globset.New(c.Paths.HolstersEntry))
	if err != nil {
		return err
	}
	out, err := csspipe.NewPipeline("holsters:generate", c.Logger).
		Plumber().
		Pipe(
			csspipe.Compile(c.compiler(), csspipe.CompileOptions{Root: root, Logger: c.Logger}),
			csspipe.Autoprefix(c.Browsers...),
			csspipe.Minify(csspipe.MinifyOptions{
				Compatibility:       c.Compatibility,
				KeepSpecialComments: c.KeepSpecialComments,
			}),
		).
		Run(ctx, files)
	if err != nil {
		return err
	}
	return csspipe.Dest(ctx, root, c.Paths.Compiled, out)
}

func (c *Config) holstersChanged(ctx context.Context, inv *Invocation) error {
	root := c.getCleanRootDir()
	files, err := csspipe.Src(ctx, root, globset.New(c.Paths.Holsters...))
	if err != nil {
		return err
	}
	files, err = csspipe.Newer(root, c.Paths.Compiled, ".css").Apply(ctx, files)
	if err != nil {
		return err
	}
	out, err := c.sassChannel("holsters:changed", inv.Options()).Run(ctx, files)
	if err != nil {
		return err
	}
	return csspipe.Dest(ctx, root, c.Paths.Compiled, out)
}
