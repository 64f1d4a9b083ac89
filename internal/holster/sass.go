package ih

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/sjc5/holster/internal/csspipe"
	"github.com/sjc5/holster/internal/globset"
)

// sassChannel is the shared compile chain. Outside production, failing
// files are logged and dropped so a watch session survives typos, and the
// output is adjusted for serving from the dist folder.
func (c *Config) sassChannel(name string, opts Options) *csspipe.Pipeline {
	return csspipe.NewPipeline(name, c.Logger).
		PlumberIf(!opts.Production).
		Pipe(csspipe.Compile(c.compiler(), csspipe.CompileOptions{
			Root:       c.getCleanRootDir(),
			SourceMaps: opts.SourceMaps,
			Logger:     c.Logger,
		})).
		PipeIf(!opts.Production,
			csspipe.Replace(c.CriticalToken, c.CriticalTokenReplacement),
			csspipe.AdjustURLs(c.URLPrepend, ""),
		).
		Pipe(csspipe.Autoprefix(c.Browsers...)).
		// The map describes the compiler's output. It resolves rules to
		// their source files, but positions after the rewrites and
		// prefixing above are approximate.
		PipeIf(opts.SourceMaps, csspipe.WriteSourceMaps())
}

// runSass compiles the files selected by set into dest, keeping their tree
// below the set's glob parent.
func (c *Config) runSass(ctx context.Context, name string, opts Options, set globset.Set, dest string) error {
	root := c.getCleanRootDir()
	files, err := csspipe.Src(ctx, root, set)
	if err != nil {
		return fmt.Errorf("error reading sources: %w", err)
	}
	out, err := c.sassChannel(name, opts).Run(ctx, files)
	if err != nil {
		return err
	}
	return csspipe.Dest(ctx, root, dest, out)
}

// rewriteArtifact runs steps over a single root-relative file and writes
// the result back to the same directory. A failing step leaves the file as
// the previous step wrote it.
func (c *Config) rewriteArtifact(ctx context.Context, name, rel string, steps ...csspipe.Step) error {
	root := c.getCleanRootDir()
	dir := path.Dir(rel)
	files, err := csspipe.ReadFiles(ctx, root, dir, []string{rel})
	if err != nil {
		return err
	}
	out, err := csspipe.NewPipeline(name, c.Logger).Pipe(steps...).Run(ctx, files)
	if err != nil {
		return err
	}
	return csspipe.Dest(ctx, root, dir, out)
}

// readExisting reads the root-relative files that exist, in order, each
// based at its own directory. Missing files are logged and skipped.
func (c *Config) readExisting(ctx context.Context, rels ...string) ([]*csspipe.File, error) {
	root := c.getCleanRootDir()
	var files []*csspipe.File
	for _, rel := range rels {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			c.Logger.Infof("skipping missing input %s", rel)
			continue
		}
		read, err := csspipe.ReadFiles(ctx, root, path.Dir(rel), []string{rel})
		if err != nil {
			return nil, err
		}
		files = append(files, read...)
	}
	return files, nil
}

func (c *Config) distFile(name string) string {
	return path.Join(c.Dest.Dist, name)
}

func (c *Config) usedContentCorpus(ctx context.Context) (csspipe.Corpus, error) {
	corpus, err := csspipe.BuildCorpus(ctx, c.getCleanRootDir(), globset.New(c.UsedContent...))
	if err != nil {
		return nil, fmt.Errorf("error reading used content: %w", err)
	}
	return corpus, nil
}
