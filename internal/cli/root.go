package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sjc5/holster/internal/csspipe"
	ih "github.com/sjc5/holster/internal/holster"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	production bool
	root       string
	config     string
	sass       string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "holster [task ...]",
		Short: "Theme stylesheet build runner",
		Long: `Holster compiles, post-processes and watches the stylesheets of a theme:
the main stylesheet, the inlined critical path and the holsters. Named tasks
run in order in one invocation; with no task, "default" starts a watch session.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		// task names share the argument space with subcommands
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			c, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := c.Close(); closeErr != nil {
					err = errors.Join(err, fmt.Errorf("error closing compiler: %w", closeErr))
				}
			}()
			return c.Run(cmd.Context(), ih.NewOptions(flags.production), args...)
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVar(&flags.production, "production", ih.GetIsProductionEnv(), "production build: no source maps, compile errors are fatal")
	pf.StringVar(&flags.root, "root", ".", "theme directory")
	pf.StringVar(&flags.config, "config", "", "project file (default <root>/"+ih.ProjectFileName+")")
	pf.StringVar(&flags.sass, "sass", "", "Dart Sass executable (default: next to holster, then PATH)")

	cmd.AddCommand(newTasksCmd(flags))
	return cmd
}

// compiler replaces Dart Sass when set.
var compiler csspipe.Compiler

// loadConfig builds the theme config from the flags and the project file.
// A missing default project file is not an error.
func loadConfig(flags *rootFlags) (*ih.Config, error) {
	c := &ih.Config{RootDir: flags.root, SassBinary: flags.sass, Compiler: compiler}

	path := flags.config
	explicit := path != ""
	if !explicit {
		path = filepath.Join(flags.root, ih.ProjectFileName)
	}
	pf, err := ih.LoadProjectFile(path)
	switch {
	case err == nil:
		pf.Apply(c, filepath.Dir(path))
		if flags.sass != "" {
			c.SassBinary = flags.sass
		}
	case !explicit && errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	return c, nil
}

// Execute runs the command line and prints any error to stderr.
func Execute(ctx context.Context) error {
	cmd := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
	}
	return err
}
