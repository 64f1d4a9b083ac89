package holster

import (
	"context"
	"html/template"

	ih "github.com/sjc5/holster/internal/holster"
)

type Config = ih.Config
type DevConfig = ih.DevConfig
type Paths = ih.Paths
type Dest = ih.Dest
type Files = ih.Files
type SizeLimits = ih.SizeLimits
type Options = ih.Options
type ManifestMode = ih.ManifestMode
type ProjectFile = ih.ProjectFile

const (
	ManifestCSS   = ih.ManifestCSS
	ManifestKeep  = ih.ManifestKeep
	ManifestStrip = ih.ManifestStrip
)

type Holster struct {
	Config *ih.Config
}

func New(config *ih.Config) *Holster {
	if config == nil {
		config = ih.DefaultConfig()
	}
	return &Holster{Config: config}
}

// Run runs the named tasks in one invocation. With no names it runs the
// default task, which watches until ctx is done.
func (h Holster) Run(ctx context.Context, production bool, tasks ...string) error {
	return h.Config.Run(ctx, ih.NewOptions(production), tasks...)
}

func (h Holster) Build(ctx context.Context) error {
	return h.Config.Run(ctx, ih.NewOptions(true), "build")
}

func (h Holster) Watch(ctx context.Context) error {
	return h.Config.Run(ctx, ih.NewOptions(false), "watch")
}

// Tasks lists the task names in registration order.
func (h Holster) Tasks() ([]string, error) {
	g, err := h.Config.Graph()
	if err != nil {
		return nil, err
	}
	return g.Names(), nil
}

func (h Holster) Close() error {
	return h.Config.Close()
}

// GetRefreshScript returns the script that follows a watch session's
// refresh server, or nothing in production.
func (h Holster) GetRefreshScript(port int) template.HTML {
	if ih.GetIsProductionEnv() {
		return ""
	}
	return template.HTML(ih.RefreshScript(port))
}

var DefaultConfig = ih.DefaultConfig
var LoadProjectFile = ih.LoadProjectFile
var GetIsProductionEnv = ih.GetIsProductionEnv
var PartialDir = ih.PartialDir
