package ih

import (
	"os"
	"slices"
)

const (
	modeKey        = "HOLSTER_ENV_MODE"
	productionMode = "production"
)

// Options is fixed for a whole invocation and handed to every task body.
// Tasks that need different options derive a copy.
type Options struct {
	Production bool
	SourceMaps bool

	// Partials are block directories, relative to the blocks folder, that
	// sass:partials recompiles. "" is the blocks folder itself.
	Partials []string
}

func NewOptions(production bool) Options {
	return Options{Production: production, SourceMaps: !production}
}

// AsProduction turns off error trapping and the development-only rewrites.
// Source maps stay as the invocation chose them.
func (o Options) AsProduction() Options {
	o.Production = true
	return o
}

func (o Options) WithPartials(dirs ...string) Options {
	o.Partials = slices.Clone(dirs)
	return o
}

// mergeOptions folds a later watch trigger into one still waiting to run.
func mergeOptions(prev, next Options) Options {
	merged := next
	merged.Partials = slices.Clone(prev.Partials)
	for _, p := range next.Partials {
		if !slices.Contains(merged.Partials, p) {
			merged.Partials = append(merged.Partials, p)
		}
	}
	return merged
}

// GetIsProductionEnv reports whether HOLSTER_ENV_MODE asks for production.
func GetIsProductionEnv() bool {
	return os.Getenv(modeKey) == productionMode
}
