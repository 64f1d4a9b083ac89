// Package csspipe runs ordered, optionally conditional transformation steps
// over a stream of stylesheet files.
package csspipe

import (
	"context"
	"errors"
	"fmt"

	"github.com/sjc5/holster/internal/util"
)

type Step interface {
	Name() string
	Apply(ctx context.Context, files []*File) ([]*File, error)
}

type stepFunc struct {
	name string
	fn   func(ctx context.Context, files []*File) ([]*File, error)
}

func (s stepFunc) Name() string { return s.name }

func (s stepFunc) Apply(ctx context.Context, files []*File) ([]*File, error) {
	return s.fn(ctx, files)
}

// StepFunc adapts a whole-stream function into a Step.
func StepFunc(name string, fn func(ctx context.Context, files []*File) ([]*File, error)) Step {
	return stepFunc{name: name, fn: fn}
}

// Each builds a per-file Step. Files whose fn fails are removed from the
// stream and reported as joined FileErrors.
func Each(name string, fn func(ctx context.Context, f *File) error) Step {
	return StepFunc(name, func(ctx context.Context, files []*File) ([]*File, error) {
		out := make([]*File, 0, len(files))
		var errs []error
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := fn(ctx, f); err != nil {
				var fe *FileError
				if !errors.As(err, &fe) {
					fe = &FileError{Step: name, Path: f.Rel(), Err: err}
				}
				errs = append(errs, fe)
				continue
			}
			out = append(out, f)
		}
		return out, errors.Join(errs...)
	})
}

type stage struct {
	step    Step
	trapped bool
}

// Pipeline is built once per run; conditions passed to PipeIf are fixed at
// build time.
type Pipeline struct {
	name    string
	logger  util.Logger
	stages  []stage
	trapped bool
}

func NewPipeline(name string, logger util.Logger) *Pipeline {
	if logger == nil {
		logger = util.Log
	}
	return &Pipeline{name: name, logger: logger}
}

func (p *Pipeline) Pipe(steps ...Step) *Pipeline {
	for _, s := range steps {
		p.stages = append(p.stages, stage{step: s, trapped: p.trapped})
	}
	return p
}

func (p *Pipeline) PipeIf(cond bool, steps ...Step) *Pipeline {
	if cond {
		p.Pipe(steps...)
	}
	return p
}

// Plumber traps per-file failures of every step piped after it: they are
// logged and the failing files leave the stream, instead of ending the run.
func (p *Pipeline) Plumber() *Pipeline {
	p.trapped = true
	return p
}

func (p *Pipeline) PlumberIf(cond bool) *Pipeline {
	if cond {
		p.Plumber()
	}
	return p
}

// Steps lists the names of the installed steps in order.
func (p *Pipeline) Steps() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.step.Name())
	}
	return names
}

func (p *Pipeline) Run(ctx context.Context, files []*File) ([]*File, error) {
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.step.Apply(ctx, files)
		if err != nil {
			failures, onlyFileErrors := fileErrors(err)
			if !s.trapped || !onlyFileErrors {
				return nil, fmt.Errorf("error in %s step %s: %w", p.name, s.step.Name(), err)
			}
			for _, fe := range failures {
				p.logger.Errorf("%s: %v", p.name, fe)
			}
		}
		files = out
	}
	return files, nil
}
