package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sjc5/holster/internal/csspipe"
	"github.com/sjc5/holster/internal/taskgraph"
)

// echoCompiler echoes its source and fails on "@error".
type echoCompiler struct {
	closeErr error
}

func (echoCompiler) Compile(_ context.Context, req csspipe.CompileRequest) (csspipe.CompileResult, error) {
	if strings.Contains(req.Source, "@error") {
		return csspipe.CompileResult{}, errors.New(`expected "}"`)
	}
	return csspipe.CompileResult{CSS: req.Source}, nil
}

func (c echoCompiler) Close() error { return c.closeErr }

func useCompiler(t *testing.T, c csspipe.Compiler) {
	t.Helper()
	compiler = c
	t.Cleanup(func() { compiler = nil })
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTasksCommand(t *testing.T) {
	out, err := run(t, "tasks", "--root", t.TempDir())
	if err != nil {
		t.Fatalf("tasks error = %v", err)
	}
	for _, want := range []string{"styles:dist", "critical:dist", "after sass:dist", "default"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not mention %q:\n%s", want, out)
		}
	}
}

func TestRunTask(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "styles/blocks/header/header.scss"), ".header{}")
	writeFile(t, filepath.Join(root, "holster.yaml"), "blocks_list_mode: strip\n")

	if _, err := run(t, "--root", root, "sass:blocks_list"); err != nil {
		t.Fatalf("run error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(root, "dist/blocks/blocks.css"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `@import "header/header";` {
		t.Errorf("blocks.css = %q, want the project file's strip mode", got)
	}
}

func TestRunUnknownTaskFails(t *testing.T) {
	_, err := run(t, "--root", t.TempDir(), "nope")
	if !errors.Is(err, taskgraph.ErrUnknownTask) {
		t.Errorf("run error = %v, want ErrUnknownTask", err)
	}
}

func TestExplicitConfigMustExist(t *testing.T) {
	root := t.TempDir()
	_, err := run(t, "--root", root, "--config", filepath.Join(root, "missing.yaml"), "clean")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("run error = %v, want os.ErrNotExist", err)
	}
}

func TestRunSeveralTasks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dist/stale.css"), "")
	writeFile(t, filepath.Join(root, "styles/blocks/header/header.scss"), ".header{}")

	if _, err := run(t, "--root", root, "--production", "clean", "sass:blocks_list"); err != nil {
		t.Fatalf("run error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "dist/stale.css")); !errors.Is(err, os.ErrNotExist) {
		t.Error("clean did not run before sass:blocks_list")
	}
	if _, err := os.Stat(filepath.Join(root, "dist/blocks/blocks.css")); err != nil {
		t.Errorf("sass:blocks_list did not run: %v", err)
	}
}

func TestMalformedStylesheetExitStatus(t *testing.T) {
	useCompiler(t, echoCompiler{})

	setup := func(t *testing.T) string {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "styles/blocks/header/header.scss"), ".header{ @error }")
		writeFile(t, filepath.Join(root, "styles/blocks/footer/footer.scss"), ".footer{}")
		return root
	}

	t.Run("Development", func(t *testing.T) {
		root := setup(t)
		if _, err := run(t, "--root", root, "--production=false", "sass"); err != nil {
			t.Fatalf("run error = %v, want nil", err)
		}
		if _, err := os.Stat(filepath.Join(root, "dist/blocks/footer/footer.css")); err != nil {
			t.Errorf("healthy stylesheet not written: %v", err)
		}
	})

	t.Run("Production", func(t *testing.T) {
		root := setup(t)
		_, err := run(t, "--root", root, "--production", "sass")
		var ce *csspipe.CompileError
		if !errors.As(err, &ce) {
			t.Fatalf("run error = %v, want a CompileError", err)
		}
	})
}

func TestCompilerCloseErrorIsReported(t *testing.T) {
	closeErr := errors.New("compiler hung")
	useCompiler(t, echoCompiler{closeErr: closeErr})

	_, err := run(t, "--root", t.TempDir(), "clean")
	if !errors.Is(err, closeErr) {
		t.Errorf("run error = %v, want the close error", err)
	}
}
