package ih

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sjc5/holster/internal/csspipe"
	"github.com/sjc5/holster/internal/util"
)

const testRootDir = "testdata"

// fakeCompiler echoes its source, failing on any source containing
// "@error", and returns a small map when one is asked for.
type fakeCompiler struct {
	mu    sync.Mutex
	calls []string
}

func (c *fakeCompiler) Compile(_ context.Context, req csspipe.CompileRequest) (csspipe.CompileResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req.Path)
	c.mu.Unlock()
	if strings.Contains(req.Source, "@error") {
		return csspipe.CompileResult{}, fmt.Errorf("expected \"}\"")
	}
	res := csspipe.CompileResult{CSS: req.Source}
	if req.SourceMap {
		res.SourceMap = `{"version":3,"sources":["` + req.Path + `"]}`
	}
	return res, nil
}

type testEnv struct {
	config   *Config
	logger   *util.RecordingLogger
	compiler *fakeCompiler
}

// setupTestEnv lays out a small theme under testdata.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	if err := os.RemoveAll(testRootDir); err != nil {
		t.Fatalf("Failed to clean test directory: %v", err)
	}

	env := &testEnv{
		logger:   &util.RecordingLogger{},
		compiler: &fakeCompiler{},
	}
	env.config = &Config{
		RootDir:  testRootDir,
		Logger:   env.logger,
		Compiler: env.compiler,
	}

	env.createTestFile(t, "styles/main.scss", `@import "blocks/blocks";`)
	env.createTestFile(t, "styles/blocks/header/header.scss", ".header{color:red}")
	env.createTestFile(t, "styles/blocks/header/_mixins.scss", "$x: 1;")
	env.createTestFile(t, "styles/blocks/footer/footer.scss", ".footer{color:blue}")
	env.createTestFile(t, "styles/common/holsters/holsters.scss", ".holster{margin:0}")
	env.createTestFile(t, "styles/compiled/bootstrap-inline.css", ".used{background:url(../images/bg.png)}")
	env.createTestFile(t, "index.php", `<div class="used header footer holster"></div>`)

	return env
}

func teardownTestEnv(t *testing.T) {
	t.Helper()
	if err := os.RemoveAll(testRootDir); err != nil {
		t.Errorf("Failed to remove test directory: %v", err)
	}
}

func (env *testEnv) createTestFile(t *testing.T, relativePath, content string) {
	t.Helper()

	fullPath := filepath.Join(testRootDir, relativePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", relativePath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", relativePath, err)
	}
}

func (env *testEnv) readTestFile(t *testing.T, relativePath string) string {
	t.Helper()

	content, err := os.ReadFile(filepath.Join(testRootDir, relativePath))
	if err != nil {
		t.Fatalf("Failed to read %s: %v", relativePath, err)
	}
	return string(content)
}

func (env *testEnv) exists(relativePath string) bool {
	_, err := os.Stat(filepath.Join(testRootDir, relativePath))
	return err == nil
}

func (env *testEnv) hasLogLine(substr string) bool {
	for _, line := range env.logger.Lines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestMain(m *testing.M) {
	code := m.Run()
	os.RemoveAll(testRootDir)
	os.Exit(code)
}

func TestGetIsProductionEnv(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     bool
	}{
		{"ProdMode", productionMode, true},
		{"DevMode", "development", false},
		{"EmptyMode", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(modeKey, tt.envValue)
			if got := GetIsProductionEnv(); got != tt.want {
				t.Errorf("GetIsProductionEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	dev := NewOptions(false)
	if dev.Production || !dev.SourceMaps {
		t.Errorf("NewOptions(false) = %+v, want source maps and no production", dev)
	}

	prod := dev.AsProduction()
	if !prod.Production || !prod.SourceMaps {
		t.Errorf("AsProduction() = %+v, want production with source maps kept", prod)
	}
	if dev.Production {
		t.Error("AsProduction() changed its receiver")
	}

	merged := mergeOptions(dev.WithPartials("header"), dev.WithPartials("footer", "header"))
	if got := strings.Join(merged.Partials, ","); got != "header,footer" {
		t.Errorf("mergeOptions() partials = %s, want header,footer", got)
	}
}
