package util

import (
	"fmt"
	"sync"

	"github.com/sjc5/kit/pkg/colorlog"
)

type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

var Log Logger = &colorlog.Log{}

// RecordingLogger keeps every formatted line. Safe for concurrent use.
type RecordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *RecordingLogger) Infof(format string, args ...any) {
	l.record("info: " + fmt.Sprintf(format, args...))
}

func (l *RecordingLogger) Errorf(format string, args ...any) {
	l.record("error: " + fmt.Sprintf(format, args...))
}

func (l *RecordingLogger) record(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
}

func (l *RecordingLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}
