package util

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetFreePortSkipsBoundPort(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()
	taken := ln.Addr().(*net.TCPAddr).Port

	port, err := GetFreePort(taken)
	if err != nil {
		t.Fatalf("GetFreePort() error = %v", err)
	}
	if port == taken {
		t.Errorf("GetFreePort() returned the bound port %d", port)
	}
}

func TestFindBinary(t *testing.T) {
	if got := FindBinary("/opt/sass", "sass"); got != "/opt/sass" {
		t.Errorf("FindBinary(explicit) = %q", got)
	}
	name := "holster-test-missing-binary"
	if got := FindBinary("", name); got != name {
		t.Errorf("FindBinary(missing) = %q, want %q", got, name)
	}
	if _, err := os.Stat(filepath.Join(GetExecDir(), name)); err == nil {
		t.Skip("unexpected file next to test binary")
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("a"))
	if len(a) != 12 || strings.Trim(a, "0123456789abcdef") != "" {
		t.Errorf("ContentHash() = %q, want 12 hex chars", a)
	}
	if a == ContentHash([]byte("b")) {
		t.Errorf("different content hashed equal")
	}
	if a != ContentHash([]byte("a")) {
		t.Errorf("hash not stable")
	}
}

func TestRecordingLogger(t *testing.T) {
	l := &RecordingLogger{}
	l.Infof("a %d", 1)
	l.Errorf("b")
	lines := l.Lines()
	if len(lines) != 2 || lines[0] != "info: a 1" || lines[1] != "error: b" {
		t.Errorf("Lines() = %v", lines)
	}
}
