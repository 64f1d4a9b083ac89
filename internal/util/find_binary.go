package util

import (
	"os"
	"path/filepath"
)

func GetExecDir() string {
	execPath, err := os.Executable()
	if err != nil {
		Log.Errorf("error getting executable path: %v", err)
	}
	return filepath.Dir(execPath)
}

// FindBinary returns explicit when set, then name if a file of that name
// sits next to the running executable, and otherwise name alone, to be
// looked up on the PATH.
func FindBinary(explicit, name string) string {
	if explicit != "" {
		return explicit
	}
	candidate := filepath.Join(GetExecDir(), name)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return name
}
