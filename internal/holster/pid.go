package ih

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	stateDir = ".holster"
	pidFile  = "watch.pid"
)

// PIDFile records the process running a watch session for a theme, so a
// second session can stop the first.
type PIDFile struct {
	cleanRootDir string
}

func newPIDFile(cleanRootDir string) *PIDFile {
	return &PIDFile{cleanRootDir: cleanRootDir}
}

func (p *PIDFile) getPIDFileRef() string {
	return filepath.Join(p.cleanRootDir, stateDir, pidFile)
}

func (p *PIDFile) writePIDFile(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.getPIDFileRef()), 0755); err != nil {
		return fmt.Errorf("error creating state directory: %w", err)
	}
	return os.WriteFile(p.getPIDFileRef(), []byte(strconv.Itoa(pid)), 0644)
}

func (p *PIDFile) readPIDFile() (int, error) {
	data, err := os.ReadFile(p.getPIDFileRef())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("error reading PID file: %w", err)
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func (p *PIDFile) deletePIDFile() error {
	err := os.Remove(p.getPIDFileRef())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// killPriorPID stops a watch session left running for the same theme and
// removes its PID file.
func (c *Config) killPriorPID() {
	pf := newPIDFile(c.getCleanRootDir())

	priorPID, err := pf.readPIDFile()
	if err != nil {
		c.Logger.Errorf("error: %v", err)
	}
	if err == nil && priorPID > 0 && priorPID != os.Getpid() {
		if priorProcess, _ := os.FindProcess(priorPID); priorProcess != nil {
			if err := priorProcess.Kill(); err != nil {
				if !errors.Is(err, os.ErrProcessDone) {
					c.Logger.Errorf("error: failed to kill prior watch session with pid %d: %v", priorPID, err)
				}
			} else {
				c.Logger.Infof("killed prior watch session with pid %d", priorPID)
			}
		}
	}
	if err := pf.deletePIDFile(); err != nil {
		c.Logger.Errorf("error: failed to delete PID file: %v", err)
	}
}

func (c *Config) writePIDFile(pid int) error {
	return newPIDFile(c.getCleanRootDir()).writePIDFile(pid)
}

func (c *Config) deletePIDFile() error {
	return newPIDFile(c.getCleanRootDir()).deletePIDFile()
}
