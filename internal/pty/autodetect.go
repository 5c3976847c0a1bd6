package pty

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ResolveProgram finds the program to host. An explicit name is looked up on
// PATH unless it contains a slash. With no name the running executable is
// used, then $SHELL, then /bin/sh.
func ResolveProgram(name string) (string, error) {
	if name != "" {
		if strings.Contains(name, "/") {
			if isExecutable(name) {
				return filepath.Abs(name)
			}
			return "", fmt.Errorf("%s is not an executable file", name)
		}
		path, err := exec.LookPath(name)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", name, err)
		}
		return path, nil
	}

	candidates := make([]string, 0, 3)
	if self, err := os.Executable(); err == nil {
		candidates = append(candidates, self)
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		candidates = append(candidates, shell)
	}
	candidates = append(candidates, "/bin/sh")

	for _, candidate := range candidates {
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no program to host: checked the running executable, $SHELL, /bin/sh")
}

// isExecutable checks if a file exists and is executable.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	mode := info.Mode()
	if !mode.IsRegular() {
		return false
	}

	if mode&0111 != 0 {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return false
		}
		_, err = exec.LookPath(absPath)
		return err == nil
	}

	return false
}
