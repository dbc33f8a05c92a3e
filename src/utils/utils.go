package utils

import (
	"os"
	"path/filepath"
	"runtime"
)

// FindProjectRoot returns the closest directory above this source file that
// holds go.mod. It panics when there is none.
func FindProjectRoot() string {
	_, filename, _, _ := runtime.Caller(0)

	for dir := filepath.Dir(filename); ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			panic("Could not find project root (go.mod not found)")
		}
		dir = parent
	}
}

// ProjectPath joins elem onto the project root
func ProjectPath(elem ...string) string {
	return filepath.Join(append([]string{FindProjectRoot()}, elem...)...)
}
