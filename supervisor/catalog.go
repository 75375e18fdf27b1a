package supervisor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ivan3bx/hamlaunch"
)

// DefaultBinDir is where the HamClock builds are expected, relative to
// the working directory.
const DefaultBinDir = "hamclock_bin"

// DefaultBinaries are the HamClock web builds that can be launched.
var DefaultBinaries = []string{
	"hamclock-web-800x480",
	"hamclock-web-1600x960",
	"hamclock-web-2400x1440",
	"hamclock-web-3200x1920",
}

// Catalog resolves a binary selection to a path on disk.
type Catalog struct {
	// Dir holds the binaries. Defaults to DefaultBinDir.
	Dir string

	// Names is the fixed set of selectable binaries. Defaults to DefaultBinaries.
	Names []string
}

// Binary describes one selectable binary and whether it can be launched.
type Binary struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Available bool   `json:"available"`
	Problem   string `json:"problem,omitempty"`
}

func (c Catalog) dir() string {
	if c.Dir == "" {
		return DefaultBinDir
	}
	return c.Dir
}

func (c Catalog) names() []string {
	if len(c.Names) == 0 {
		return DefaultBinaries
	}
	return c.Names
}

// Contains returns true if name is one of the selectable binaries.
func (c Catalog) Contains(name string) bool {
	for _, n := range c.names() {
		if n == name {
			return true
		}
	}
	return false
}

// Path returns the absolute location name is expected at, without
// checking it.
func (c Catalog) Path(name string) string {
	path := filepath.Join(c.dir(), name)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// Resolve returns the absolute path of the named binary after checking
// that it exists and is executable.
func (c Catalog) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)

	if name == "" {
		return "", hamlaunch.ErrNoSelection
	}

	if !c.Contains(name) {
		return "", fmt.Errorf("%w: unknown binary %q", hamlaunch.ErrNotFound, name)
	}

	path := c.Path(name)

	if err := checkExecutable(path); err != nil {
		return "", err
	}

	return path, nil
}

// List reports every selectable binary, in catalog order.
func (c Catalog) List() []Binary {
	var result []Binary

	for _, name := range c.names() {
		b := Binary{Name: name, Path: c.Path(name), Available: true}

		if err := checkExecutable(b.Path); err != nil {
			b.Available = false
			b.Problem = err.Error()
		}

		result = append(result, b)
	}

	return result
}
