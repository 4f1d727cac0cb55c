package metadata

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/matzehuels/condabundle/pkg/process"
)

// DefaultHostPython is the interpreter used to query a setup script before
// any environment exists.
const DefaultHostPython = "python3"

// QueryArgs returns the arguments that make a setup script print its
// distribution name and version, one per line.
func QueryArgs(script string) []string {
	return []string{script, "--name", "--version"}
}

// QuerySetup runs the setup script with python and returns the name and
// version it reports. It is the fallback for projects whose metadata lives
// only in setup.py.
func QuerySetup(ctx context.Context, exec process.Executor, python, script string) (Project, error) {
	if python == "" {
		python = DefaultHostPython
	}
	var stdout bytes.Buffer
	cmd := process.Command{
		Name:   python,
		Args:   QueryArgs(script),
		Dir:    filepath.Dir(script),
		Stdout: &stdout,
	}
	if err := exec.Run(ctx, cmd); err != nil {
		return Project{}, err
	}

	// setuptools may print notices first; the answers are the last two lines.
	var lines []string
	for _, l := range strings.Split(stdout.String(), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return Project{}, fmt.Errorf("%s: expected name and version, got %q", cmd, stdout.String())
	}
	return Project{Name: lines[len(lines)-2], Version: lines[len(lines)-1]}, nil
}
