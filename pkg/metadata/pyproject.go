// Package metadata reads package metadata and bundle defaults from
// pyproject.toml.
//
// The package name and version come from the PEP 621 [project] table, falling
// back to [tool.poetry]. Projects that declare them elsewhere are covered by
// [LoadSetupCfg] and, last, by asking the setup script itself with
// [QuerySetup]. Bundle defaults live in [tool.condabundle]:
//
//	[tool.condabundle]
//	packages = ["python=3.11", "numpy"]
//	conda-url = "https://repo.anaconda.com/miniconda/Miniconda3-latest-Linux-x86_64.sh"
//	dist-dir = "dist"
package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Filename is the project file looked up next to the setup script.
const Filename = "pyproject.toml"

// Project is the subset of pyproject.toml the bundler needs.
type Project struct {
	Name    string
	Version string
	Bundle  BundleDefaults
}

// BundleDefaults mirrors the [tool.condabundle] table. Empty fields mean
// "not set".
type BundleDefaults struct {
	Packages         []string `toml:"packages"`
	CondaURL         string   `toml:"conda-url"`
	CondaBin         string   `toml:"conda-bin"`
	CondaInstallPath string   `toml:"conda-install-path"`
	CloneFrom        string   `toml:"clone-from"`
	BuildDir         string   `toml:"build-dir"`
	DistDir          string   `toml:"dist-dir"`
	InstallArgs      []string `toml:"install-args"`
	Interpreter      string   `toml:"interpreter"`
	Archiver         string   `toml:"archiver"`
}

type pyproject struct {
	Project struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"poetry"`
		CondaBundle BundleDefaults `toml:"condabundle"`
	} `toml:"tool"`
}

// Load reads pyproject.toml from dir. A missing file is not an error: it
// returns an empty Project and found=false.
func Load(dir string) (project Project, found bool, err error) {
	path := filepath.Join(dir, Filename)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Project{}, false, nil
	}
	if err != nil {
		return Project{}, false, err
	}

	p, err := Parse(data)
	if err != nil {
		return Project{}, true, fmt.Errorf("%s: %w", path, err)
	}
	return p, true, nil
}

// Parse decodes pyproject.toml content.
func Parse(data []byte) (Project, error) {
	var raw pyproject
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Project{}, err
	}

	p := Project{
		Name:    raw.Project.Name,
		Version: raw.Project.Version,
		Bundle:  raw.Tool.CondaBundle,
	}
	if p.Name == "" {
		p.Name = raw.Tool.Poetry.Name
	}
	if p.Version == "" {
		p.Version = raw.Tool.Poetry.Version
	}
	return p, nil
}
