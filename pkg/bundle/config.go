package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/condabundle/pkg/archive"
	"github.com/matzehuels/condabundle/pkg/conda"
	"github.com/matzehuels/condabundle/pkg/errors"
	"github.com/matzehuels/condabundle/pkg/metadata"
	"github.com/matzehuels/condabundle/pkg/platform"
	"github.com/matzehuels/condabundle/pkg/process"
	"github.com/matzehuels/condabundle/pkg/shebang"
)

// DefaultSetupScript is the install entry point looked up in the working
// directory.
const DefaultSetupScript = "setup.py"

// DefaultDistDir is the output directory name, relative to the setup script.
const DefaultDistDir = "dist"

// Options are the user-supplied settings for a run. Empty fields fall back to
// [tool.condabundle] in pyproject.toml and then to built-in defaults.
type Options struct {
	CondaURL         string
	CondaBin         string
	CondaInstallPath string

	// Packages is nil when not given. A non-nil empty slice explicitly
	// selects clone mode even if pyproject.toml lists packages.
	Packages  []string
	CloneFrom string

	BuildDir    string
	DistDir     string
	SetupScript string
	InstallArgs []string
	Interpreter string

	Name    string
	Version string

	Archiver string

	// Platform overrides the host platform in the archive name.
	Platform platform.Platform

	// HostPython and Exec run "setup.py --name --version" when neither the
	// options nor pyproject.toml and setup.cfg give a name and version.
	// A nil Exec runs the host interpreter directly.
	HostPython string
	Exec       process.Executor
}

// Config is the resolved, validated configuration of one run. All paths are
// absolute.
type Config struct {
	CondaURL         string
	CondaBin         string
	CondaInstallPath string

	Packages  []string
	CloneFrom string

	BuildDir    string // empty: the run creates a temporary directory
	DistDir     string
	SetupScript string
	InstallArgs []string
	Interpreter string

	Name     string
	Version  string
	Platform platform.Platform
	Archiver archive.Kind
}

// EnvName is the environment directory name, "<name>-<version>".
func (c Config) EnvName() string {
	return fmt.Sprintf("%s-%s", c.Name, c.Version)
}

// ArchiveName is the artifact file name,
// "<name>-<version>-bundle-<system>-<machine>.tar.gz".
func (c Config) ArchiveName() string {
	return fmt.Sprintf("%s-%s%s", c.EnvName(), c.Platform.Suffix(), archive.Extension)
}

// CloneMode reports whether the environment is cloned rather than built
// from package specifications.
func (c Config) CloneMode() bool {
	return len(c.Packages) == 0
}

// ParsePackages splits a comma separated package list. Blank items are
// dropped; the result is never nil.
func ParsePackages(s string) []string {
	pkgs := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			pkgs = append(pkgs, p)
		}
	}
	return pkgs
}

// Resolve validates opts and fills in defaults. Every failure is a
// CONFIGURATION_ERROR.
//
// Name and version are taken from opts, then pyproject.toml ([project], then
// [tool.poetry]), then setup.cfg [metadata], and finally from the setup
// script itself.
func Resolve(ctx context.Context, opts Options) (Config, error) {
	setup := opts.SetupScript
	if setup == "" {
		setup = DefaultSetupScript
	}
	setup, err := absPath("", setup)
	if err != nil {
		return Config{}, err
	}
	info, err := os.Stat(setup)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeConfiguration, err, "setup script not found")
	}
	if !info.Mode().IsRegular() {
		return Config{}, errors.New(errors.ErrCodeConfiguration, "setup script %s is not a file", setup)
	}
	projectDir := filepath.Dir(setup)

	project, _, err := metadata.Load(projectDir)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeConfiguration, err, "read %s", metadata.Filename)
	}
	defaults := project.Bundle

	cfg := Config{
		SetupScript: setup,
		CondaURL:    first(opts.CondaURL, defaults.CondaURL),
		Name:        first(opts.Name, project.Name),
		Version:     first(opts.Version, project.Version),
		Interpreter: first(opts.Interpreter, defaults.Interpreter, shebang.DefaultInterpreter),
		Platform:    opts.Platform,
	}
	if cfg.Platform == (platform.Platform{}) {
		cfg.Platform = platform.Current()
	}
	if err := identify(ctx, opts, &cfg); err != nil {
		return Config{}, err
	}

	if err := errors.ValidateDistName("package name", cfg.Name); err != nil {
		return Config{}, err
	}
	if err := errors.ValidateDistName("package version", cfg.Version); err != nil {
		return Config{}, err
	}
	if err := errors.ValidateDistName("interpreter", cfg.Interpreter); err != nil {
		return Config{}, err
	}

	// Packages
	switch {
	case opts.Packages != nil:
		cfg.Packages = cleanPackages(opts.Packages)
	default:
		cfg.Packages = cleanPackages(defaults.Packages)
	}
	for _, spec := range cfg.Packages {
		if err := errors.ValidatePackageSpec(spec); err != nil {
			return Config{}, err
		}
	}

	// Conda binary and installation
	condaBin := first(opts.CondaBin, defaults.CondaBin)
	if cfg.CondaURL != "" {
		if err := errors.ValidateURL(cfg.CondaURL); err != nil {
			return Config{}, err
		}
		if condaBin != "" {
			return Config{}, errors.New(errors.ErrCodeConfiguration, "conda-bin and conda-url are mutually exclusive")
		}
	}
	cfg.CondaBin = first(condaBin, conda.DefaultBin)

	if cfg.CondaInstallPath, err = resolvePath(opts.CondaInstallPath, defaults.CondaInstallPath, projectDir); err != nil {
		return Config{}, err
	}
	if cfg.CondaInstallPath != "" && cfg.CondaURL == "" {
		return Config{}, errors.New(errors.ErrCodeConfiguration, "conda-install-path requires conda-url")
	}

	// Clone source
	if cfg.CloneFrom, err = resolvePath(opts.CloneFrom, defaults.CloneFrom, projectDir); err != nil {
		return Config{}, err
	}
	if cfg.CloneFrom != "" {
		if !cfg.CloneMode() {
			return Config{}, errors.New(errors.ErrCodeConfiguration, "clone-from and conda packages are mutually exclusive")
		}
		info, err := os.Stat(cfg.CloneFrom)
		if err != nil {
			return Config{}, errors.Wrap(errors.ErrCodeConfiguration, err, "clone source not found")
		}
		if !info.IsDir() {
			return Config{}, errors.New(errors.ErrCodeConfiguration, "clone source %s is not a directory", cfg.CloneFrom)
		}
	}

	// Directories
	if cfg.BuildDir, err = resolvePath(opts.BuildDir, defaults.BuildDir, projectDir); err != nil {
		return Config{}, err
	}
	if cfg.BuildDir != "" {
		if info, err := os.Stat(cfg.BuildDir); err == nil && !info.IsDir() {
			return Config{}, errors.New(errors.ErrCodeConfiguration, "build directory %s is not a directory", cfg.BuildDir)
		}
	}
	if cfg.DistDir, err = resolvePath(opts.DistDir, defaults.DistDir, projectDir); err != nil {
		return Config{}, err
	}
	if cfg.DistDir == "" {
		cfg.DistDir = filepath.Join(projectDir, DefaultDistDir)
	}

	switch {
	case opts.InstallArgs != nil:
		cfg.InstallArgs = append([]string(nil), opts.InstallArgs...)
	default:
		cfg.InstallArgs = append([]string(nil), defaults.InstallArgs...)
	}

	kind, err := archive.ParseKind(first(opts.Archiver, defaults.Archiver))
	if err != nil {
		return Config{}, err
	}
	cfg.Archiver = kind

	return cfg, nil
}

// identify fills a missing name or version from setup.cfg and then by
// querying the setup script.
func identify(ctx context.Context, opts Options, cfg *Config) error {
	if cfg.Name != "" && cfg.Version != "" {
		return nil
	}
	dir := filepath.Dir(cfg.SetupScript)

	declared, _, err := metadata.LoadSetupCfg(dir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, err, "read %s", metadata.SetupCfgFilename)
	}
	cfg.Name = first(cfg.Name, declared.Name)
	cfg.Version = first(cfg.Version, declared.Version)
	if cfg.Name != "" && cfg.Version != "" {
		return nil
	}

	exec := opts.Exec
	if exec == nil {
		exec = process.NewExec(nil, nil)
	}
	queried, err := metadata.QuerySetup(ctx, exec, opts.HostPython, cfg.SetupScript)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, err,
			"cannot determine package name and version from %s; set --name and --version", filepath.Base(cfg.SetupScript))
	}
	cfg.Name = first(cfg.Name, queried.Name)
	cfg.Version = first(cfg.Version, queried.Version)
	return nil
}

// cleanPackages trims list entries and drops blank ones. Entries are not
// split on commas, so a list item may carry a range such as "numpy>=1.26,<2".
func cleanPackages(in []string) []string {
	out := []string{}
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolvePath returns the absolute form of the option value, or of the
// pyproject.toml value relative to the project directory.
func resolvePath(opt, def, projectDir string) (string, error) {
	if opt != "" {
		return absPath("", opt)
	}
	if def != "" {
		return absPath(projectDir, def)
	}
	return "", nil
}

func absPath(base, path string) (string, error) {
	if base != "" && !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeConfiguration, err, "resolve path %s", path)
	}
	return abs, nil
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
