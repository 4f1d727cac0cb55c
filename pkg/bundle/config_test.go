package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/matzehuels/condabundle/pkg/archive"
	"github.com/matzehuels/condabundle/pkg/errors"
	"github.com/matzehuels/condabundle/pkg/platform"
	"github.com/matzehuels/condabundle/pkg/process"
)

var linux = platform.Platform{System: "Linux", Machine: "x86_64"}

// failingSetup stands in for a setup script that cannot report metadata.
var failingSetup = process.Func(func(context.Context, process.Command) error {
	return &process.ExitError{ExitCode: 1, Output: "error: invalid command"}
})

// setupReporting answers "setup.py --name --version" with name and version.
func setupReporting(name, version string) *process.Recorder {
	return &process.Recorder{Handler: func(_ context.Context, cmd process.Command) error {
		_, err := fmt.Fprintf(cmd.Stdout, "%s\n%s\n", name, version)
		return err
	}}
}

// newProject writes setup.py and, when pyproject is non-empty,
// pyproject.toml into a fresh directory. It returns the setup.py path.
func newProject(t *testing.T, pyproject string) string {
	t.Helper()
	dir := t.TempDir()
	setup := filepath.Join(dir, "setup.py")
	if err := os.WriteFile(setup, []byte("from setuptools import setup\nsetup()\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pyproject != "" {
		if err := os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte(pyproject), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return setup
}

func TestParsePackages(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"python", []string{"python"}},
		{"python=3.11, numpy ,,attrs", []string{"python=3.11", "numpy", "attrs"}},
		{" , ", []string{}},
	}
	for _, tt := range tests {
		if got := ParsePackages(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParsePackages(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigNames(t *testing.T) {
	cfg := Config{Name: "myapp", Version: "1.2.0", Platform: linux}
	if got := cfg.EnvName(); got != "myapp-1.2.0" {
		t.Errorf("EnvName() = %q", got)
	}
	if got := cfg.ArchiveName(); got != "myapp-1.2.0-bundle-Linux-x86_64.tar.gz" {
		t.Errorf("ArchiveName() = %q", got)
	}
}

func TestResolveDefaults(t *testing.T) {
	setup := newProject(t, "")
	cfg, err := Resolve(context.Background(), Options{SetupScript: setup, Name: "myapp", Version: "1.0", Packages: []string{"python=3.11"}})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	dir := filepath.Dir(setup)
	if cfg.SetupScript != setup {
		t.Errorf("SetupScript = %q", cfg.SetupScript)
	}
	if cfg.DistDir != filepath.Join(dir, "dist") {
		t.Errorf("DistDir = %q, want %q", cfg.DistDir, filepath.Join(dir, "dist"))
	}
	if cfg.CondaBin != "conda" {
		t.Errorf("CondaBin = %q", cfg.CondaBin)
	}
	if cfg.Interpreter != "python" {
		t.Errorf("Interpreter = %q", cfg.Interpreter)
	}
	if cfg.Archiver != archive.KindTar {
		t.Errorf("Archiver = %q", cfg.Archiver)
	}
	if cfg.BuildDir != "" {
		t.Errorf("BuildDir = %q, want empty", cfg.BuildDir)
	}
	if cfg.Platform != platform.Current() {
		t.Errorf("Platform = %v, want current", cfg.Platform)
	}
	if !reflect.DeepEqual(cfg.Packages, []string{"python=3.11"}) {
		t.Errorf("Packages = %q", cfg.Packages)
	}
}

func TestResolveFromPyproject(t *testing.T) {
	setup := newProject(t, `[project]
name = "myapp"
version = "2.1.0"

[tool.condabundle]
packages = ["python=3.11", "numpy"]
build-dir = "build/bundle"
dist-dir = "out"
install-args = ["--single-version-externally-managed", "--record=files.txt"]
archiver = "native"
`)
	dir := filepath.Dir(setup)

	cfg, err := Resolve(context.Background(), Options{SetupScript: setup, Platform: linux})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if cfg.Name != "myapp" || cfg.Version != "2.1.0" {
		t.Errorf("Name/Version = %q/%q", cfg.Name, cfg.Version)
	}
	if !reflect.DeepEqual(cfg.Packages, []string{"python=3.11", "numpy"}) {
		t.Errorf("Packages = %q", cfg.Packages)
	}
	if cfg.BuildDir != filepath.Join(dir, "build", "bundle") {
		t.Errorf("BuildDir = %q", cfg.BuildDir)
	}
	if cfg.DistDir != filepath.Join(dir, "out") {
		t.Errorf("DistDir = %q", cfg.DistDir)
	}
	if len(cfg.InstallArgs) != 2 {
		t.Errorf("InstallArgs = %q", cfg.InstallArgs)
	}
	if cfg.Archiver != archive.KindNative {
		t.Errorf("Archiver = %q", cfg.Archiver)
	}
	if got := cfg.ArchiveName(); got != "myapp-2.1.0-bundle-Linux-x86_64.tar.gz" {
		t.Errorf("ArchiveName() = %q", got)
	}
}

func TestResolveOptionsOverridePyproject(t *testing.T) {
	setup := newProject(t, `[tool.poetry]
name = "poetry-app"
version = "0.1.0"

[tool.condabundle]
packages = ["python=3.11"]
archiver = "native"
`)
	dist := filepath.Join(t.TempDir(), "dist")

	cfg, err := Resolve(context.Background(), Options{
		SetupScript: setup,
		Version:     "0.2.0",
		Packages:    []string{},
		DistDir:     dist,
		Archiver:    "tar",
		InstallArgs: []string{},
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if cfg.Name != "poetry-app" || cfg.Version != "0.2.0" {
		t.Errorf("Name/Version = %q/%q", cfg.Name, cfg.Version)
	}
	if !cfg.CloneMode() {
		t.Errorf("explicit empty package list should select clone mode, got %q", cfg.Packages)
	}
	if cfg.DistDir != dist {
		t.Errorf("DistDir = %q", cfg.DistDir)
	}
	if cfg.Archiver != archive.KindTar {
		t.Errorf("Archiver = %q", cfg.Archiver)
	}
}

func TestResolveCloneFrom(t *testing.T) {
	setup := newProject(t, "")
	ref := t.TempDir()

	cfg, err := Resolve(context.Background(), Options{SetupScript: setup, Name: "a", Version: "1", CloneFrom: ref})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if cfg.CloneFrom != ref || !cfg.CloneMode() {
		t.Errorf("CloneFrom = %q, CloneMode = %v", cfg.CloneFrom, cfg.CloneMode())
	}
}

func TestResolveCondaInstall(t *testing.T) {
	setup := newProject(t, "")
	install := filepath.Join(t.TempDir(), "conda")

	cfg, err := Resolve(context.Background(), Options{
		SetupScript:      setup,
		Name:             "a",
		Version:          "1",
		CondaURL:         "https://repo.anaconda.com/miniconda/Miniconda3-latest-Linux-x86_64.sh",
		CondaInstallPath: install,
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if cfg.CondaInstallPath != install {
		t.Errorf("CondaInstallPath = %q", cfg.CondaInstallPath)
	}
}

func TestResolveErrors(t *testing.T) {
	setup := newProject(t, "")
	dir := filepath.Dir(setup)
	notDir := filepath.Join(dir, "setup.py")

	tests := []struct {
		name string
		opts Options
	}{
		{"missing setup script", Options{SetupScript: filepath.Join(dir, "nope.py"), Name: "a", Version: "1"}},
		{"setup script is a directory", Options{SetupScript: dir, Name: "a", Version: "1"}},
		{"missing name", Options{SetupScript: setup, Version: "1", Exec: failingSetup}},
		{"missing version", Options{SetupScript: setup, Name: "a", Exec: failingSetup}},
		{"name with path separator", Options{SetupScript: setup, Name: "a/b", Version: "1"}},
		{"bad package spec", Options{SetupScript: setup, Name: "a", Version: "1", Packages: []string{"-x"}}},
		{"clone and packages", Options{SetupScript: setup, Name: "a", Version: "1", Packages: []string{"python"}, CloneFrom: dir}},
		{"clone source missing", Options{SetupScript: setup, Name: "a", Version: "1", CloneFrom: filepath.Join(dir, "missing")}},
		{"clone source is a file", Options{SetupScript: setup, Name: "a", Version: "1", CloneFrom: notDir}},
		{"bad conda url", Options{SetupScript: setup, Name: "a", Version: "1", CondaURL: "ftp://x/conda.sh"}},
		{"conda url and bin", Options{SetupScript: setup, Name: "a", Version: "1", CondaURL: "https://x/conda.sh", CondaBin: "/opt/conda/bin/conda"}},
		{"install path without url", Options{SetupScript: setup, Name: "a", Version: "1", CondaInstallPath: dir}},
		{"build dir is a file", Options{SetupScript: setup, Name: "a", Version: "1", BuildDir: notDir}},
		{"unknown archiver", Options{SetupScript: setup, Name: "a", Version: "1", Archiver: "zip"}},
		{"interpreter path", Options{SetupScript: setup, Name: "a", Version: "1", Interpreter: "bin/python"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(context.Background(), tt.opts)
			if !errors.Is(err, errors.ErrCodeConfiguration) {
				t.Errorf("Resolve() error = %v, want CONFIGURATION_ERROR", err)
			}
		})
	}
}

func TestResolveInvalidPyproject(t *testing.T) {
	setup := newProject(t, "[project\n")
	_, err := Resolve(context.Background(), Options{SetupScript: setup, Name: "a", Version: "1"})
	if !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("Resolve() error = %v, want CONFIGURATION_ERROR", err)
	}
}

func TestResolveNameFromSetupCfg(t *testing.T) {
	setup := newProject(t, "")
	cfgFile := "[metadata]\nname = cfgapp\nversion = 0.9.1\n"
	if err := os.WriteFile(filepath.Join(filepath.Dir(setup), "setup.cfg"), []byte(cfgFile), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := setupReporting("other", "0.0.0")

	cfg, err := Resolve(context.Background(), Options{SetupScript: setup, Exec: rec})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if cfg.Name != "cfgapp" || cfg.Version != "0.9.1" {
		t.Errorf("Name/Version = %q/%q", cfg.Name, cfg.Version)
	}
	if n := len(rec.Commands()); n != 0 {
		t.Errorf("setup script queried %d times, want 0", n)
	}
}

func TestResolveNameFromSetupScript(t *testing.T) {
	setup := newProject(t, "")
	rec := setupReporting("legacyapp", "3.2")

	cfg, err := Resolve(context.Background(), Options{SetupScript: setup, HostPython: "/usr/bin/python3.12", Exec: rec})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if cfg.Name != "legacyapp" || cfg.Version != "3.2" {
		t.Errorf("Name/Version = %q/%q", cfg.Name, cfg.Version)
	}

	cmd, ok := rec.Last()
	if !ok {
		t.Fatal("setup script was not queried")
	}
	if cmd.Name != "/usr/bin/python3.12" || !reflect.DeepEqual(cmd.Args, []string{setup, "--name", "--version"}) {
		t.Errorf("query command = %s", cmd)
	}
}

func TestResolveDynamicVersion(t *testing.T) {
	setup := newProject(t, `[project]
name = "myapp"
dynamic = ["version"]
`)
	rec := setupReporting("myapp-from-setup", "2.0.0")

	cfg, err := Resolve(context.Background(), Options{SetupScript: setup, Exec: rec})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if cfg.Name != "myapp" {
		t.Errorf("Name = %q, pyproject name should win", cfg.Name)
	}
	if cfg.Version != "2.0.0" {
		t.Errorf("Version = %q, want 2.0.0", cfg.Version)
	}
}

func TestResolveSetupQueryFailure(t *testing.T) {
	setup := newProject(t, "")

	_, err := Resolve(context.Background(), Options{SetupScript: setup, Exec: failingSetup})
	if !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Fatalf("Resolve() error = %v, want CONFIGURATION_ERROR", err)
	}
	if !strings.Contains(err.Error(), "--name") {
		t.Errorf("error should suggest --name: %v", err)
	}
}

func TestResolvePyprojectPackageRange(t *testing.T) {
	setup := newProject(t, `[project]
name = "myapp"
version = "1.0"

[tool.condabundle]
packages = ["numpy>=1.26,<2", " python=3.11 "]
`)

	cfg, err := Resolve(context.Background(), Options{SetupScript: setup})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if want := []string{"numpy>=1.26,<2", "python=3.11"}; !reflect.DeepEqual(cfg.Packages, want) {
		t.Errorf("Packages = %q, want %q", cfg.Packages, want)
	}
}
