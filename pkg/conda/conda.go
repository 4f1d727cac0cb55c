// Package conda provisions conda environments.
//
// A [Manager] wraps a conda binary. It can install conda itself from a
// Miniconda-style installer script, and create a new environment either from
// a list of package specifications or by cloning a reference installation.
//
// Every invocation is built as an explicit argument list and run through a
// [process.Executor]; failures are reported as PROVISIONING_ERROR.
package conda

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/condabundle/pkg/errors"
	"github.com/matzehuels/condabundle/pkg/httputil"
	"github.com/matzehuels/condabundle/pkg/process"
)

// DefaultBin is the conda binary used when none is configured. It is looked
// up on PATH.
const DefaultBin = "conda"

// Manager runs conda operations.
type Manager struct {
	Bin    string           // conda binary name or path
	Exec   process.Executor // runs conda and the installer
	HTTP   *http.Client     // downloads installers (nil uses a default client)
	Logger *log.Logger
}

// New returns a Manager for bin ("conda" when empty).
func New(bin string, exec process.Executor, logger *log.Logger) *Manager {
	if bin == "" {
		bin = DefaultBin
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Manager{Bin: bin, Exec: exec, Logger: logger}
}

// Fetch downloads the installer at url into dir and returns the file path.
func (m *Manager) Fetch(ctx context.Context, url, dir string) (string, error) {
	if err := errors.ValidateURL(url); err != nil {
		return "", err
	}
	m.logger().Info("Fetching conda installer", "url", url)
	path, err := httputil.Download(ctx, m.HTTP, url, dir, "conda-*.sh")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeProvisioning, err, "fetch conda installer %s", url)
	}
	return path, nil
}

// InstallArgs returns the installer invocation for script targeting prefix:
// batch mode, forcing installation into an existing directory.
func InstallArgs(script, prefix string) []string {
	return []string{script, "-b", "-f", "-p", prefix}
}

// Install fetches the installer at url, runs it against prefix and returns
// the path of the installed conda binary. It does not change m.Bin.
func (m *Manager) Install(ctx context.Context, url, prefix string) (string, error) {
	tmp, err := os.MkdirTemp("", "condabundle-installer-")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeProvisioning, err, "create installer download directory")
	}
	defer os.RemoveAll(tmp)

	script, err := m.Fetch(ctx, url, tmp)
	if err != nil {
		return "", err
	}

	m.logger().Info("Installing conda", "prefix", prefix)
	cmd := process.Command{Name: "bash", Args: InstallArgs(script, prefix)}
	if err := m.Exec.Run(ctx, cmd); err != nil {
		return "", errors.Wrap(errors.ErrCodeProvisioning, err, "install conda into %s", prefix)
	}

	bin := filepath.Join(prefix, "bin", "conda")
	if _, err := os.Stat(bin); err != nil {
		return "", errors.Wrap(errors.ErrCodeProvisioning, err, "conda binary missing after install")
	}
	return bin, nil
}

// CreateOptions describes the environment to create.
type CreateOptions struct {
	Prefix    string   // target environment directory
	Packages  []string // package specs, in install order
	CloneFrom string   // reference installation cloned when Packages is empty
}

// CreateArgs returns the conda arguments for creating the environment in
// opts. Environments are always created with --copy so they do not hardlink
// into the package cache. Without packages the reference installation is
// cloned.
func CreateArgs(opts CreateOptions) []string {
	args := []string{"create", "--yes", "--copy"}
	if len(opts.Packages) == 0 {
		args = append(args, "--clone", opts.CloneFrom)
	}
	args = append(args, "--prefix", opts.Prefix)
	return append(args, opts.Packages...)
}

// Create creates the environment described by opts. On failure a partially
// created prefix is left in place for the caller to remove.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) error {
	if len(opts.Packages) == 0 && opts.CloneFrom == "" {
		return errors.New(errors.ErrCodeConfiguration, "no packages given and no environment to clone")
	}
	for _, spec := range opts.Packages {
		if err := errors.ValidatePackageSpec(spec); err != nil {
			return err
		}
	}

	if len(opts.Packages) > 0 {
		m.logger().Info("Creating environment", "prefix", opts.Prefix, "packages", len(opts.Packages))
	} else {
		m.logger().Info("Cloning environment", "prefix", opts.Prefix, "from", opts.CloneFrom)
	}

	cmd := process.Command{Name: m.bin(), Args: CreateArgs(opts)}
	if err := m.Exec.Run(ctx, cmd); err != nil {
		return errors.Wrap(errors.ErrCodeProvisioning, err, "create environment %s", opts.Prefix)
	}
	return nil
}

// RootPrefix returns the installation prefix a conda binary belongs to:
// "<prefix>/bin/conda" yields "<prefix>". A bare name is resolved on PATH
// first.
func RootPrefix(bin string) (string, error) {
	path := bin
	if !filepath.IsAbs(path) && filepath.Base(path) == path {
		p, err := lookPath(path)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeConfiguration, err, "conda binary %q not found", bin)
		}
		path = p
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeConfiguration, err, "resolve conda binary %q", bin)
	}
	return filepath.Dir(filepath.Dir(abs)), nil
}

func (m *Manager) bin() string {
	if m.Bin == "" {
		return DefaultBin
	}
	return m.Bin
}

func (m *Manager) logger() *log.Logger {
	if m.Logger == nil {
		return log.NewWithOptions(io.Discard, log.Options{})
	}
	return m.Logger
}
