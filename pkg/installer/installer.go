// Package installer runs a package's own setup script inside a bundled
// environment.
//
// The script is executed by the environment's interpreter, never the host's,
// so every entry point it installs is bound to the bundle.
package installer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/matzehuels/condabundle/pkg/errors"
	"github.com/matzehuels/condabundle/pkg/process"
	"github.com/matzehuels/condabundle/pkg/shebang"
)

// Installer runs "<env>/bin/<interpreter> <script> install [args...]".
type Installer struct {
	Exec        process.Executor
	Interpreter string // name inside <env>/bin; "python" when empty
}

// New returns an Installer for the default interpreter.
func New(exec process.Executor) *Installer {
	return &Installer{Exec: exec, Interpreter: shebang.DefaultInterpreter}
}

// InterpreterPath returns the interpreter inside env.
func (i *Installer) InterpreterPath(env string) string {
	name := i.Interpreter
	if name == "" {
		name = shebang.DefaultInterpreter
	}
	return filepath.Join(env, "bin", name)
}

// Command builds the install invocation. It runs from the script's directory
// so setup scripts that use relative paths behave as under a normal build.
func (i *Installer) Command(env, script string, extra ...string) process.Command {
	args := append([]string{script, "install"}, extra...)
	return process.Command{
		Name: i.InterpreterPath(env),
		Args: args,
		Dir:  filepath.Dir(script),
	}
}

// Install runs the setup script's install command with env's interpreter.
// The environment must already exist; a missing interpreter is reported as
// INSTALLATION_ERROR like any other install failure.
func (i *Installer) Install(ctx context.Context, env, script string, extra ...string) error {
	cmd := i.Command(env, script, extra...)
	if _, err := os.Stat(cmd.Name); err != nil {
		return errors.Wrap(errors.ErrCodeInstallation, err, "interpreter %s not found in environment", cmd.Name)
	}
	if err := i.Exec.Run(ctx, cmd); err != nil {
		return errors.Wrap(errors.ErrCodeInstallation, err, "%s install failed", filepath.Base(script))
	}
	return nil
}
