// Package cli implements the condabundle command-line interface.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/condabundle/pkg/buildinfo"
	"github.com/matzehuels/condabundle/pkg/process"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display.
const appName = "condabundle"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger  *log.Logger
	verbose bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "condabundle packages a Python project into a relocatable conda bundle",
		Long: `condabundle builds a self-contained conda environment for a Python project,
installs the project into it, makes its scripts relocatable and writes the
result as a .tar.gz archive into the project's dist directory.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := LogInfo
			if c.verbose {
				level = LogDebug
			}
			c.SetLogLevel(level)
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging and show tool output")

	root.AddCommand(c.bundleCommand())
	root.AddCommand(c.fixShebangsCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Executor Factory
// =============================================================================

// newExecutor creates the process executor for CLI use. In verbose mode the
// output of conda, the setup script and tar is streamed to the log; the
// returned flush func emits any trailing partial line.
func (c *CLI) newExecutor(logger *log.Logger) (*process.Exec, func()) {
	if !c.verbose {
		return process.NewExec(nil, logger), func() {}
	}
	w := newLogWriter(logger)
	return process.NewExec(w, logger), w.Flush
}
