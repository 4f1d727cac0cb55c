package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/condabundle/pkg/shebang"
)

// fixShebangsCommand creates the fix-shebangs command, which applies the
// bundle's shebang rewrite to an existing directory such as the bin/ of an
// unpacked bundle.
func (c *CLI) fixShebangsCommand() *cobra.Command {
	var interpreter string

	cmd := &cobra.Command{
		Use:   "fix-shebangs <dir>",
		Short: "Make interpreter scripts in a directory relocatable",
		Long: `Rewrite every script directly inside <dir> whose first line points at an
absolute interpreter path, so that it runs the interpreter found next to it.

Example:
  condabundle fix-shebangs ./myapp-1.0/bin`,
		Args: cobra.ExactArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return dirCompletion(cmd, args, toComplete)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			dir := args[0]

			res, err := shebang.New(interpreter).FixDir(dir)
			if err != nil {
				return err
			}
			for _, path := range res.Fixed {
				logger.Debug("fixed", "path", path)
				printFile(filepath.Base(path))
			}
			printSuccess("Fixed %d of %d entries in %s", len(res.Fixed), res.Scanned, dir)
			if res.Skipped > 0 {
				printDetail("%d skipped (not regular files)", res.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&interpreter, "interpreter", shebang.DefaultInterpreter, "interpreter name to look for")

	return cmd
}
