package cli

import (
	"github.com/spf13/cobra"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for condabundle.

To load completions:

Bash:
  $ source <(condabundle completion bash)

Zsh:
  $ condabundle completion zsh > "${fpath[1]}/_condabundle"

Fish:
  $ condabundle completion fish > ~/.config/fish/completions/condabundle.fish

PowerShell:
  PS> condabundle completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}

	return cmd
}

// archiverCompletion completes --archiver values.
func archiverCompletion(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return []string{"tar\texternal tar binary", "native\tin-process gzip writer"}, cobra.ShellCompDirectiveNoFileComp
}

// dirCompletion restricts completion to directories.
func dirCompletion(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveFilterDirs
}
