package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/condabundle/pkg/archive"
	"github.com/matzehuels/condabundle/pkg/bundle"
	"github.com/matzehuels/condabundle/pkg/errors"
	"github.com/matzehuels/condabundle/pkg/process"
)

// bundleOpts holds the command-line flags for the bundle command.
// Unset flags fall back to [tool.condabundle] in pyproject.toml.
type bundleOpts struct {
	packages         string   // comma separated conda package specs
	condaURL         string   // installer URL; installs a private conda
	condaBin         string   // existing conda binary
	condaInstallPath string   // where to install conda from condaURL
	cloneFrom        string   // reference environment for clone mode
	buildDir         string   // scratch directory for the environment
	distDir          string   // output directory
	setupScript      string   // install entry point
	installArgs      []string // extra arguments after "install"
	interpreter      string   // interpreter name in <env>/bin
	hostPython       string   // interpreter that queries setup.py metadata
	name             string   // package name override
	version          string   // package version override
	archiver         string   // tar or native
}

// options converts the flags into bundle.Options. Slice options are only set
// when their flag was given, so an explicit empty --conda-packages selects
// clone mode even if pyproject.toml lists packages.
func (o *bundleOpts) options(cmd *cobra.Command) bundle.Options {
	opts := bundle.Options{
		CondaURL:         o.condaURL,
		CondaBin:         o.condaBin,
		CondaInstallPath: o.condaInstallPath,
		CloneFrom:        o.cloneFrom,
		BuildDir:         o.buildDir,
		DistDir:          o.distDir,
		SetupScript:      o.setupScript,
		Interpreter:      o.interpreter,
		HostPython:       o.hostPython,
		Name:             o.name,
		Version:          o.version,
		Archiver:         o.archiver,
	}
	if cmd.Flags().Changed("conda-packages") {
		opts.Packages = bundle.ParsePackages(o.packages)
	}
	if cmd.Flags().Changed("install-arg") {
		opts.InstallArgs = append([]string{}, o.installArgs...)
	}
	return opts
}

// addFlags registers the bundle flags on cmd.
func (o *bundleOpts) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.packages, "conda-packages", "", "comma-separated conda package specifications to install (empty clones a reference environment)")
	f.StringVar(&o.condaURL, "conda-url", "", "URL of a conda installer script to install a private conda from")
	f.StringVar(&o.condaInstallPath, "conda-install-path", "", "target path for installing conda (temporary if empty; an existing directory is kept and must be removed by hand)")
	f.StringVar(&o.buildDir, "bundle-build-dir", "", "bundle build directory (temporary if empty; an existing directory is kept, only the environment and archive are removed)")
	f.StringVar(&o.condaBin, "conda-bin", "", "conda binary to use when --conda-url is not set (default \"conda\")")
	f.StringVar(&o.cloneFrom, "clone-from", "", "environment to clone when no packages are given (default: the conda installation)")
	f.StringVar(&o.setupScript, "setup-script", "", "setup script of the project (default \"setup.py\")")
	f.StringVar(&o.name, "name", "", "package name (default from pyproject.toml)")
	f.StringVar(&o.version, "version", "", "package version (default from pyproject.toml)")
	f.StringVar(&o.distDir, "dist-dir", "", "output directory (default \"dist\" next to the setup script)")
	f.StringArrayVar(&o.installArgs, "install-arg", nil, "extra argument passed after \"install\" (repeatable)")
	f.StringVar(&o.interpreter, "interpreter", "", "interpreter name in the environment's bin directory (default \"python\")")
	f.StringVar(&o.hostPython, "host-python", "", "interpreter used to ask setup.py for name and version when no metadata file has them (default \"python3\")")
	f.StringVar(&o.archiver, "archiver", "", "archiver: "+strings.Join(kindNames(), " or ")+" (default \"tar\")")

	_ = cmd.RegisterFlagCompletionFunc("archiver", archiverCompletion)
	for _, name := range []string{"conda-install-path", "bundle-build-dir", "clone-from", "dist-dir"} {
		_ = cmd.RegisterFlagCompletionFunc(name, dirCompletion)
	}
}

// bundleCommand creates the bundle command.
func (c *CLI) bundleCommand() *cobra.Command {
	var opts bundleOpts

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Build a relocatable conda bundle of a Python project",
		Long: `Build a relocatable conda bundle of a Python project.

A fresh conda environment is created in a build directory, either from the
given package specifications or, when none are given, by cloning a reference
installation. The project is installed into it with the environment's own
interpreter, interpreter shebangs are rewritten to be relocatable, and the
environment is archived as

  <dist>/<name>-<version>-bundle-<system>-<machine>.tar.gz

Name and version are read from pyproject.toml or setup.cfg next to the setup
script unless given; as a last resort setup.py itself is asked. Defaults for
every flag can be set in a [tool.condabundle] table.

Temporary directories the run creates are removed afterwards. Existing
directories passed as --bundle-build-dir or --conda-install-path are kept;
only the environment and archive the run wrote into them are removed.

Examples:
  condabundle bundle --conda-packages "python=3.11,numpy"
  condabundle bundle --conda-url https://repo.anaconda.com/miniconda/Miniconda3-latest-Linux-x86_64.sh
  condabundle bundle --clone-from /opt/conda/envs/base --archiver native`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBundle(cmd.Context(), opts.options(cmd))
		},
	}

	opts.addFlags(cmd)

	return cmd
}

func (c *CLI) runBundle(ctx context.Context, opts bundle.Options) error {
	logger := loggerFromContext(ctx)

	if opts.Exec == nil {
		opts.Exec = process.NewExec(nil, logger)
	}
	cfg, err := bundle.Resolve(ctx, opts)
	if err != nil {
		printError("Invalid configuration: %s", errors.UserMessage(err))
		return err
	}

	printInfo("Bundling %s %s for %s", StyleTitle.Render(cfg.Name), cfg.Version, cfg.Platform)
	if cfg.CloneMode() {
		printDetail("cloning reference environment")
	} else {
		printDetail("packages: %s", strings.Join(cfg.Packages, ", "))
	}

	exec, flush := c.newExecutor(logger)
	runner := bundle.NewRunner(exec, logger)
	prog := newProgress(logger)

	res, err := runner.Run(ctx, cfg)
	flush()

	if res != nil {
		for _, cerr := range res.CleanupErrors {
			printWarning("cleanup: %v", cerr)
		}
		if c.verbose {
			printStages(res.Stages)
		}
	}
	if err != nil {
		if stderrors.Is(err, context.Canceled) {
			printWarning("Interrupted")
			return err
		}
		printError("%s failed: %s", stepName(err), errors.UserMessage(err))
		return err
	}
	prog.done("Bundle complete")

	printSuccess("Bundle created")
	printFile(res.Artifact)
	printKeyValue("shebangs", StyleNumber.Render(fmt.Sprint(res.ShebangsFixed))+" fixed")
	if res.Digest != "" {
		printKeyValue("blake3", res.Digest)
	}
	printNextStep("Unpack with", "tar -xzf "+res.Artifact)
	return nil
}

// stepName names the pipeline step an error came from.
func stepName(err error) string {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	step := code.Step()
	return strings.ToUpper(step[:1]) + step[1:]
}

func kindNames() []string {
	names := make([]string, len(archive.Kinds))
	for i, k := range archive.Kinds {
		names[i] = string(k)
	}
	return names
}
