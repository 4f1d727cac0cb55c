package bundle

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/condabundle/pkg/archive"
	"github.com/matzehuels/condabundle/pkg/conda"
	"github.com/matzehuels/condabundle/pkg/errors"
	"github.com/matzehuels/condabundle/pkg/installer"
	"github.com/matzehuels/condabundle/pkg/observability"
	"github.com/matzehuels/condabundle/pkg/process"
	"github.com/matzehuels/condabundle/pkg/shebang"
)

// Runner executes bundle runs. It holds no per-run state; one Runner can
// serve several runs with different configurations.
type Runner struct {
	Exec   process.Executor
	HTTP   *http.Client // installer downloads (nil uses a default client)
	Logger *log.Logger
	Hooks  observability.BundleHooks // nil uses the registered hooks
}

// NewRunner creates a Runner. A nil logger discards output.
func NewRunner(exec process.Executor, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Runner{Exec: exec, Logger: logger}
}

// run is the mutable state of a single Run call.
type run struct {
	cfg    Config
	id     string
	logger *log.Logger
	hooks  observability.BundleHooks
	result *Result

	buildDir    string
	ownsBuild   bool
	condaPrefix string
	ownsConda   bool
	condaBin    string
	envDir      string
	archive     string
}

// Run builds the bundle described by cfg and returns the published artifact.
// The Result is returned on failure too, with State set to StateFailed.
//
// The context is checked before every stage; a stage already running is
// never interrupted.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	id := uuid.NewString()
	rn := &run{
		cfg:    cfg,
		id:     id,
		logger: r.logger().With("run", id[:8]),
		hooks:  r.hooks(),
		result: &Result{RunID: id, State: StateInit},
	}
	start := time.Now()

	err := r.execute(ctx, rn)
	rn.result.CleanupErrors = rn.cleanup()
	rn.result.Duration = time.Since(start)

	if err != nil {
		rn.result.State = StateFailed
		rn.result.Artifact = ""
		code := errors.GetCode(err)
		if code == "" {
			code = errors.ErrCodeInternal
		}
		rn.logger.Error("Bundle failed", "step", code.Step(), "err", errors.UserMessage(err), "duration", rn.result.Duration)
	} else {
		rn.result.State = StateCleaned
		rn.logger.Info("Bundle ready", "artifact", rn.result.Artifact, "duration", rn.result.Duration)
	}
	rn.hooks.OnRunComplete(ctx, id, rn.result.Artifact, rn.result.Duration, err)
	return rn.result, err
}

func (r *Runner) execute(ctx context.Context, rn *run) error {
	cfg := rn.cfg
	if err := rn.prepare(); err != nil {
		return err
	}
	rn.logger.Info("Building bundle", "env", rn.envDir)
	if cfg.CloneMode() {
		rn.logger.Info("No conda packages selected, cloning reference environment")
	} else {
		rn.logger.Info("Installing conda packages", "packages", cfg.Packages)
	}

	mgr := conda.New(cfg.CondaBin, r.Exec, rn.logger)
	mgr.HTTP = r.HTTP
	var cloneFrom string

	steps := []struct {
		name  string
		state State
		fn    func(context.Context) error
	}{
		{StageManager, StateManagerReady, func(ctx context.Context) error {
			if err := rn.ensureManager(ctx, mgr); err != nil {
				return err
			}
			var err error
			cloneFrom, err = rn.cloneSource()
			return err
		}},
		{StageCreate, StateEnvCreated, func(ctx context.Context) error {
			return mgr.Create(ctx, conda.CreateOptions{
				Prefix:    rn.envDir,
				Packages:  cfg.Packages,
				CloneFrom: cloneFrom,
			})
		}},
		{StageFix, StateShebangsFixed1, func(context.Context) error {
			return rn.fixShebangs(errors.ErrCodeProvisioning)
		}},
		{StageInstall, StatePackageInstalled, func(ctx context.Context) error {
			inst := &installer.Installer{Exec: r.Exec, Interpreter: cfg.Interpreter}
			rn.logger.Info("Installing package", "script", cfg.SetupScript)
			return inst.Install(ctx, rn.envDir, cfg.SetupScript, cfg.InstallArgs...)
		}},
		{StageFix, StateShebangsFixed2, func(context.Context) error {
			return rn.fixShebangs(errors.ErrCodeInstallation)
		}},
		{StageArchive, StateArchived, func(ctx context.Context) error {
			return r.archive(ctx, rn)
		}},
		{StagePublish, StatePublished, func(context.Context) error {
			dst, err := Publish(rn.archive, cfg.DistDir)
			if err != nil {
				return err
			}
			rn.result.Artifact = dst
			rn.logger.Info("Published", "path", dst)
			return nil
		}},
	}

	for _, s := range steps {
		if err := rn.stage(ctx, s.name, s.state, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// stage runs fn as one pipeline stage and advances the state on success.
func (rn *run) stage(ctx context.Context, name string, next State, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rn.hooks.OnStageStart(ctx, rn.id, name)
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	rn.hooks.OnStageComplete(ctx, rn.id, name, d, err)

	rn.result.Stages = append(rn.result.Stages, StageStat{Name: name, State: next, Duration: d, Err: err})
	if err != nil {
		return err
	}
	rn.result.State = next
	rn.logger.Debug("stage complete", "stage", name, "state", next, "duration", d)
	return nil
}

// prepare creates the run's working directories. Anything it creates is
// recorded as owned so cleanup can remove it.
func (rn *run) prepare() error {
	cfg := rn.cfg
	short := rn.id[:8]

	if cfg.BuildDir == "" {
		dir, err := os.MkdirTemp("", "condabundle-"+short+"-")
		if err != nil {
			return errors.Wrap(errors.ErrCodeConfiguration, err, "create build directory")
		}
		rn.buildDir, rn.ownsBuild = dir, true
	} else {
		created, err := ensureDir(cfg.BuildDir)
		if err != nil {
			return errors.Wrap(errors.ErrCodeConfiguration, err, "create build directory")
		}
		rn.buildDir, rn.ownsBuild = cfg.BuildDir, created
	}

	env := filepath.Join(rn.buildDir, cfg.EnvName())
	if _, err := os.Lstat(env); err == nil {
		return errors.New(errors.ErrCodeConfiguration, "environment directory %s already exists", env)
	}
	rn.envDir = env

	tmpArchive := filepath.Join(rn.buildDir, cfg.ArchiveName())
	if _, err := os.Lstat(tmpArchive); err == nil {
		return errors.New(errors.ErrCodeConfiguration, "archive %s already exists in build directory", tmpArchive)
	}
	rn.archive = tmpArchive

	if cfg.CondaURL == "" {
		return nil
	}
	if cfg.CondaInstallPath == "" {
		dir, err := os.MkdirTemp("", "condabundle-conda-"+short+"-")
		if err != nil {
			return errors.Wrap(errors.ErrCodeConfiguration, err, "create conda install directory")
		}
		rn.condaPrefix, rn.ownsConda = dir, true
		return nil
	}
	created, err := ensureDir(cfg.CondaInstallPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, err, "create conda install directory")
	}
	rn.condaPrefix, rn.ownsConda = cfg.CondaInstallPath, created
	return nil
}

func (rn *run) ensureManager(ctx context.Context, mgr *conda.Manager) error {
	if rn.cfg.CondaURL == "" {
		rn.condaBin = mgr.Bin
		rn.logger.Info("Using conda", "bin", mgr.Bin)
		return nil
	}
	bin, err := mgr.Install(ctx, rn.cfg.CondaURL, rn.condaPrefix)
	if err != nil {
		return err
	}
	mgr.Bin = bin
	rn.condaBin = bin
	return nil
}

// cloneSource picks the reference environment for clone mode: the configured
// path, else the conda installation the run uses.
func (rn *run) cloneSource() (string, error) {
	switch {
	case !rn.cfg.CloneMode():
		return "", nil
	case rn.cfg.CloneFrom != "":
		return rn.cfg.CloneFrom, nil
	case rn.condaPrefix != "":
		return rn.condaPrefix, nil
	}
	root, err := conda.RootPrefix(rn.condaBin)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeProvisioning, err, "locate reference environment")
	}
	return root, nil
}

func (rn *run) fixShebangs(code errors.Code) error {
	bin := filepath.Join(rn.envDir, "bin")
	res, err := shebang.New(rn.cfg.Interpreter).FixDir(bin)
	if err != nil {
		return errors.Wrap(code, err, "fix shebangs in %s", bin)
	}
	rn.result.ShebangsFixed += len(res.Fixed)
	rn.logger.Info("Fixed shebangs", "fixed", len(res.Fixed), "scanned", res.Scanned)
	return nil
}

func (r *Runner) archive(ctx context.Context, rn *run) error {
	a, err := archive.New(rn.cfg.Archiver, r.Exec)
	if err != nil {
		return err
	}
	rn.logger.Info("Compressing bundle", "archive", filepath.Base(rn.archive), "archiver", rn.cfg.Archiver)
	if err := a.Archive(ctx, rn.envDir, rn.archive); err != nil {
		return err
	}
	digest, err := archive.Digest(rn.archive)
	if err != nil {
		rn.logger.Warn("Could not digest archive", "err", err)
		return nil
	}
	rn.result.Digest = digest
	rn.logger.Debug("archive digest", "blake3", digest)
	return nil
}

// cleanup removes the environment, the archive if it is still in the build
// directory, and every directory the run created. Failures are logged and returned, never fatal.
func (rn *run) cleanup() []error {
	var errs []error
	remove := func(what, path string) {
		if path == "" {
			return
		}
		rn.logger.Info("Cleaning up "+what, "path", path)
		if err := os.RemoveAll(path); err != nil {
			rn.logger.Warn("Cleanup failed", "path", path, "err", err)
			errs = append(errs, err)
		}
	}

	remove("environment", rn.envDir)
	if rn.archive != "" {
		if err := os.Remove(rn.archive); err != nil && !stderrors.Is(err, os.ErrNotExist) {
			rn.logger.Warn("Cleanup failed", "path", rn.archive, "err", err)
			errs = append(errs, err)
		}
	}
	if rn.ownsBuild {
		remove("build directory", rn.buildDir)
	}
	if rn.ownsConda {
		remove("conda install directory", rn.condaPrefix)
	}
	return errs
}

// ensureDir creates dir if needed and reports whether it did.
func ensureDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return false, &os.PathError{Op: "mkdir", Path: dir, Err: os.ErrExist}
		}
		return false, nil
	}
	if !stderrors.Is(err, os.ErrNotExist) {
		return false, err
	}
	return true, os.MkdirAll(dir, 0o755)
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.NewWithOptions(io.Discard, log.Options{})
	}
	return r.Logger
}

func (r *Runner) hooks() observability.BundleHooks {
	if r.Hooks != nil {
		return r.Hooks
	}
	return observability.Bundle()
}
