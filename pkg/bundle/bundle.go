// Package bundle builds relocatable conda bundles of a Python package.
//
// A run provisions a fresh conda environment, installs the package into it
// with the environment's own interpreter, rewrites interpreter shebangs so
// the environment can be moved, compresses it, and publishes the archive to
// the output directory:
//
//	manager → create → fix-shebangs → install → fix-shebangs → archive → publish → cleanup
//
// # Usage
//
//	cfg, err := bundle.Resolve(ctx, bundle.Options{SetupScript: "setup.py"})
//	if err != nil {
//	    return err
//	}
//	runner := bundle.NewRunner(process.NewExec(os.Stderr, logger), logger)
//	result, err := runner.Run(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Artifact) // dist/myapp-1.0-bundle-Linux-x86_64.tar.gz
//
// Each step either succeeds or aborts the run with a coded error from
// [github.com/matzehuels/condabundle/pkg/errors]. Temporary state is removed
// on every exit path; cleanup problems are reported in [Result.CleanupErrors]
// and never replace the step error.
package bundle

import "time"

// State is a position in the bundle state machine.
type State int

// Run states in execution order. StateFailed is terminal.
const (
	StateInit State = iota
	StateManagerReady
	StateEnvCreated
	StateShebangsFixed1
	StatePackageInstalled
	StateShebangsFixed2
	StateArchived
	StatePublished
	StateCleaned
	StateFailed
)

var stateNames = [...]string{
	StateInit:             "INIT",
	StateManagerReady:     "MANAGER_READY",
	StateEnvCreated:       "ENV_CREATED",
	StateShebangsFixed1:   "SHEBANGS_FIXED_1",
	StatePackageInstalled: "PACKAGE_INSTALLED",
	StateShebangsFixed2:   "SHEBANGS_FIXED_2",
	StateArchived:         "ARCHIVED",
	StatePublished:        "PUBLISHED",
	StateCleaned:          "CLEANED",
	StateFailed:           "FAILED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Stage names, as reported to hooks and logs.
const (
	StageManager = "manager"
	StageCreate  = "create"
	StageFix     = "fix-shebangs"
	StageInstall = "install"
	StageArchive = "archive"
	StagePublish = "publish"
)

// StageStat records one executed stage.
type StageStat struct {
	Name     string
	State    State // state reached when the stage succeeds
	Duration time.Duration
	Err      error
}

// Result describes a finished run, successful or not.
type Result struct {
	RunID    string
	Artifact string // published archive path; empty unless published
	Digest   string // BLAKE3 of the artifact, informational
	State    State
	Stages   []StageStat
	Duration time.Duration

	// ShebangsFixed counts scripts rewritten across both fix passes.
	ShebangsFixed int

	// CleanupErrors holds failures removing temporary state.
	CleanupErrors []error
}
