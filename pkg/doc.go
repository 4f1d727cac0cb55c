// Package pkg provides the core libraries for condabundle.
//
// # Overview
//
// condabundle turns a Python project into a relocatable conda environment
// archive. The pkg directory is organized by pipeline concern:
//
//  1. [bundle] - Orchestration (configuration, stage runner, publishing)
//  2. [conda] - Conda provisioning (installer download, environment creation)
//  3. [installer] - Running the project's setup script inside the environment
//  4. [shebang] - Rewriting interpreter shebangs so scripts survive relocation
//  5. [archive] - Packing the environment as .tar.gz and digesting the result
//
// Supporting packages:
//
//   - [process] - Subprocess execution behind a replaceable seam
//   - [httputil] - Streaming downloads to temporary files
//   - [metadata] - pyproject.toml name, version and bundle defaults
//   - [platform] - Host system and machine names for artifact suffixes
//   - [observability] - Stage and HTTP hooks
//   - [errors] - Structured error codes, one per failing step
//   - [buildinfo] - Version information injected at build time
//
// # Architecture
//
// The data flow of a bundle run:
//
//	CLI flags + pyproject.toml
//	         ↓
//	    [bundle.Resolve] (validated Config)
//	         ↓
//	    conda manager → create env → fix shebangs → install → fix shebangs
//	         ↓
//	    [archive] (.tar.gz in the build dir)
//	         ↓
//	    [bundle.Publish] (<dist>/<name>-<version>-bundle-<system>-<machine>.tar.gz)
//
// # Quick Start
//
//	import (
//	    "context"
//	    "fmt"
//	    "os"
//
//	    "github.com/charmbracelet/log"
//	    "github.com/matzehuels/condabundle/pkg/bundle"
//	    "github.com/matzehuels/condabundle/pkg/process"
//	)
//
//	cfg, err := bundle.Resolve(context.Background(), bundle.Options{
//	    SetupScript: "setup.py",
//	    Packages:    []string{"python=3.11"},
//	})
//	if err != nil {
//	    return err
//	}
//
//	logger := log.New(os.Stderr)
//	runner := bundle.NewRunner(process.NewExec(nil, logger), logger)
//	res, err := runner.Run(context.Background(), cfg)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Artifact)
package pkg
