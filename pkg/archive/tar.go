package archive

import (
	"context"
	"os"
	"path/filepath"

	"github.com/matzehuels/condabundle/pkg/errors"
	"github.com/matzehuels/condabundle/pkg/process"
)

// DefaultTarBin is the tar binary used when Tar.Bin is empty.
const DefaultTarBin = "tar"

// Tar archives with the system tar binary.
type Tar struct {
	Exec process.Executor
	Bin  string
}

// Args returns the tar arguments that archive src into dst. tar changes into
// the parent of src so entries are stored relative to it.
func Args(src, dst string) []string {
	return []string{"-C", filepath.Dir(src), "-czf", dst, filepath.Base(src)}
}

// Archive runs tar and checks that dst was produced.
func (t *Tar) Archive(ctx context.Context, src, dst string) error {
	src = filepath.Clean(src)
	if err := checkSource(src); err != nil {
		return err
	}

	bin := t.Bin
	if bin == "" {
		bin = DefaultTarBin
	}
	cmd := process.Command{Name: bin, Args: Args(src, dst)}
	if err := t.Exec.Run(ctx, cmd); err != nil {
		os.Remove(dst)
		return errors.Wrap(errors.ErrCodeCompression, err, "compress %s", filepath.Base(src))
	}

	info, err := os.Stat(dst)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCompression, err, "archive not produced")
	}
	if !info.Mode().IsRegular() {
		return errors.New(errors.ErrCodeCompression, "archive %s is not a regular file", dst)
	}
	return nil
}

// Ensure Tar implements Archiver.
var _ Archiver = (*Tar)(nil)
