package bundle

import (
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/matzehuels/condabundle/pkg/errors"
)

// rename is swapped in tests to simulate cross-device moves.
var rename = os.Rename

// Publish moves the archive at src into distDir, creating distDir if needed,
// and returns the new path. When src and distDir are on different file
// systems the archive is copied to a temporary file in distDir, renamed into
// place and the source removed, so a partial artifact is never visible under
// its final name. Failures are PUBLISH_ERROR.
func Publish(src, distDir string) (string, error) {
	if err := os.MkdirAll(distDir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodePublish, err, "create output directory %s", distDir)
	}
	dst := filepath.Join(distDir, filepath.Base(src))

	err := rename(src, dst)
	if err == nil {
		return dst, nil
	}
	if !stderrors.Is(err, syscall.EXDEV) {
		return "", errors.Wrap(errors.ErrCodePublish, err, "move archive to %s", distDir)
	}
	if err := moveAcross(src, dst); err != nil {
		return "", errors.Wrap(errors.ErrCodePublish, err, "copy archive to %s", distDir)
	}
	return dst, nil
}

func moveAcross(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return err
	}
	// The run's cleanup retries removing the source.
	_ = os.Remove(src)
	return nil
}
