package archive

import (
	"archive/tar"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/condabundle/pkg/errors"
)

// Native writes the archive in-process.
type Native struct {
	// Level is the gzip compression level; zero means gzip.DefaultCompression.
	Level int
}

// Archive walks src and writes a gzip-compressed tar to a temporary sibling
// of dst, renaming it onto dst once complete. Symlinks are stored as links.
func (n *Native) Archive(ctx context.Context, src, dst string) error {
	src = filepath.Clean(src)
	if err := checkSource(src); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrCodeCompression, err, "create archive")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := n.write(ctx, tmp, src); err != nil {
		tmp.Close()
		return errors.Wrap(errors.ErrCodeCompression, err, "compress %s", filepath.Base(src))
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeCompression, err, "close archive")
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return errors.Wrap(errors.ErrCodeCompression, err, "rename archive")
	}
	return nil
}

func (n *Native) write(ctx context.Context, w io.Writer, src string) error {
	level := n.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	gz, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(gz)

	parent := filepath.Dir(src)
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		return addEntry(tw, path, filepath.ToSlash(rel), d)
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func addEntry(tw *tar.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	// Strip host ownership.
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// Ensure Native implements Archiver.
var _ Archiver = (*Native)(nil)
