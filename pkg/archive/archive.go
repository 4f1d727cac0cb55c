// Package archive compresses a built environment into a .tar.gz artifact.
//
// Both implementations produce the same layout: the archive's single root
// entry is the base name of the source directory, so extracting it anywhere
// recreates that directory, and no absolute host paths are stored.
//
//   - [Tar] runs the system tar binary.
//   - [Native] writes the archive in-process with archive/tar and
//     klauspost/compress gzip.
//
// Failures are reported as COMPRESSION_ERROR and never leave a partial file
// at the destination path.
package archive

import (
	"context"
	"os"
	"strings"

	"github.com/matzehuels/condabundle/pkg/errors"
	"github.com/matzehuels/condabundle/pkg/process"
)

// Extension is the file extension of every artifact.
const Extension = ".tar.gz"

// Kind selects an Archiver implementation.
type Kind string

// Supported archiver kinds.
const (
	KindTar    Kind = "tar"
	KindNative Kind = "native"
)

// Kinds lists the supported kinds, default first.
var Kinds = []Kind{KindTar, KindNative}

// ParseKind validates s as a Kind. The empty string selects the default.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindTar, nil
	case KindTar, KindNative:
		return k, nil
	default:
		return "", errors.New(errors.ErrCodeConfiguration, "unknown archiver %q (want tar or native)", s)
	}
}

// Archiver compresses the directory src into the archive file dst.
type Archiver interface {
	Archive(ctx context.Context, src, dst string) error
}

// New returns the Archiver for kind. exec is used by the tar archiver.
func New(kind Kind, exec process.Executor) (Archiver, error) {
	switch kind {
	case KindTar, "":
		return &Tar{Exec: exec}, nil
	case KindNative:
		return &Native{}, nil
	default:
		return nil, errors.New(errors.ErrCodeConfiguration, "unknown archiver %q (want tar or native)", kind)
	}
}

func checkSource(src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCompression, err, "archive source")
	}
	if !info.IsDir() {
		return errors.New(errors.ErrCodeCompression, "archive source %s is not a directory", src)
	}
	return nil
}
