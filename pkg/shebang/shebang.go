// Package shebang makes interpreter scripts in a conda environment
// relocatable.
//
// Installers write scripts whose first line hard-codes the absolute path of
// the interpreter they were installed with:
//
//	#!/tmp/build/myapp-1.0/bin/python3.11
//
// Once the environment is archived and unpacked somewhere else that path no
// longer exists. The fixer replaces the line with a POSIX shell shebang
// followed by a line that is valid in both sh and Python and re-executes the
// interpreter found next to the script:
//
//	#!/bin/sh
//	"exec" "`dirname $0`/python" "$0" "$@"
//
// sh runs the exec line; Python sees a no-op string expression statement and
// carries on with the rest of the script.
package shebang

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"unicode/utf8"
)

// DefaultInterpreter is the interpreter name bundled environments expose in bin/.
const DefaultInterpreter = "python"

// Shebang is the first line written to every fixed script.
const Shebang = "#!/bin/sh\n"

// maxLineBytes bounds how much of a file is read looking for the first line.
const maxLineBytes = 64 << 10

// Fixer rewrites scripts bound to a given interpreter name.
type Fixer struct {
	interpreter string
	pattern     *regexp.Regexp
}

// New creates a Fixer for the given interpreter name ("python" when empty).
func New(interpreter string) *Fixer {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	return &Fixer{
		interpreter: interpreter,
		pattern:     regexp.MustCompile(`^#!\S*/` + regexp.QuoteMeta(interpreter) + `[0-9.]*([ \t][^\n]*)?\r?\n$`),
	}
}

// Interpreter returns the interpreter name the fixer looks for.
func (f *Fixer) Interpreter() string {
	return f.interpreter
}

// ExecLine returns the re-exec line written after the shell shebang.
func (f *Fixer) ExecLine() string {
	return fmt.Sprintf("\"exec\" \"`dirname $0`/%s\" \"$0\" \"$@\"\n", f.interpreter)
}

// ShouldFix reports whether path is a regular file whose first line is an
// absolute shebang for the fixer's interpreter. The interpreter must be the
// last path component, optionally with a version suffix ("python3.11") and
// flags. Files whose first line is
// not valid UTF-8 are not eligible.
func (f *Fixer) ShouldFix(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	line, err := readFirstLine(bufio.NewReader(file))
	if err != nil {
		return false, err
	}
	return f.matches(line), nil
}

func (f *Fixer) matches(line []byte) bool {
	if len(line) == 0 || !utf8.Valid(line) {
		return false
	}
	return f.pattern.Match(line)
}

// FixFile rewrites path in place if it is eligible and reports whether it
// did. The new content is written to a temporary sibling and renamed over
// path, so the original is never left partially written. Permission bits of
// the original are kept.
func (f *Fixer) FixFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer src.Close()

	r := bufio.NewReader(src)
	line, err := readFirstLine(r)
	if err != nil {
		return false, err
	}
	if !f.matches(line) {
		return false, nil
	}

	if err := f.rewrite(path, info.Mode().Perm(), r); err != nil {
		return false, fmt.Errorf("rewrite %s: %w", path, err)
	}
	return true, nil
}

// rewrite writes the new header plus the rest of r to a temp file next to
// path and renames it into place.
func (f *Fixer) rewrite(path string, perm os.FileMode, rest io.Reader) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.new")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if _, err = w.WriteString(Shebang); err != nil {
		return err
	}
	if _, err = w.WriteString(f.ExecLine()); err != nil {
		return err
	}
	if _, err = io.Copy(w, rest); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Result summarizes a directory pass.
type Result struct {
	Scanned int      // Entries examined
	Fixed   []string // Paths that were rewritten
	Skipped int      // Non-regular entries (directories, dangling links, ...)
}

// FixDir applies FixFile to every regular file directly inside dir.
// Symbolic links are followed when deciding eligibility; an eligible link is
// replaced by a rewritten regular file and its target is left untouched.
func (f *Fixer) FixDir(dir string) (Result, error) {
	var res Result

	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, err
	}

	for _, entry := range entries {
		res.Scanned++
		path := filepath.Join(dir, entry.Name())

		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				res.Skipped++ // dangling symlink
				continue
			}
			return res, err
		}
		if !info.Mode().IsRegular() {
			res.Skipped++
			continue
		}

		fixed, err := f.FixFile(path)
		if err != nil {
			return res, err
		}
		if fixed {
			res.Fixed = append(res.Fixed, path)
		}
	}

	return res, nil
}

// readFirstLine returns the first line including its terminator, or the
// whole (bounded) content when there is no terminator.
func readFirstLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		switch {
		case err == nil:
			return line, nil
		case errors.Is(err, io.EOF):
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			if len(line) >= maxLineBytes {
				return line, nil
			}
		default:
			return nil, err
		}
	}
}

var defaultFixer = New(DefaultInterpreter)

// FixFile rewrites a python script at path. See Fixer.FixFile.
func FixFile(path string) (bool, error) {
	return defaultFixer.FixFile(path)
}

// FixDir rewrites every python script directly inside dir. See Fixer.FixDir.
func FixDir(dir string) (Result, error) {
	return defaultFixer.FixDir(dir)
}

// IsFixed reports whether content already starts with the relocatable header
// produced by f.
func (f *Fixer) IsFixed(content []byte) bool {
	return bytes.HasPrefix(content, []byte(Shebang+f.ExecLine()))
}
