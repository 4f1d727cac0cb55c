package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
)

// SetupCfgFilename is the setuptools declarative config file.
const SetupCfgFilename = "setup.cfg"

// LoadSetupCfg reads name and version from the [metadata] section of
// setup.cfg in dir. Directive values such as "attr: pkg.__version__" need
// the package to be imported and are reported as empty. A missing file
// returns found=false.
func LoadSetupCfg(dir string) (project Project, found bool, err error) {
	path := filepath.Join(dir, SetupCfgFilename)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Project{}, false, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return Project{}, true, fmt.Errorf("%s: %w", path, err)
	}
	if !f.HasSection("metadata") {
		return Project{}, true, nil
	}
	sec := f.Section("metadata")
	return Project{
		Name:    literal(sec.Key("name").String()),
		Version: literal(sec.Key("version").String()),
	}, true, nil
}

func literal(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "attr:") || strings.HasPrefix(v, "file:") {
		return ""
	}
	return v
}
