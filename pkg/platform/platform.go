// Package platform names the host the way Python's platform module does.
//
// Bundle archives are named after the platform they were built on, using the
// same spelling as platform.system() and platform.machine() so that names
// line up with wheels and conda subdirs users already know:
//
//	myapp-1.0-bundle-Linux-x86_64.tar.gz
//	myapp-1.0-bundle-Darwin-arm64.tar.gz
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// Platform identifies an operating system and machine architecture.
type Platform struct {
	System  string // e.g. "Linux", "Darwin", "Windows"
	Machine string // e.g. "x86_64", "aarch64", "arm64"
}

// Current returns the platform of the running binary.
func Current() Platform {
	return FromGo(runtime.GOOS, runtime.GOARCH)
}

// FromGo converts Go's GOOS/GOARCH pair into Python platform names.
// Unknown values are passed through unchanged.
func FromGo(goos, goarch string) Platform {
	return Platform{
		System:  system(goos),
		Machine: machine(goos, goarch),
	}
}

// Suffix returns the "bundle-<system>-<machine>" archive name suffix.
func (p Platform) Suffix() string {
	return fmt.Sprintf("bundle-%s-%s", p.System, p.Machine)
}

// String implements fmt.Stringer.
func (p Platform) String() string {
	return p.System + "-" + p.Machine
}

func system(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "Darwin"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	case "openbsd":
		return "OpenBSD"
	case "netbsd":
		return "NetBSD"
	default:
		if goos == "" {
			return goos
		}
		return strings.ToUpper(goos[:1]) + goos[1:]
	}
}

// machine follows uname -m, which differs per OS for 64-bit ARM.
func machine(goos, goarch string) string {
	switch goarch {
	case "amd64":
		if goos == "windows" {
			return "AMD64"
		}
		return "x86_64"
	case "386":
		return "i686"
	case "arm64":
		if goos == "linux" {
			return "aarch64"
		}
		return "arm64"
	case "arm":
		return "armv7l"
	case "ppc64le":
		return "ppc64le"
	case "s390x":
		return "s390x"
	default:
		return goarch
	}
}
