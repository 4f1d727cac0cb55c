package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// ValidateDistName validates a distribution name or version before it is used
// to build directory and archive file names.
//
// The validation rules are intentionally conservative:
//   - No empty values
//   - No control characters
//   - No path separators or traversal sequences
//   - Maximum length of 256 characters
func ValidateDistName(field, value string) error {
	if value == "" {
		return New(ErrCodeConfiguration, "%s cannot be empty", field)
	}

	if len(value) > 256 {
		return New(ErrCodeConfiguration, "%s too long (max 256 characters)", field)
	}

	for _, r := range value {
		if unicode.IsControl(r) {
			return New(ErrCodeConfiguration, "%s contains invalid control characters", field)
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"/",    // Path separator
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(value, pattern) {
			return New(ErrCodeConfiguration, "%s contains invalid characters: %q", field, pattern)
		}
	}

	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeConfiguration, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeConfiguration, "URL must use http or https scheme: %q", rawURL)
	}

	return nil
}

// packageSpecRegex matches conda match specifications: an optional channel
// ("conda-forge::", "conda-forge/label/dev::"), a package name and any number
// of version or build constraints, either attached ("python=3.11",
// "pkg[build=py311*]") or space separated ("numpy 1.26 py311_0"). Ranges with
// commas ("numpy>=1.26,<2") are valid specs; on the command line the comma
// separates packages, so they can only be given as pyproject.toml list items.
var packageSpecRegex = regexp.MustCompile(`^(?:[A-Za-z0-9_.:/~-]+::)?[A-Za-z0-9_][A-Za-z0-9_.-]*(?: *[<>=!~*,.0-9A-Za-z_+|\[\]'"-]+)*$`)

// ValidatePackageSpec validates a single conda package specification.
// Specs are passed as separate argv entries, so this only guards against
// values that would be read as flags or contain shell-hostile characters.
func ValidatePackageSpec(spec string) error {
	if spec == "" {
		return New(ErrCodeConfiguration, "package specification cannot be empty")
	}
	if strings.HasPrefix(spec, "-") {
		return New(ErrCodeConfiguration, "package specification cannot start with '-': %q", spec)
	}
	for _, r := range spec {
		if unicode.IsControl(r) {
			return New(ErrCodeConfiguration, "package specification contains control characters: %q", spec)
		}
	}
	if !packageSpecRegex.MatchString(spec) {
		return New(ErrCodeConfiguration, "invalid package specification: %q", spec)
	}
	return nil
}
