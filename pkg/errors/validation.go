package errors

import (
	"strings"
	"unicode"
)

// ValidateName validates a single path segment such as a final archive name
// or an index file name. It rejects empty names, control characters, path
// separators and traversal sequences.
func ValidateName(kind, name string) error {
	if name == "" {
		return New(ErrCodeInvalidConfig, "%s cannot be empty", kind)
	}
	if len(name) > 255 {
		return New(ErrCodeInvalidConfig, "%s too long (max 255 characters)", kind)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidConfig, "%s contains invalid control characters", kind)
		}
	}
	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidConfig, "%s cannot contain path separators: %q", kind, name)
	}
	if name == "." || name == ".." {
		return New(ErrCodeInvalidConfig, "%s cannot be %q", kind, name)
	}
	return nil
}

// ValidatePath validates a relative path inside a generated repository.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
		}
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateURL validates a base URL override. Only http, https and file
// schemes are accepted.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidConfig, "URL cannot be empty")
	}
	for _, scheme := range []string{"http://", "https://", "file:"} {
		if strings.HasPrefix(rawURL, scheme) {
			return nil
		}
	}
	return New(ErrCodeInvalidConfig, "URL must use http, https or file scheme: %q", rawURL)
}
