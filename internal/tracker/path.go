package tracker

import (
	"path"
	"strings"
)

// NormalizePath converts backslash separators to forward slashes so that
// paths observed from Windows-mounted shares and POSIX mounts compare equal.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	return strings.ReplaceAll(p, "\\", "/")
}

// Basename returns the final element of a normalized path.
func Basename(p string) string {
	return path.Base(NormalizePath(p))
}

// Ext returns the lower-cased extension of a path, including the dot.
func Ext(p string) string {
	return strings.ToLower(path.Ext(NormalizePath(p)))
}
