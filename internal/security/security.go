// Package security validates untrusted local input before it reaches the
// daemon's window pipeline: image paths from client requests, and the
// permission policy on the daemon socket itself.
package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// maxPathLength guards against denial-of-service via absurd inputs; checked
// before any filesystem call.
const maxPathLength = 4096

// stdinSentinel mirrors the protocol's "read inline payload" filename.
const stdinSentinel = "-"

var (
	ErrInvalidPath   = errors.New("invalid path")
	ErrFileNotFound  = errors.New("file not found")
	ErrPathTraversal = errors.New("path traversal detected")
	ErrNotAFile      = errors.New("path is not a regular file")
)

// ValidateImagePath canonicalizes and authorizes a client-supplied image
// path. Symlinks, including multi-hop chains, are followed and permitted:
// the authorization decision is made on the final canonical target, not the
// input spelling. The stdin sentinel is accepted verbatim with no filesystem
// check.
func ValidateImagePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if path == stdinSentinel {
		return path, nil
	}
	if len(path) > maxPathLength {
		return "", fmt.Errorf("%w: path too long: %d bytes (max %d)",
			ErrInvalidPath, len(path), maxPathLength)
	}

	// Resolve symlinks and relative segments to the canonical absolute form.
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("canonicalize %s: %w", path, err)
	}
	canonical, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", path, err)
	}

	// Canonicalization already eliminated relative segments; re-check anyway.
	for _, seg := range strings.Split(canonical, string(filepath.Separator)) {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrPathTraversal, path)
		}
	}

	var st unix.Stat_t
	if err := unix.Stat(canonical, &st); err != nil {
		return "", fmt.Errorf("stat %s: %w", canonical, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return "", fmt.Errorf("%w: %s", ErrNotAFile, canonical)
	}

	return canonical, nil
}

// SetSocketPermissions forces owner-read-write-only mode on the socket file,
// overwriting any broader pre-existing permissions. Must run after binding
// and before the listener starts accepting.
func SetSocketPermissions(path string) error {
	if err := unix.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

// VerifySocketOwnership checks that the socket inode belongs to the
// effective user. A socket owned by someone else at our per-user path is
// either a spoof or leftover cruft; refuse to use it.
func VerifySocketOwnership(path string) error {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return fmt.Errorf("lstat %s: %w", path, err)
	}
	if st.Uid != uint32(os.Geteuid()) {
		return fmt.Errorf("socket %s owned by uid %d, not %d", path, st.Uid, os.Geteuid())
	}
	return nil
}
