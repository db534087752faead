// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	snapshotIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	districtIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// pathGuard validates identifiers and resolves paths so they cannot escape
// the store root. Identifiers are checked against safe character sets before
// any filesystem call.
type pathGuard struct {
	// root is the absolute, symlink-resolved store root.
	root string
}

// newPathGuard creates a guard for the given store root. The root must
// exist; it is resolved through symlinks once so later containment checks
// compare real paths.
func newPathGuard(root string) (*pathGuard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root %s: %w", root, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve store root %s: %w", abs, err)
	}
	return &pathGuard{root: resolved}, nil
}

// validateSnapshotID rejects snapshot ids outside the safe character set.
func (g *pathGuard) validateSnapshotID(id string) error {
	if id == "" || !snapshotIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSnapshotID, id)
	}
	return nil
}

// validateDistrictID rejects district ids outside the safe character set.
func (g *pathGuard) validateDistrictID(id string) error {
	if id == "" || !districtIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidDistrictID, id)
	}
	return nil
}

// writePath lexically resolves segments under the root. No filesystem access:
// write targets need not exist yet.
func (g *pathGuard) writePath(segments ...string) (string, error) {
	p := filepath.Join(append([]string{g.root}, segments...)...)
	p = filepath.Clean(p)
	if !g.underRoot(p) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, p)
	}
	return p, nil
}

// readPath resolves segments under the root following symlinks, so a link
// planted inside a snapshot directory cannot point reads outside the store.
// A missing file is a normal not-found outcome here, not an error: the
// deepest existing ancestor is resolved and checked instead, and the
// returned path will simply fail the subsequent read with ErrNotExist.
func (g *pathGuard) readPath(segments ...string) (string, error) {
	p, err := g.writePath(segments...)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		if !g.underRoot(resolved) {
			return "", fmt.Errorf("%w: %s resolves to %s", ErrPathTraversal, p, resolved)
		}
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}

	// Leaf does not exist; confine the parent directory if it does.
	dir, base := filepath.Split(p)
	resolvedDir, dirErr := filepath.EvalSymlinks(filepath.Clean(dir))
	if dirErr != nil {
		if errors.Is(dirErr, fs.ErrNotExist) {
			return p, nil
		}
		return "", fmt.Errorf("resolve %s: %w", dir, dirErr)
	}
	if !g.underRoot(resolvedDir) {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrPathTraversal, dir, resolvedDir)
	}
	return filepath.Join(resolvedDir, base), nil
}

// underRoot reports whether p is the root or contained within it.
func (g *pathGuard) underRoot(p string) bool {
	return p == g.root || strings.HasPrefix(p, g.root+string(os.PathSeparator))
}
