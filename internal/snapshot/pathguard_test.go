// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestGuard(t *testing.T) *pathGuard {
	t.Helper()
	g, err := newPathGuard(t.TempDir())
	if err != nil {
		t.Fatalf("newPathGuard: %v", err)
	}
	return g
}

func TestValidateSnapshotID(t *testing.T) {
	g := newTestGuard(t)

	valid := []string{"2026-01-15", "2026-01-15_retry", "abc123", "A-B_c"}
	for _, id := range valid {
		if err := g.validateSnapshotID(id); err != nil {
			t.Errorf("validateSnapshotID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", ".", "..", "a/b", "a\\b", "a b", "a.b", "id\x00", "../../etc"}
	for _, id := range invalid {
		if err := g.validateSnapshotID(id); !errors.Is(err, ErrInvalidSnapshotID) {
			t.Errorf("validateSnapshotID(%q) = %v, want ErrInvalidSnapshotID", id, err)
		}
	}
}

func TestValidateDistrictID(t *testing.T) {
	g := newTestGuard(t)

	for _, id := range []string{"D10", "abc", "123"} {
		if err := g.validateDistrictID(id); err != nil {
			t.Errorf("validateDistrictID(%q) = %v, want nil", id, err)
		}
	}
	// District ids are stricter than snapshot ids: no separators at all.
	for _, id := range []string{"", "D-10", "D_10", "a/b", "..", "d.json"} {
		if err := g.validateDistrictID(id); !errors.Is(err, ErrInvalidDistrictID) {
			t.Errorf("validateDistrictID(%q) = %v, want ErrInvalidDistrictID", id, err)
		}
	}
}

func TestWritePathStaysUnderRoot(t *testing.T) {
	g := newTestGuard(t)

	p, err := g.writePath("2026-01-15", "district_D10.json")
	if err != nil {
		t.Fatalf("writePath: %v", err)
	}
	if !strings.HasPrefix(p, g.root+string(os.PathSeparator)) {
		t.Fatalf("path %s not under root %s", p, g.root)
	}

	if _, err := g.writePath("..", "escape"); !errors.Is(err, ErrPathTraversal) {
		t.Fatalf("writePath with .. = %v, want ErrPathTraversal", err)
	}
}

// A symlink planted inside the store pointing outside must be refused on the
// read path.
func TestReadPathRefusesEscapingSymlink(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	g, err := newPathGuard(root)
	if err != nil {
		t.Fatalf("newPathGuard: %v", err)
	}

	secret := filepath.Join(outside, "secret.json")
	if err := os.WriteFile(secret, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "2026-01-15"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	link := filepath.Join(root, "2026-01-15", metadataFileName)
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := g.readPath("2026-01-15", metadataFileName); !errors.Is(err, ErrPathTraversal) {
		t.Fatalf("readPath through escaping symlink = %v, want ErrPathTraversal", err)
	}

	// A directory symlink escaping the root is refused even for files that
	// do not exist yet.
	dirLink := filepath.Join(root, "2026-01-16")
	if err := os.Symlink(outside, dirLink); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := g.readPath("2026-01-16", "district_D10.json"); !errors.Is(err, ErrPathTraversal) {
		t.Fatalf("readPath through escaping dir symlink = %v, want ErrPathTraversal", err)
	}
}

// A missing leaf is not an error at resolution time; the returned path simply
// fails the subsequent read.
func TestReadPathMissingLeaf(t *testing.T) {
	g := newTestGuard(t)

	p, err := g.readPath("2026-01-15", metadataFileName)
	if err != nil {
		t.Fatalf("readPath for missing file: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("stat = %v, want not-exist", err)
	}
}
