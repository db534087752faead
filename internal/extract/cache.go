// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/distrikt/internal/logging"
	"github.com/tomtom215/distrikt/internal/metrics"
)

// ErrChecksumMismatch indicates a cached extract whose content no longer
// matches its recorded checksum.
var ErrChecksumMismatch = errors.New("extract checksum mismatch")

// ErrInvalidExtractKey indicates a cache key outside the safe character set.
var ErrInvalidExtractKey = errors.New("invalid extract key")

var extractKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

const checksumSuffix = ".sha256"

// Cache stores raw upstream extracts on disk keyed by name, each with a
// sha256 sidecar so later reads can prove the bytes are what was fetched.
// Extracts are the recovery source of last resort for snapshots whose commit
// markers were lost, so tamper and rot detection matters more than speed.
type Cache struct {
	dir string
	log zerolog.Logger
}

// Entry describes one cached extract.
type Entry struct {
	Key       string    `json:"key"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
	Checksum  string    `json:"checksum"`
}

// NewCache opens an extract cache rooted at dir, creating it if needed.
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("extract cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create extract cache directory %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve extract cache directory %s: %w", dir, err)
	}
	return &Cache{dir: abs, log: logging.WithComponent("extract-cache")}, nil
}

func validateKey(key string) error {
	if key == "" || strings.HasSuffix(key, checksumSuffix) || !extractKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidExtractKey, key)
	}
	return nil
}

// Put stores an extract under key with its checksum sidecar. Both files go
// through temp-file plus rename so a crash cannot leave content without a
// verifiable checksum or vice versa; the sidecar is written last.
func (c *Cache) Put(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	if err := writeAtomic(filepath.Join(c.dir, key), data); err != nil {
		return fmt.Errorf("write extract %s: %w", key, err)
	}
	if err := writeAtomic(filepath.Join(c.dir, key+checksumSuffix), []byte(checksum)); err != nil {
		return fmt.Errorf("write extract checksum %s: %w", key, err)
	}
	c.log.Debug().Str("key", key).Int("bytes", len(data)).Str("checksum", checksum).Msg("Extract cached")
	return nil
}

// Get returns a cached extract after verifying its checksum. A missing
// extract returns (nil, nil); a checksum mismatch returns ErrChecksumMismatch.
func (c *Cache) Get(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(c.dir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.ExtractCacheVerifications.WithLabelValues("miss").Inc()
			return nil, nil
		}
		return nil, fmt.Errorf("read extract %s: %w", key, err)
	}

	recorded, err := os.ReadFile(filepath.Join(c.dir, key+checksumSuffix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Content without a sidecar cannot be verified; treat as mismatch.
			metrics.ExtractCacheVerifications.WithLabelValues("mismatch").Inc()
			return nil, fmt.Errorf("%w: %s has no checksum sidecar", ErrChecksumMismatch, key)
		}
		return nil, fmt.Errorf("read extract checksum %s: %w", key, err)
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != strings.TrimSpace(string(recorded)) {
		metrics.ExtractCacheVerifications.WithLabelValues("mismatch").Inc()
		c.log.Error().Str("key", key).Msg("Extract failed checksum verification")
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, key)
	}
	metrics.ExtractCacheVerifications.WithLabelValues("ok").Inc()
	return data, nil
}

// Delete removes an extract and its sidecar. Absence is not an error.
func (c *Cache) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	for _, name := range []string{key, key + checksumSuffix} {
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete extract %s: %w", name, err)
		}
	}
	return nil
}

// List returns the cached entries sorted by key.
func (c *Cache) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("list extract cache: %w", err)
	}
	var out []Entry
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasSuffix(de.Name(), checksumSuffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entry := Entry{
			Key:       de.Name(),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime().UTC(),
		}
		if sum, err := os.ReadFile(filepath.Join(c.dir, de.Name()+checksumSuffix)); err == nil {
			entry.Checksum = strings.TrimSpace(string(sum))
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Verify checks every cached extract against its sidecar and returns the keys
// that failed.
func (c *Cache) Verify() ([]string, error) {
	entries, err := c.List()
	if err != nil {
		return nil, err
	}
	var bad []string
	for _, e := range entries {
		if _, err := c.Get(e.Key); err != nil {
			if errors.Is(err, ErrChecksumMismatch) {
				bad = append(bad, e.Key)
				continue
			}
			return nil, err
		}
	}
	return bad, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
