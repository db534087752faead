// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/distrikt/internal/metrics"
)

// Cache keys for the read path. The current-snapshot cache also holds
// per-id entries under "snapshot:<id>".
const (
	cacheKeyCurrent = "current"
	cacheKeyListing = "listing"
	cacheKeyPrefix  = "snapshot:"
)

// reader serves the store's read path: discovery of the latest successful
// snapshot, per-id reads, and listings. Concurrent identical requests are
// collapsed into one filesystem operation via singleflight, and results are
// held in per-store TTL caches.
type reader struct {
	guard   *pathGuard
	log     zerolog.Logger
	current *ttlCache
	listing *ttlCache
	flight  singleflight.Group
	perf    *perfCounters
}

// readJSONFile reads and unmarshals one JSON file. Absence is reported as
// (false, nil); any other failure is an error.
func readJSONFile(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// latestSuccessful returns the newest snapshot whose status is success, or
// nil when the store holds none.
func (r *reader) latestSuccessful(ctx context.Context) (*Snapshot, error) {
	if cached, ok := r.current.get(cacheKeyCurrent); ok {
		r.perf.hit()
		return cached.(*Snapshot), nil
	}
	r.perf.miss()

	v, err, shared := r.flight.Do(cacheKeyCurrent, func() (interface{}, error) {
		gen := r.current.generation()
		snap, err := r.scanLatestSuccessful()
		if err != nil {
			return nil, err
		}
		if snap != nil {
			r.current.set(cacheKeyCurrent, snap, gen)
			r.current.set(cacheKeyPrefix+snap.ID, snap, gen)
		}
		return snap, nil
	})
	if shared {
		metrics.SingleflightShared.WithLabelValues(cacheKeyCurrent).Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// scanLatestSuccessful walks snapshot directories newest-first and returns
// the first with a readable metadata file whose status is success. ISO dates
// sort correctly lexicographically, so the directory name order is the date
// order. Corrupt metadata is logged and skipped, not fatal.
func (r *reader) scanLatestSuccessful() (*Snapshot, error) {
	ids, err := r.scanDirs()
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		meta, err := r.metadata(id)
		if err != nil {
			r.log.Warn().Err(err).Str("snapshot_id", id).Msg("Skipping snapshot with unreadable metadata")
			continue
		}
		if meta == nil || meta.Status != StatusSuccess {
			continue
		}
		return r.loadSnapshot(id, meta)
	}
	return nil, nil
}

// scanDirs lists valid snapshot directory names, newest first. Directories
// that are not valid snapshot ids (recovery quarantine, strays) are ignored.
func (r *reader) scanDirs() ([]string, error) {
	entries, err := os.ReadDir(r.guard.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, readErr("list snapshot directories", "", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if r.guard.validateSnapshotID(e.Name()) != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// snapshotByID returns one snapshot, or nil when it does not exist. The
// cached current snapshot short-circuits a matching id.
func (r *reader) snapshotByID(ctx context.Context, id string) (*Snapshot, error) {
	if err := r.guard.validateSnapshotID(id); err != nil {
		return nil, err
	}

	if cached, ok := r.current.get(cacheKeyCurrent); ok {
		if snap := cached.(*Snapshot); snap.ID == id {
			r.perf.hit()
			return snap, nil
		}
	}
	if cached, ok := r.current.get(cacheKeyPrefix + id); ok {
		r.perf.hit()
		return cached.(*Snapshot), nil
	}
	r.perf.miss()

	key := cacheKeyPrefix + id
	v, err, shared := r.flight.Do(key, func() (interface{}, error) {
		gen := r.current.generation()
		meta, err := r.metadata(id)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			return (*Snapshot)(nil), nil
		}
		snap, err := r.loadSnapshot(id, meta)
		if err != nil {
			return nil, err
		}
		r.current.set(key, snap, gen)
		return snap, nil
	})
	if shared {
		metrics.SingleflightShared.WithLabelValues("snapshot").Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// loadSnapshot assembles a full snapshot from its metadata, manifest, and
// district record files. meta must be non-nil.
func (r *reader) loadSnapshot(id string, meta *Metadata) (*Snapshot, error) {
	snap := &Snapshot{
		ID:                 id,
		CreatedAt:          meta.CreatedAt,
		SchemaVersion:      meta.SchemaVersion,
		CalculationVersion: meta.CalculationVersion,
		RankingVersion:     meta.RankingVersion,
		Status:             meta.Status,
		Errors:             meta.Errors,
		DistrictErrors:     meta.DistrictErrors,
		Metadata: SourceMetadata{
			Source:              meta.Source,
			AsOfDate:            meta.AsOfDate,
			IsClosingPeriodData: meta.IsClosingPeriodData,
			CollectionDate:      meta.CollectionDate,
			LogicalDate:         meta.LogicalDate,
		},
	}

	manifest, err := r.manifest(id)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		// Metadata without a manifest: commit order makes this impossible
		// short of corruption. Surface what exists, let integrity handle it.
		r.log.Warn().Str("snapshot_id", id).Msg("Snapshot has metadata but no manifest")
		return snap, nil
	}

	districtIDs := make([]string, 0, len(manifest.Districts))
	for districtID := range manifest.Districts {
		districtIDs = append(districtIDs, districtID)
	}
	sort.Strings(districtIDs)

	for _, districtID := range districtIDs {
		entry := manifest.Districts[districtID]
		if entry.Status != StatusSuccess {
			snap.Districts = append(snap.Districts, DistrictResult{
				DistrictID: districtID,
				Status:     entry.Status,
				Error:      entry.Error,
			})
			continue
		}
		rec, err := r.districtRecord(id, districtID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			r.log.Warn().Str("snapshot_id", id).Str("district_id", districtID).
				Msg("Manifest claims district record that is missing on disk")
			continue
		}
		snap.Districts = append(snap.Districts, *rec)
	}
	return snap, nil
}

// metadata reads one snapshot's metadata file. Absence returns (nil, nil).
func (r *reader) metadata(id string) (*Metadata, error) {
	if err := r.guard.validateSnapshotID(id); err != nil {
		return nil, err
	}
	path, err := r.guard.readPath(id, metadataFileName)
	if err != nil {
		return nil, err
	}
	meta := &Metadata{}
	found, err := readJSONFile(path, meta)
	if err != nil {
		return nil, readErr("read metadata", id, err)
	}
	if !found {
		return nil, nil
	}
	return meta, nil
}

// manifest reads one snapshot's manifest file. Absence returns (nil, nil).
func (r *reader) manifest(id string) (*Manifest, error) {
	if err := r.guard.validateSnapshotID(id); err != nil {
		return nil, err
	}
	path, err := r.guard.readPath(id, manifestFileName)
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	found, err := readJSONFile(path, m)
	if err != nil {
		return nil, readErr("read manifest", id, err)
	}
	if !found {
		return nil, nil
	}
	return m, nil
}

// districtRecord reads one persisted district record. Absence returns (nil, nil).
func (r *reader) districtRecord(id, districtID string) (*DistrictResult, error) {
	if err := r.guard.validateSnapshotID(id); err != nil {
		return nil, err
	}
	if err := r.guard.validateDistrictID(districtID); err != nil {
		return nil, err
	}
	path, err := r.guard.readPath(id, districtFileName(districtID))
	if err != nil {
		return nil, err
	}
	rec := &DistrictResult{}
	found, err := readJSONFile(path, rec)
	if err != nil {
		return nil, &ReadError{Op: "read district record", SnapshotID: id, DistrictID: districtID, Err: err}
	}
	if !found {
		return nil, nil
	}
	return rec, nil
}

// rankings reads the optional store-wide rankings artifact for a snapshot.
// Absence returns (nil, nil).
func (r *reader) rankings(id string) (json.RawMessage, error) {
	if err := r.guard.validateSnapshotID(id); err != nil {
		return nil, err
	}
	path, err := r.guard.readPath(id, rankingsFileName)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, readErr("read rankings", id, err)
	}
	if !json.Valid(data) {
		return nil, readErr("read rankings", id, errors.New("rankings file is not valid JSON"))
	}
	return json.RawMessage(data), nil
}

// hasRankings reports whether a rankings artifact exists for a snapshot.
func (r *reader) hasRankings(id string) (bool, error) {
	if err := r.guard.validateSnapshotID(id); err != nil {
		return false, err
	}
	path, err := r.guard.readPath(id, rankingsFileName)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, readErr("stat rankings", id, err)
	}
	return true, nil
}

// list returns snapshot metadata for every visible snapshot, filtered and
// bounded by opts. The unfiltered listing is cached with its own TTL; the
// scan is collapsed via singleflight like the other discovery reads.
func (r *reader) list(ctx context.Context, opts ListOptions) ([]Metadata, error) {
	all, err := r.fullListing(ctx)
	if err != nil {
		return nil, err
	}
	return filterListing(all, opts), nil
}

// listIDs returns visible snapshot ids, newest first. A directory without a
// committed metadata file is not visible.
func (r *reader) listIDs(ctx context.Context) ([]string, error) {
	all, err := r.fullListing(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for _, meta := range all {
		ids = append(ids, meta.SnapshotID)
	}
	return ids, nil
}

// fullListing returns the cached or freshly assembled full metadata listing,
// sorted newest-first by creation time.
func (r *reader) fullListing(ctx context.Context) ([]Metadata, error) {
	if cached, ok := r.listing.get(cacheKeyListing); ok {
		r.perf.hit()
		return cached.([]Metadata), nil
	}
	r.perf.miss()

	v, err, shared := r.flight.Do(cacheKeyListing, func() (interface{}, error) {
		gen := r.listing.generation()
		ids, err := r.scanDirs()
		if err != nil {
			return nil, err
		}
		listing := make([]Metadata, 0, len(ids))
		for _, id := range ids {
			meta, err := r.metadata(id)
			if err != nil {
				r.log.Warn().Err(err).Str("snapshot_id", id).Msg("Skipping snapshot with unreadable metadata in listing")
				continue
			}
			if meta == nil {
				// No commit marker yet; invisible to readers.
				continue
			}
			listing = append(listing, *meta)
		}
		sort.Slice(listing, func(i, j int) bool {
			return listing[i].CreatedAt.After(listing[j].CreatedAt)
		})
		r.listing.set(cacheKeyListing, listing, gen)
		return listing, nil
	})
	if shared {
		metrics.SingleflightShared.WithLabelValues(cacheKeyListing).Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.([]Metadata), nil
}

// filterListing applies ListOptions to an assembled listing.
func filterListing(all []Metadata, opts ListOptions) []Metadata {
	out := make([]Metadata, 0, len(all))
	for _, meta := range all {
		if opts.Status != "" && meta.Status != opts.Status {
			continue
		}
		if opts.SchemaVersion != "" && meta.SchemaVersion != opts.SchemaVersion {
			continue
		}
		if opts.CalculationVersion != "" && meta.CalculationVersion != opts.CalculationVersion {
			continue
		}
		if opts.RankingVersion != "" && meta.RankingVersion != opts.RankingVersion {
			continue
		}
		if !opts.CreatedAfter.IsZero() && !meta.CreatedAt.After(opts.CreatedAfter) {
			continue
		}
		if !opts.CreatedBefore.IsZero() && !meta.CreatedAt.Before(opts.CreatedBefore) {
			continue
		}
		if opts.MinDistricts > 0 && meta.DistrictCount < opts.MinDistricts {
			continue
		}
		out = append(out, meta)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out
}

// metadataBatch fetches metadata for several ids. When the listing cache is
// warm, ids absent from the cached listing short-circuit to not-found
// without touching the filesystem; the rest are fetched in parallel.
func (r *reader) metadataBatch(ctx context.Context, ids []string) (map[string]*Metadata, error) {
	for _, id := range ids {
		if err := r.guard.validateSnapshotID(id); err != nil {
			return nil, err
		}
	}

	out := make(map[string]*Metadata, len(ids))

	// A warm listing prunes ids with no snapshot before any filesystem
	// probe; the ids it does know are still read from disk so a batch is
	// never staler than a single metadata read.
	fetch := ids
	if cached, ok := r.listing.get(cacheKeyListing); ok {
		r.perf.hit()
		known := make(map[string]struct{})
		for _, meta := range cached.([]Metadata) {
			known[meta.SnapshotID] = struct{}{}
		}
		fetch = make([]string, 0, len(ids))
		for _, id := range ids {
			if _, ok := known[id]; ok {
				fetch = append(fetch, id)
			}
		}
	} else {
		r.perf.miss()
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	for _, id := range fetch {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			meta, err := r.metadata(id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if meta != nil {
				out[id] = meta
			}
		}(id)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
