// Package schedcache serves the merged schedule from memory, rebuilding
// it from the on-disk fingerprint only when the fingerprint has moved,
// and coordinating that rebuild across processes with a cross-process
// advisory lock (C8).
package schedcache

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/roomcal/roomcal/internal/artifact"
	"github.com/roomcal/roomcal/internal/hashutil"
	"github.com/roomcal/roomcal/internal/model"
)

// SourceLister supplies the source catalog a rebuild merges over.
type SourceLister interface {
	ListSources(ctx context.Context) ([]model.CalendarSource, error)
}

// Merger rebuilds the merged schedule from the current artifact set —
// the same C7 merge the orchestrator runs as its own P3 phase, invoked
// here when a reader observes artifacts newer than the last merge.
type Merger interface {
	Merge(sources []model.CalendarSource) (model.Fingerprint, error)
}

// Cache holds the most recently loaded merged schedule and the
// fingerprint it was built from, refreshing only when the artifact
// directory's fingerprint has advanced.
type Cache struct {
	Artifacts *artifact.Dir
	Sources   SourceLister
	Merger    Merger
	LockWait  time.Duration

	mu       sync.RWMutex
	sched    model.MergedSchedule
	cm       model.CalendarMap
	fp       model.Fingerprint
	loadedAt time.Time
}

// New builds a Cache rooted at the given artifact directory. sources
// and merger may be nil for read-only deployments that never expect to
// rebuild (e.g. a test harness pre-seeding schedule_by_room.json); in
// that case a stale or missing on-disk schedule is served/returned
// as-is rather than triggering a rebuild.
func New(dir *artifact.Dir, sources SourceLister, merger Merger) *Cache {
	return &Cache{Artifacts: dir, Sources: sources, Merger: merger, LockWait: 5 * time.Second}
}

// EnsureSchedule implements the cache's read/rebuild algorithm:
//  1. compute the current on-disk fingerprint (cheap, stat-only);
//  2. if it matches the in-memory fingerprint, return the cached copy;
//  3. otherwise take the cross-process lock (another process may be
//     mid-rebuild, or may have just finished one);
//  4. having the lock, recompute the fingerprint and compare again —
//     the fingerprint may have changed again while we were waiting for
//     the lock, or another process may have already refreshed it, in
//     which case there is nothing to reload;
//  5. read the on-disk schedule; if it's missing or was built from a
//     fingerprint older than the artifacts currently on disk, invoke
//     the merger (C7) to rebuild it before loading.
func (c *Cache) EnsureSchedule(ctx context.Context) (model.MergedSchedule, model.CalendarMap, error) {
	fp, err := hashutil.Fingerprint(c.Artifacts.Root())
	if err != nil {
		return model.MergedSchedule{}, nil, err
	}

	c.mu.RLock()
	if c.loadedAt.IsZero() == false && fp.Equal(c.fp) {
		sched, cm := c.sched, c.cm
		c.mu.RUnlock()
		return sched, cm, nil
	}
	c.mu.RUnlock()

	fl := flock.New(c.Artifacts.LockPath())
	lockCtx, cancel := context.WithTimeout(ctx, c.LockWait)
	defer cancel()
	locked, err := fl.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return model.MergedSchedule{}, nil, err
	}
	if locked {
		defer fl.Unlock()
	}

	fp2, err := hashutil.Fingerprint(c.Artifacts.Root())
	if err != nil {
		return model.MergedSchedule{}, nil, err
	}

	c.mu.RLock()
	upToDate := c.loadedAt.IsZero() == false && fp2.Equal(c.fp)
	c.mu.RUnlock()
	if upToDate {
		c.mu.RLock()
		sched, cm := c.sched, c.cm
		c.mu.RUnlock()
		return sched, cm, nil
	}

	sched, cm, diskFP, err := c.Artifacts.ReadSchedule()
	stale := false
	switch {
	case err != nil && os.IsNotExist(err):
		stale = true
	case err != nil:
		return model.MergedSchedule{}, nil, err
	case !fp2.Equal(diskFP):
		stale = true
	}

	if stale && c.Merger != nil && c.Sources != nil {
		sources, lerr := c.Sources.ListSources(ctx)
		if lerr != nil {
			return model.MergedSchedule{}, nil, lerr
		}
		if _, merr := c.Merger.Merge(sources); merr != nil {
			return model.MergedSchedule{}, nil, merr
		}
		sched, cm, diskFP, err = c.Artifacts.ReadSchedule()
		if err != nil {
			return model.MergedSchedule{}, nil, err
		}
	} else if err != nil {
		return model.MergedSchedule{}, nil, err
	}

	c.mu.Lock()
	c.sched, c.cm, c.fp, c.loadedAt = sched, cm, fp2, time.Now()
	c.mu.Unlock()

	return sched, cm, nil
}

// Invalidate clears the in-memory copy so the next EnsureSchedule call
// always re-reads from disk, regardless of fingerprint.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}
