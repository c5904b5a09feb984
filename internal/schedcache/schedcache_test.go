package schedcache

import (
	"context"
	"testing"
	"time"

	"github.com/roomcal/roomcal/internal/artifact"
	"github.com/roomcal/roomcal/internal/hashutil"
	"github.com/roomcal/roomcal/internal/model"
)

func TestEnsureScheduleLoadsFromDiskThenCaches(t *testing.T) {
	dir, err := artifact.New(t.TempDir())
	if err != nil {
		t.Fatalf("artifact.New: %v", err)
	}
	sched := model.MergedSchedule{ByRoom: map[string][]model.RawEvent{"204": {{RawTitle: "X"}}}}
	cm := model.CalendarMap{"https://a": {DisplayName: "A"}}
	if err := dir.WriteSchedule(sched, cm, model.Fingerprint{NonEmptyCount: 1}); err != nil {
		t.Fatalf("WriteSchedule: %v", err)
	}

	c := New(dir, nil, nil)
	got, gotCM, err := c.EnsureSchedule(context.Background())
	if err != nil {
		t.Fatalf("EnsureSchedule: %v", err)
	}
	if len(got.ByRoom["204"]) != 1 {
		t.Errorf("schedule mismatch: %+v", got)
	}
	if gotCM["https://a"].DisplayName != "A" {
		t.Errorf("calendar map mismatch: %+v", gotCM)
	}

	// Second call with unchanged fingerprint should serve from memory
	// without error even if the on-disk schedule were to vanish.
	got2, _, err := c.EnsureSchedule(context.Background())
	if err != nil {
		t.Fatalf("EnsureSchedule (cached): %v", err)
	}
	if len(got2.ByRoom["204"]) != 1 {
		t.Errorf("cached schedule mismatch: %+v", got2)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	dir, _ := artifact.New(t.TempDir())
	_ = dir.WriteSchedule(model.MergedSchedule{}, model.CalendarMap{}, model.Fingerprint{})

	c := New(dir, nil, nil)
	c.LockWait = time.Second
	if _, _, err := c.EnsureSchedule(context.Background()); err != nil {
		t.Fatalf("EnsureSchedule: %v", err)
	}
	c.Invalidate()
	if _, _, err := c.EnsureSchedule(context.Background()); err != nil {
		t.Fatalf("EnsureSchedule after invalidate: %v", err)
	}
}

type fakeLister struct{ sources []model.CalendarSource }

func (f fakeLister) ListSources(ctx context.Context) ([]model.CalendarSource, error) {
	return f.sources, nil
}

type fakeMerger struct {
	dir   *artifact.Dir
	calls int
}

func (f *fakeMerger) Merge(sources []model.CalendarSource) (model.Fingerprint, error) {
	f.calls++
	sched := model.MergedSchedule{ByRoom: map[string][]model.RawEvent{"204": {{RawTitle: "rebuilt"}}}}
	cm := model.CalendarMap{}
	fp := model.Fingerprint{NonEmptyCount: 99}
	if err := f.dir.WriteSchedule(sched, cm, fp); err != nil {
		return model.Fingerprint{}, err
	}
	return fp, nil
}

func TestEnsureScheduleInvokesMergerOnFingerprintMismatch(t *testing.T) {
	dir, err := artifact.New(t.TempDir())
	if err != nil {
		t.Fatalf("artifact.New: %v", err)
	}

	staleSched := model.MergedSchedule{ByRoom: map[string][]model.RawEvent{"204": {{RawTitle: "stale"}}}}
	if err := dir.WriteSchedule(staleSched, model.CalendarMap{}, model.Fingerprint{NonEmptyCount: 1}); err != nil {
		t.Fatalf("WriteSchedule: %v", err)
	}

	hash := hashutil.SourceHash("https://a")
	if err := dir.WriteEvents(hash, []model.RawEvent{{RawTitle: "new"}}); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}

	merger := &fakeMerger{dir: dir}
	c := New(dir, fakeLister{}, merger)
	got, _, err := c.EnsureSchedule(context.Background())
	if err != nil {
		t.Fatalf("EnsureSchedule: %v", err)
	}
	if merger.calls != 1 {
		t.Fatalf("expected merge invoked once on fingerprint mismatch, got %d calls", merger.calls)
	}
	if len(got.ByRoom["204"]) != 1 || got.ByRoom["204"][0].RawTitle != "rebuilt" {
		t.Errorf("expected rebuilt schedule to be served, got %+v", got)
	}
}
