// Package artifact implements the on-disk filesystem layout described
// in spec.md §6: per-calendar event files, the merged schedule, the
// calendar map, import progress, and the fingerprint recorded
// alongside the merged schedule. Every write is write-to-temp-then-
// rename within the same directory, so a reader never observes a
// partial file — grounded on the teacher's filestore.writeJSON.
package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/roomcal/roomcal/internal/hashutil"
	"github.com/roomcal/roomcal/internal/model"
)

// Dir wraps an artifact directory root and knows its file layout.
type Dir struct {
	root string
}

// New returns a Dir rooted at root, creating it if missing.
func New(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Dir{root: root}, nil
}

// Root returns the artifact directory's filesystem path.
func (d *Dir) Root() string { return d.root }

func (d *Dir) eventsPath(sourceHash string) string {
	return hashutil.ArtifactPath(d.root, sourceHash)
}

func (d *Dir) schedulePath() string  { return filepath.Join(d.root, "schedule_by_room.json") }
func (d *Dir) calendarMapPath() string { return filepath.Join(d.root, "calendar_map.json") }
func (d *Dir) progressPath() string  { return filepath.Join(d.root, "import_progress.json") }
func (d *Dir) completePath() string  { return filepath.Join(d.root, "import_complete.txt") }
func (d *Dir) fingerprintPath() string { return filepath.Join(d.root, "schedule.fp") }
func (d *Dir) lockPath() string      { return filepath.Join(d.root, "schedule.lock") }

// LockPath returns the sentinel path the schedule cache's
// cross-process advisory lock is taken on.
func (d *Dir) LockPath() string { return d.lockPath() }

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, b)
}

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON[T any](path string, out *T) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// WriteEvents atomically writes a per-calendar artifact. An empty
// slice is a legal, terminal success state ("we checked, no
// bookings"), distinct from the file being absent.
func (d *Dir) WriteEvents(sourceHash string, events []model.RawEvent) error {
	if events == nil {
		events = []model.RawEvent{}
	}
	return writeJSON(d.eventsPath(sourceHash), events)
}

// ReadEvents reads one per-calendar artifact. Returns (nil, nil) if
// the artifact doesn't exist yet (source never successfully
// extracted).
func (d *Dir) ReadEvents(sourceHash string) ([]model.RawEvent, error) {
	var events []model.RawEvent
	if err := readJSON(d.eventsPath(sourceHash), &events); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return events, nil
}

// ListSourceHashes returns the source hashes with an on-disk
// per-calendar artifact.
func (d *Dir) ListSourceHashes() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	var hashes []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) != len("events_")+8+len(".json") {
			continue
		}
		if name[:len("events_")] != "events_" {
			continue
		}
		hashes = append(hashes, name[len("events_"):len(name)-len(".json")])
	}
	return hashes, nil
}

// WriteSchedule atomically writes the merged schedule, the calendar
// map, and the fingerprint they were built from. The schedule is
// renamed into place first, then the map, then the fingerprint, each
// with its own atomic rename. Every single file is always complete,
// but a reader racing the writer can briefly see the new schedule
// with the previous map or fingerprint (see SPEC_FULL.md §8 Open
// Question).
func (d *Dir) WriteSchedule(sched model.MergedSchedule, cm model.CalendarMap, fp model.Fingerprint) error {
	if err := writeJSON(d.schedulePath(), sched); err != nil {
		return err
	}
	if err := writeJSON(d.calendarMapPath(), cm); err != nil {
		return err
	}
	return writeJSON(d.fingerprintPath(), fp)
}

// ReadSchedule reads the merged schedule, calendar map, and recorded
// fingerprint. Returns os.ErrNotExist (wrapped) if no merge has ever
// run.
func (d *Dir) ReadSchedule() (model.MergedSchedule, model.CalendarMap, model.Fingerprint, error) {
	var sched model.MergedSchedule
	var cm model.CalendarMap
	var fp model.Fingerprint
	if err := readJSON(d.schedulePath(), &sched); err != nil {
		return sched, cm, fp, err
	}
	if err := readJSON(d.calendarMapPath(), &cm); err != nil {
		return sched, cm, fp, err
	}
	if err := readJSON(d.fingerprintPath(), &fp); err != nil {
		return sched, cm, fp, err
	}
	return sched, cm, fp, nil
}

// WriteProgress atomically writes the import progress document.
func (d *Dir) WriteProgress(p model.ImportProgress) error {
	return writeJSON(d.progressPath(), p)
}

// ReadProgress reads the current import progress document.
func (d *Dir) ReadProgress() (model.ImportProgress, error) {
	var p model.ImportProgress
	err := readJSON(d.progressPath(), &p)
	return p, err
}

// MarkComplete writes the completion marker with the current
// timestamp, the final atomic step of a run.
func (d *Dir) MarkComplete() error {
	return writeAtomic(d.completePath(), []byte(time.Now().UTC().Format(time.RFC3339)))
}
