// Package merge combines per-calendar extraction artifacts into the
// single merged schedule and calendar map the query layer reads (C7).
package merge

import (
	"sort"

	"github.com/roomcal/roomcal/internal/artifact"
	"github.com/roomcal/roomcal/internal/hashutil"
	"github.com/roomcal/roomcal/internal/model"
)

const unassignedRoom = "__unassigned__"

// Merger reads every per-calendar artifact, resolves it against the
// configured sources, and writes the merged schedule, calendar map,
// and fingerprint as three independent atomic renames, in that order
// (see SPEC_FULL.md §8: the fingerprint is the consistency boundary a
// cache reader checks).
type Merger struct {
	Artifacts *artifact.Dir
}

// Merge rebuilds the schedule from every known source and returns the
// fingerprint it was built from.
func (m *Merger) Merge(sources []model.CalendarSource) (model.Fingerprint, error) {
	fp, err := hashutil.Fingerprint(m.Artifacts.Root())
	if err != nil {
		return model.Fingerprint{}, err
	}

	cm := make(model.CalendarMap, len(sources))
	byRoom := make(map[string][]model.RawEvent)
	var flat []model.RawEvent

	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		hash := hashutil.SourceHash(src.Key())
		cm[hash] = model.CalendarMapEntry{
			PrimaryURL:  src.PrimaryURL,
			DisplayName: src.DisplayName,
			Color:       src.Color,
			Building:    src.Building,
			Room:        src.Room,
		}

		events, err := m.Artifacts.ReadEvents(hash)
		if err != nil {
			return model.Fingerprint{}, err
		}
		for _, ev := range events {
			room := ev.Room
			if room == "" {
				room = unassignedRoom
			}
			byRoom[room] = append(byRoom[room], ev)
			flat = append(flat, ev)
		}
	}

	for room := range byRoom {
		sortEvents(byRoom[room])
	}
	sortEvents(flat)

	sched := model.MergedSchedule{ByRoom: byRoom, Flat: flat}
	if err := m.Artifacts.WriteSchedule(sched, cm, fp); err != nil {
		return model.Fingerprint{}, err
	}
	return fp, nil
}

// sortEvents orders by (start, source hash, raw title) as a stable
// deterministic tie-break when two events share a start time.
func sortEvents(events []model.RawEvent) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.SourceHash != b.SourceHash {
			return a.SourceHash < b.SourceHash
		}
		return a.RawTitle < b.RawTitle
	})
}
