package progress

import (
	"maps"
	"slices"
	"time"
)

// SnapshotFormat — версия формата снимка на диске.
const SnapshotFormat = 1

// Snapshot — согласованная копия Store для сохранения.
type Snapshot struct {
	Format       int              `json:"format"`
	SeedName     string           `json:"seed_name"`
	Team         int              `json:"team"`
	Slot         int              `json:"slot"`
	Locations    map[string]int64 `json:"locations"`
	Checked      []int64          `json:"checked"`
	Items        []Item           `json:"items"`
	GoalReported bool             `json:"goal_reported"`
	Version      uint64           `json:"version"`
	SavedAt      time.Time        `json:"saved_at"`
}

// Snapshot снимает копию под read-lock; дальше с ней можно делать I/O
// без удержания блокировки.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Format:       SnapshotFormat,
		SeedName:     s.seedName,
		Team:         s.team,
		Slot:         s.slot,
		Locations:    maps.Clone(s.locations),
		Checked:      sortedKeys(s.checked),
		Items:        slices.Clone(s.items),
		GoalReported: s.goal,
		Version:      s.version,
		SavedAt:      time.Now().UTC(),
	}
}

// FromSnapshot восстанавливает Store из снимка.
func FromSnapshot(snap Snapshot) *Store {
	s := New()
	s.seedName = snap.SeedName
	s.team = snap.Team
	s.slot = snap.Slot
	if snap.Locations != nil {
		s.locations = maps.Clone(snap.Locations)
	}
	s.names = invert(s.locations)
	for _, id := range snap.Checked {
		s.checked[id] = struct{}{}
	}
	s.items = slices.Clone(snap.Items)
	s.goal = snap.GoalReported
	s.version = snap.Version
	return s
}
