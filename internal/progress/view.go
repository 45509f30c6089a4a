package progress

import "maps"

// View — копия состояния только для чтения, которую получает политика решений.
type View struct {
	SeedName     string
	Locations    map[string]int64
	Checked      map[int64]bool
	Missing      []int64
	Items        int
	GoalReported bool
}

// Total — число локаций в карте.
func (v View) Total() int { return len(v.Locations) }

// CheckedInMap — сколько локаций из карты уже отмечено.
func (v View) CheckedInMap() int {
	return len(v.Locations) - len(v.Missing)
}

func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checked := make(map[int64]bool, len(s.checked))
	for id := range s.checked {
		checked[id] = true
	}
	return View{
		SeedName:     s.seedName,
		Locations:    maps.Clone(s.locations),
		Checked:      checked,
		Missing:      s.missingLocked(),
		Items:        len(s.items),
		GoalReported: s.goal,
	}
}
