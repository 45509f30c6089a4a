package progress

import (
	"errors"
	"maps"
	"slices"
	"sync"
)

var (
	ErrAlreadyInitialized = errors.New("progress: store already initialized")
	ErrEmptySeed          = errors.New("progress: empty seed name")
)

// Item — полученный предмет в порядке индекса сервера.
type Item struct {
	Item     int64 `json:"item"`
	Location int64 `json:"location"`
	Player   int   `json:"player"`
	Flags    int   `json:"flags"`
}

// Store хранит прогресс одного слота в рамках одного сида.
// Один писатель за раз, читатели друг друга не блокируют.
// Пустой seedName означает «ещё не инициализирован».
type Store struct {
	mu sync.RWMutex

	seedName  string
	team      int
	slot      int
	locations map[string]int64
	names     map[int64]string
	checked   map[int64]struct{}
	items     []Item
	goal      bool

	version uint64
}

func New() *Store {
	return &Store{
		locations: map[string]int64{},
		names:     map[int64]string{},
		checked:   map[int64]struct{}{},
	}
}

// Initialize задаёт сид, команду, слот и карту локаций. Вызывается ровно один
// раз; повторный вызов — ошибка вызывающего.
func (s *Store) Initialize(seed string, team, slot int, locations map[string]int64) error {
	if seed == "" {
		return ErrEmptySeed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seedName != "" {
		return ErrAlreadyInitialized
	}
	s.seedName = seed
	s.team = team
	s.slot = slot
	s.locations = maps.Clone(locations)
	if s.locations == nil {
		s.locations = map[string]int64{}
	}
	s.names = invert(s.locations)
	s.version++
	return nil
}

func (s *Store) SeedName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seedName
}

func (s *Store) Team() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.team
}

func (s *Store) Slot() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slot
}

// MarkLocationChecked идемпотентна: повторная отметка — no-op.
// Возвращает число действительно новых локаций.
func (s *Store) MarkLocationChecked(ids ...int64) int {
	if len(ids) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, id := range ids {
		if _, ok := s.checked[id]; ok {
			continue
		}
		s.checked[id] = struct{}{}
		added++
	}
	if added > 0 {
		s.version++
	}
	return added
}

func (s *Store) IsChecked(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.checked[id]
	return ok
}

// Checked возвращает отмеченные id по возрастанию.
func (s *Store) Checked() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.checked)
}

// Missing возвращает id из карты локаций, которые ещё не отмечены.
func (s *Store) Missing() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.missingLocked()
}

func (s *Store) missingLocked() []int64 {
	out := make([]int64, 0, len(s.locations))
	for _, id := range s.locations {
		if _, ok := s.checked[id]; !ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (s *Store) LocationName(id int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[id]
	return name, ok
}

// ReceiveItems применяет пакет предметов с индексом index:
//   - index == 0 — полная пересинхронизация, список заменяется;
//   - index == len(items) — продолжение, добавляем в конец;
//   - index меньше — повтор уже известного хвоста, добавляем только новое;
//   - index больше — дыра, ничего не меняем и возвращаем gap=true
//     (вызывающий должен запросить Sync).
func (s *Store) ReceiveItems(index int, items []Item) (added int, gap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case index == 0:
		s.items = slices.Clone(items)
		s.version++
		return len(items), false
	case index > len(s.items):
		return 0, true
	}
	skip := len(s.items) - index
	if skip >= len(items) {
		return 0, false
	}
	s.items = append(s.items, items[skip:]...)
	s.version++
	return len(items) - skip, false
}

func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Items — копия полученных предметов.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// SetGoalReported помечает, что цель уже сообщена серверу.
// Возвращает true, если флаг изменился.
func (s *Store) SetGoalReported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.goal {
		return false
	}
	s.goal = true
	s.version++
	return true
}

func (s *Store) GoalReported() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.goal
}

// Version растёт на каждой содержательной мутации.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func invert(m map[string]int64) map[int64]string {
	out := make(map[int64]string, len(m))
	for name, id := range m {
		out[id] = name
	}
	return out
}

func sortedKeys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
