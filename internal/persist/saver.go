package persist

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/EgorLis/apbot/internal/progress"
)

const (
	defaultSaveAttempts = 3
	defaultSaveBackoff  = 200 * time.Millisecond
)

// Saver сериализует записи обеих задач и отбрасывает снимки старше уже
// записанного: если две задачи сняли v5 и v6, а v6 успела раньше, v5 не
// перезатрёт её.
type Saver struct {
	repo     Repository
	key      Key
	attempts int
	backoff  time.Duration

	mu       sync.Mutex
	saved    uint64
	hasSaved bool
}

func NewSaver(repo Repository, key Key) *Saver {
	return &Saver{
		repo:     repo,
		key:      key,
		attempts: defaultSaveAttempts,
		backoff:  defaultSaveBackoff,
	}
}

// Persist снимает снимок (блокировка Store отпускается до I/O) и пишет его.
// Ошибка не фатальна — вызывающий её только логирует.
func (s *Saver) Persist(st *progress.Store) error {
	snap := st.Snapshot()
	if snap.SeedName == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasSaved && snap.Version <= s.saved {
		return nil
	}

	var err error
	wait := s.backoff
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err = s.repo.Save(s.key, snap); err == nil {
			s.saved = snap.Version
			s.hasSaved = true
			return nil
		}
		log.Printf("[persist] save %s (attempt %d/%d): %v", s.key, attempt, s.attempts, err)
		if attempt < s.attempts {
			time.Sleep(wait)
			wait *= 2
		}
	}
	return fmt.Errorf("save %s: %w", s.key, err)
}

// Saved — последняя записанная версия.
func (s *Saver) Saved() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved, s.hasSaved
}
