// Package persist сохраняет и загружает снимки прогресса по ключу сида.
//
// Отсутствие файла — нормальное начальное состояние, а не ошибка. Ошибки
// чтения деградируют до «начинаем с нуля» (LoadOrDefault), ошибки записи
// логируются и повторяются (Saver) и никогда не роняют бота.
package persist

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/EgorLis/apbot/internal/progress"
)

var ErrLocked = errors.New("persist: state is locked by another process")

// Key — сид комнаты и имя слота. Один сид может обслуживать несколько
// ботов на разных слотах, поэтому слот входит в ключ.
type Key struct {
	Seed string
	Slot string
}

func (k Key) String() string { return k.Seed + "/" + k.Slot }

// Repository — долговременное хранилище снимков.
// Load возвращает (nil, nil), если снимка для ключа нет.
type Repository interface {
	Load(key Key) (*progress.Snapshot, error)
	Save(key Key, snap progress.Snapshot) error
}

// Locker — опциональная возможность репозитория захватить ключ на время работы процесса.
type Locker interface {
	Lock(key Key) (io.Closer, error)
}

// FileRepository хранит снимки в <dir>/<seed>/<slot>.<ext>.
type FileRepository struct {
	dir   string
	codec Codec
}

func NewFileRepository(dir string, codec Codec) *FileRepository {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &FileRepository{dir: dir, codec: codec}
}

func (r *FileRepository) Path(key Key) string {
	return filepath.Join(r.dir, safeName(key.Seed), safeName(key.Slot)+r.codec.Ext())
}

func (r *FileRepository) Load(key Key) (*progress.Snapshot, error) {
	b, err := os.ReadFile(r.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var snap progress.Snapshot
	if err := r.codec.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.Path(key), err)
	}
	if snap.Format > progress.SnapshotFormat {
		return nil, fmt.Errorf("unsupported snapshot format %d", snap.Format)
	}
	return &snap, nil
}

// Save пишет атомарно: временный файл рядом, fsync, rename.
func (r *FileRepository) Save(key Key, snap progress.Snapshot) error {
	path := r.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := r.codec.Marshal(snap)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Lock берёт эксклюзивную advisory-блокировку на <slot>.lock.
// Если ключ уже держит другой процесс — ErrLocked.
func (r *FileRepository) Lock(key Key) (io.Closer, error) {
	path := filepath.Join(r.dir, safeName(key.Seed), safeName(key.Slot)+".lock")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &fileLock{f: f}, nil
}

type fileLock struct {
	f    *os.File
	once sync.Once
	err  error
}

func (l *fileLock) Close() error {
	l.once.Do(func() {
		if err := unlockFile(l.f); err != nil {
			l.err = err
		}
		if err := l.f.Close(); err != nil && l.err == nil {
			l.err = err
		}
	})
	return l.err
}

// LoadOrDefault никогда не падает: отсутствие снимка, ошибка чтения или
// снимок чужого сида дают пустой Store (SeedName() == "").
func LoadOrDefault(repo Repository, key Key) *progress.Store {
	snap, err := repo.Load(key)
	switch {
	case err != nil:
		log.Printf("[persist] load %s: %v; starting fresh", key, err)
		return progress.New()
	case snap == nil:
		log.Printf("[persist] no saved state for %s", key)
		return progress.New()
	case snap.SeedName != key.Seed:
		log.Printf("[persist] saved state for %s belongs to seed %q; discarding it", key, snap.SeedName)
		return progress.New()
	}
	log.Printf("[persist] resumed %s: %d checked, %d items", key, len(snap.Checked), len(snap.Items))
	return progress.FromSnapshot(*snap)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func safeName(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "_" + s
	}
	return s
}
