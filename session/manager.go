package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// entry поток плюс мьютекс, сериализующий работу с ним
type entry struct {
	stream   *Stream
	mu       sync.Mutex
	lastUsed time.Time
}

// Manager реестр потоков для HTTP API, где запросы одного потока могут прийти параллельно
type Manager struct {
	streams     map[string]*entry
	idleTimeout time.Duration
	mu          sync.RWMutex
}

// NewManager создаёт реестр; idleTimeout <= 0 отключает удаление простаивающих потоков
func NewManager(idleTimeout time.Duration) *Manager {
	return &Manager{
		streams:     make(map[string]*entry),
		idleTimeout: idleTimeout,
	}
}

// Add регистрирует поток
func (m *Manager) Add(s *Stream) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.streams[s.ID] = &entry{stream: s, lastUsed: time.Now()}
	log.Printf("[Stream] Registered %s (%d Hz)", s.ID, s.SampleRate())
}

// With выполняет fn с эксклюзивным доступом к потоку
func (m *Manager) With(id string, fn func(*Stream) error) error {
	m.mu.RLock()
	e, ok := m.streams[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsed = time.Now()
	return fn(e.stream)
}

// Remove удаляет поток
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[id]; !ok {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, id)
	}
	delete(m.streams, id)
	log.Printf("[Stream] Removed %s", id)
	return nil
}

// Len количество зарегистрированных потоков
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

// IDs возвращает ID потоков, отсортированные по времени создания
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*entry, 0, len(m.streams))
	for _, e := range m.streams {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].stream.CreatedAt.Before(entries[j].stream.CreatedAt)
	})

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.stream.ID
	}
	return ids
}

// Sweep удаляет потоки, не использовавшиеся дольше idleTimeout к моменту now.
// Потоки, занятые в With, пропускаются.
func (m *Manager) Sweep(now time.Time) []string {
	if m.idleTimeout <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for id, e := range m.streams {
		if !e.mu.TryLock() {
			continue
		}
		idle := now.Sub(e.lastUsed) > m.idleTimeout
		e.mu.Unlock()

		if idle {
			delete(m.streams, id)
			removed = append(removed, id)
		}
	}

	if len(removed) > 0 {
		log.Printf("[Stream] Swept %d idle streams", len(removed))
	}
	return removed
}

// Run периодически вызывает Sweep до отмены ctx
func (m *Manager) Run(ctx context.Context) {
	if m.idleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}
