package memory

import (
	"context"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/storage"
	"github.com/google/uuid"
)

func (m *MemoryStorage) InsertEvent(ctx context.Context, event *storage.AnalyticsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	m.events = append(m.events, *event)
	return nil
}

// Events возвращает копию записанных событий
func (m *MemoryStorage) Events() []storage.AnalyticsEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]storage.AnalyticsEvent, len(m.events))
	copy(out, m.events)
	return out
}
