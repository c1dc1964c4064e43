package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/storage"
	"github.com/google/uuid"
)

func (p *PostgresStorage) InsertEvent(ctx context.Context, event *storage.AnalyticsEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	metadata := event.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}

	query := `
		INSERT INTO analytics_events (id, event_type, public_id, report_id, account_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.pool.Exec(ctx, query,
		event.ID,
		event.Type,
		event.PublicID,
		event.ReportID,
		event.AccountID,
		metadata,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analytics event: %w", err)
	}
	return nil
}
