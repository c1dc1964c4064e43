package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const reportColumns = `id, account_id, title, payload, score, monthly_savings, annual_savings, co2_savings, is_public, public_id, created_at, updated_at`

// Порядок сортировки берётся только из белого списка
var sortColumns = map[string]string{
	storage.SortCreatedAt:      "created_at",
	storage.SortUpdatedAt:      "updated_at",
	storage.SortTitle:          "lower(title)",
	storage.SortAnnualSavings:  "annual_savings",
	storage.SortMonthlySavings: "monthly_savings",
	storage.SortCO2Savings:     "co2_savings",
	storage.SortScore:          "score",
}

func scanReport(row pgx.Row) (*storage.ReportRow, error) {
	var r storage.ReportRow
	err := row.Scan(
		&r.ID,
		&r.AccountID,
		&r.Title,
		&r.Payload,
		&r.Score,
		&r.MonthlySavings,
		&r.AnnualSavings,
		&r.CO2Savings,
		&r.IsPublic,
		&r.PublicID,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func insertReport(ctx context.Context, tx pgx.Tx, report *storage.ReportRow, onConflictSkip bool) (bool, error) {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	if report.UpdatedAt.IsZero() {
		report.UpdatedAt = report.CreatedAt
	}

	query := `
		INSERT INTO reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if onConflictSkip {
		query += ` ON CONFLICT (id) DO NOTHING`
	}

	tag, err := tx.Exec(ctx, query,
		report.ID,
		report.AccountID,
		report.Title,
		report.Payload,
		report.Score,
		report.MonthlySavings,
		report.AnnualSavings,
		report.CO2Savings,
		report.IsPublic,
		report.PublicID,
		report.CreatedAt,
		report.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert report: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreateReport вставляет отчёт и увеличивает статистику в одной транзакции
func (p *PostgresStorage) CreateReport(ctx context.Context, report *storage.ReportRow) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockAccount(ctx, tx, report.AccountID); err != nil {
			return err
		}
		if _, err := insertReport(ctx, tx, report, false); err != nil {
			return err
		}
		return incrementStats(ctx, tx, report.AccountID, report.Contribution())
	})
}

// GetReport возвращает отчёт по ID и владельцу
func (p *PostgresStorage) GetReport(ctx context.Context, accountID, id uuid.UUID) (*storage.ReportRow, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1 AND account_id = $2`
	return scanReport(p.pool.QueryRow(ctx, query, id, accountID))
}

// ListReports возвращает страницу отчётов и их общее число
func (p *PostgresStorage) ListReports(ctx context.Context, accountID uuid.UUID, q storage.ListQuery) ([]storage.ReportRow, int, error) {
	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = sortColumns[storage.SortCreatedAt]
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = total
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM reports
		WHERE account_id = $1
		ORDER BY %s %s, id %s
		LIMIT $2 OFFSET $3
	`, reportColumns, column, dir, dir)

	rows, err := p.pool.Query(ctx, query, accountID, limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := []storage.ReportRow{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *r)
	}

	return reports, total, rows.Err()
}

func (p *PostgresStorage) CountReports(ctx context.Context, accountID uuid.UUID) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports WHERE account_id = $1`, accountID).Scan(&n)
	return n, err
}

// UpdateReport обновляет отчёт; статистика сдвигается на разницу старого и нового вклада
func (p *PostgresStorage) UpdateReport(ctx context.Context, report *storage.ReportRow) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockAccount(ctx, tx, report.AccountID); err != nil {
			return err
		}

		old, err := scanReport(tx.QueryRow(ctx,
			`SELECT `+reportColumns+` FROM reports WHERE id = $1 AND account_id = $2 FOR UPDATE`,
			report.ID, report.AccountID))
		if err != nil {
			return err
		}

		if report.UpdatedAt.IsZero() {
			report.UpdatedAt = time.Now().UTC()
		}

		query := `
			UPDATE reports
			SET title = $3, payload = $4, score = $5, monthly_savings = $6, annual_savings = $7,
			    co2_savings = $8, is_public = $9, public_id = COALESCE(public_id, $10), updated_at = $11
			WHERE id = $1 AND account_id = $2
			RETURNING public_id, created_at
		`
		err = tx.QueryRow(ctx, query,
			report.ID,
			report.AccountID,
			report.Title,
			report.Payload,
			report.Score,
			report.MonthlySavings,
			report.AnnualSavings,
			report.CO2Savings,
			report.IsPublic,
			report.PublicID,
			report.UpdatedAt,
		).Scan(&report.PublicID, &report.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to update report: %w", err)
		}

		if err := decrementStats(ctx, tx, report.AccountID, old.Contribution()); err != nil {
			return err
		}
		return incrementStats(ctx, tx, report.AccountID, report.Contribution())
	})
}

// DeleteReport удаляет отчёт и уменьшает статистику
func (p *PostgresStorage) DeleteReport(ctx context.Context, accountID, id uuid.UUID) (*storage.ReportRow, error) {
	var deleted *storage.ReportRow
	err := p.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockAccount(ctx, tx, accountID); err != nil {
			return err
		}

		r, err := scanReport(tx.QueryRow(ctx,
			`DELETE FROM reports WHERE id = $1 AND account_id = $2 RETURNING `+reportColumns,
			id, accountID))
		if err != nil {
			return err
		}
		deleted = r

		return decrementStats(ctx, tx, accountID, r.Contribution())
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// SetPublicID назначает public_id только при первом вызове
func (p *PostgresStorage) SetPublicID(ctx context.Context, accountID, id uuid.UUID, candidate string) (string, error) {
	query := `
		UPDATE reports
		SET public_id = COALESCE(public_id, $3), is_public = TRUE, updated_at = NOW()
		WHERE id = $1 AND account_id = $2
		RETURNING public_id
	`

	var publicID string
	err := p.pool.QueryRow(ctx, query, id, accountID, candidate).Scan(&publicID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to share report: %w", err)
	}
	return publicID, nil
}

func (p *PostgresStorage) GetReportByPublicID(ctx context.Context, publicID string) (*storage.ReportRow, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE public_id = $1 AND is_public`
	return scanReport(p.pool.QueryRow(ctx, query, publicID))
}

// ImportGuestReports переносит гостевые отчёты; guest_migrations гарантирует однократность
func (p *PostgresStorage) ImportGuestReports(ctx context.Context, accountID uuid.UUID, guestToken string, rows []storage.ReportRow) (int, error) {
	imported := 0
	err := p.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockAccount(ctx, tx, accountID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO guest_migrations (guest_token, account_id, migrated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (guest_token) DO NOTHING
		`, guestToken, accountID)
		if err != nil {
			return fmt.Errorf("failed to record guest migration: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// токен уже использован
			return nil
		}

		total := storage.Stats{TotalSavings: decimal.Zero, CO2Saved: decimal.Zero}
		for i := range rows {
			row := rows[i]
			row.AccountID = accountID
			inserted, err := insertReport(ctx, tx, &row, true)
			if err != nil {
				return err
			}
			if !inserted {
				continue
			}
			c := row.Contribution()
			total.TotalReports += c.TotalReports
			total.TotalSavings = total.TotalSavings.Add(c.TotalSavings)
			total.CO2Saved = total.CO2Saved.Add(c.CO2Saved)
			imported++
		}

		if _, err := tx.Exec(ctx, `UPDATE guest_migrations SET imported = $2 WHERE guest_token = $1`, guestToken, imported); err != nil {
			return err
		}
		return incrementStats(ctx, tx, accountID, total)
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

func (p *PostgresStorage) MonthlyTrend(ctx context.Context, accountID uuid.UUID, since time.Time) ([]storage.MonthlyBucket, error) {
	query := `
		SELECT to_char(date_trunc('month', created_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
		       COUNT(*),
		       COALESCE(SUM(annual_savings::numeric), 0)::text
		FROM reports
		WHERE account_id = $1 AND created_at >= $2
		GROUP BY month
		ORDER BY month ASC
	`

	rows, err := p.pool.Query(ctx, query, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly trend: %w", err)
	}
	defer rows.Close()

	buckets := []storage.MonthlyBucket{}
	for rows.Next() {
		var (
			b       storage.MonthlyBucket
			savings string
		)
		if err := rows.Scan(&b.Month, &b.Reports, &savings); err != nil {
			return nil, err
		}
		if b.AnnualSavings, err = decimal.NewFromString(savings); err != nil {
			return nil, fmt.Errorf("parse monthly savings: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
