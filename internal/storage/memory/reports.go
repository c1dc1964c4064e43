package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func cloneRow(r *storage.ReportRow) storage.ReportRow {
	out := *r
	out.Payload = append([]byte(nil), r.Payload...)
	if r.PublicID != nil {
		id := *r.PublicID
		out.PublicID = &id
	}
	return out
}

// CreateReport создаёт отчёт и увеличивает статистику аккаунта
func (m *MemoryStorage) CreateReport(ctx context.Context, report *storage.ReportRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[report.AccountID]; !ok {
		return storage.ErrNotFound
	}
	m.insertLocked(report)
	m.applyStats(report.AccountID, report.Contribution(), +1)
	return nil
}

func (m *MemoryStorage) insertLocked(report *storage.ReportRow) {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	now := time.Now().UTC()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	if report.UpdatedAt.IsZero() {
		report.UpdatedAt = report.CreatedAt
	}
	stored := cloneRow(report)
	m.reports[report.ID] = &stored
	if stored.PublicID != nil {
		m.publicIDs[*stored.PublicID] = stored.ID
	}
}

// GetReport возвращает отчёт владельца
func (m *MemoryStorage) GetReport(ctx context.Context, accountID, id uuid.UUID) (*storage.ReportRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[id]
	if !ok || r.AccountID != accountID {
		return nil, storage.ErrNotFound
	}
	out := cloneRow(r)
	return &out, nil
}

// ListReports возвращает страницу отчётов аккаунта
func (m *MemoryStorage) ListReports(ctx context.Context, accountID uuid.UUID, q storage.ListQuery) ([]storage.ReportRow, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []storage.ReportRow
	for _, r := range m.reports {
		if r.AccountID == accountID {
			filtered = append(filtered, cloneRow(r))
		}
	}

	storage.SortRows(filtered, q.SortBy, q.Desc)
	total := len(filtered)

	// Применяем пагинацию
	start := q.Offset
	if start > total {
		return []storage.ReportRow{}, total, nil
	}
	end := total
	if q.Limit > 0 && start+q.Limit < total {
		end = start + q.Limit
	}
	return filtered[start:end], total, nil
}

func (m *MemoryStorage) CountReports(ctx context.Context, accountID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, r := range m.reports {
		if r.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

// UpdateReport обновляет отчёт и сдвигает статистику на разницу вкладов
func (m *MemoryStorage) UpdateReport(ctx context.Context, report *storage.ReportRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.reports[report.ID]
	if !ok || old.AccountID != report.AccountID {
		return storage.ErrNotFound
	}

	m.applyStats(old.AccountID, old.Contribution(), -1)
	m.applyStats(old.AccountID, report.Contribution(), +1)

	if old.PublicID != nil {
		id := *old.PublicID
		report.PublicID = &id
	} else if report.PublicID != nil {
		m.publicIDs[*report.PublicID] = report.ID
	}
	report.CreatedAt = old.CreatedAt
	if report.UpdatedAt.IsZero() {
		report.UpdatedAt = time.Now().UTC()
	}

	stored := cloneRow(report)
	m.reports[report.ID] = &stored
	return nil
}

// DeleteReport удаляет отчёт и уменьшает статистику
func (m *MemoryStorage) DeleteReport(ctx context.Context, accountID, id uuid.UUID) (*storage.ReportRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[id]
	if !ok || r.AccountID != accountID {
		return nil, storage.ErrNotFound
	}

	delete(m.reports, id)
	if r.PublicID != nil {
		delete(m.publicIDs, *r.PublicID)
	}
	m.applyStats(accountID, r.Contribution(), -1)

	out := cloneRow(r)
	return &out, nil
}

func (m *MemoryStorage) SetPublicID(ctx context.Context, accountID, id uuid.UUID, candidate string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[id]
	if !ok || r.AccountID != accountID {
		return "", storage.ErrNotFound
	}
	if r.PublicID == nil {
		pid := candidate
		r.PublicID = &pid
		m.publicIDs[pid] = id
	}
	r.IsPublic = true
	r.UpdatedAt = time.Now().UTC()
	return *r.PublicID, nil
}

func (m *MemoryStorage) GetReportByPublicID(ctx context.Context, publicID string) (*storage.ReportRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.publicIDs[publicID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	r, ok := m.reports[id]
	if !ok || !r.IsPublic {
		return nil, storage.ErrNotFound
	}
	out := cloneRow(r)
	return &out, nil
}

// ImportGuestReports переносит гостевые отчёты один раз на токен
func (m *MemoryStorage) ImportGuestReports(ctx context.Context, accountID uuid.UUID, guestToken string, rows []storage.ReportRow) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[accountID]; !ok {
		return 0, storage.ErrNotFound
	}
	if _, done := m.guestMigrations[guestToken]; done {
		return 0, nil
	}

	imported := 0
	for i := range rows {
		row := rows[i]
		if _, exists := m.reports[row.ID]; exists {
			continue
		}
		row.AccountID = accountID
		m.insertLocked(&row)
		m.applyStats(accountID, row.Contribution(), +1)
		imported++
	}
	m.guestMigrations[guestToken] = accountID
	return imported, nil
}

func (m *MemoryStorage) MonthlyTrend(ctx context.Context, accountID uuid.UUID, since time.Time) ([]storage.MonthlyBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byMonth := make(map[string]*storage.MonthlyBucket)
	for _, r := range m.reports {
		if r.AccountID != accountID || r.CreatedAt.Before(since) {
			continue
		}
		key := r.CreatedAt.UTC().Format("2006-01")
		b, ok := byMonth[key]
		if !ok {
			b = &storage.MonthlyBucket{Month: key, AnnualSavings: decimal.Zero}
			byMonth[key] = b
		}
		b.Reports++
		b.AnnualSavings = b.AnnualSavings.Add(decimal.NewFromFloat(r.AnnualSavings))
	}

	out := make([]storage.MonthlyBucket, 0, len(byMonth))
	for _, b := range byMonth {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}
