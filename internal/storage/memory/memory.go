package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStorage: in-memory реализация storage.Storage.
// Один мьютекс на всё: отчёт и статистика меняются вместе.
type MemoryStorage struct {
	mu              sync.RWMutex
	accounts        map[uuid.UUID]*storage.Account
	emails          map[string]uuid.UUID
	reports         map[uuid.UUID]*storage.ReportRow
	publicIDs       map[string]uuid.UUID
	guestMigrations map[string]uuid.UUID
	events          []storage.AnalyticsEvent
}

// New создаёт пустой MemoryStorage
func New() *MemoryStorage {
	return &MemoryStorage{
		accounts:        make(map[uuid.UUID]*storage.Account),
		emails:          make(map[string]uuid.UUID),
		reports:         make(map[uuid.UUID]*storage.ReportRow),
		publicIDs:       make(map[string]uuid.UUID),
		guestMigrations: make(map[string]uuid.UUID),
	}
}

func (m *MemoryStorage) Close() error {
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (m *MemoryStorage) CreateAccount(ctx context.Context, account *storage.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := normalizeEmail(account.Email)
	if _, exists := m.emails[email]; exists {
		return storage.ErrEmailTaken
	}

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Plan == "" {
		account.Plan = storage.PlanFree
	}
	now := time.Now().UTC()
	account.Email = email
	account.Stats = storage.Stats{TotalSavings: decimal.Zero, CO2Saved: decimal.Zero}
	account.CreatedAt = now
	account.UpdatedAt = now

	stored := *account
	m.accounts[account.ID] = &stored
	m.emails[email] = account.ID
	return nil
}

func (m *MemoryStorage) GetAccount(ctx context.Context, id uuid.UUID) (*storage.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *account
	return &out, nil
}

func (m *MemoryStorage) GetAccountByEmail(ctx context.Context, email string) (*storage.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[normalizeEmail(email)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *m.accounts[id]
	return &out, nil
}

// SetPlan меняет тариф аккаунта (используется тестами и админкой)
func (m *MemoryStorage) SetPlan(id uuid.UUID, plan string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return storage.ErrNotFound
	}
	account.Plan = plan
	return nil
}

// applyStats must be called with mu held.
func (m *MemoryStorage) applyStats(accountID uuid.UUID, delta storage.Stats, sign int) {
	account, ok := m.accounts[accountID]
	if !ok {
		return
	}
	st := &account.Stats
	if sign > 0 {
		st.TotalReports += delta.TotalReports
		st.TotalSavings = st.TotalSavings.Add(delta.TotalSavings)
		st.CO2Saved = st.CO2Saved.Add(delta.CO2Saved)
	} else {
		st.TotalReports = max(st.TotalReports-delta.TotalReports, 0)
		st.TotalSavings = decimal.Max(st.TotalSavings.Sub(delta.TotalSavings), decimal.Zero)
		st.CO2Saved = decimal.Max(st.CO2Saved.Sub(delta.CO2Saved), decimal.Zero)
	}
	account.UpdatedAt = time.Now().UTC()
}
