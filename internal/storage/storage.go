package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Тарифы аккаунта
const (
	PlanFree    = "free"
	PlanPremium = "premium"
)

// Stats: денормализованные агрегаты владельца.
// Меняются только вместе с записью отчёта, в одной транзакции.
type Stats struct {
	TotalReports int64
	TotalSavings decimal.Decimal
	CO2Saved     decimal.Decimal
}

// Account: зарегистрированный пользователь
type Account struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Plan         string
	Stats        Stats
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountsStorage: интерфейс для работы с аккаунтами
type AccountsStorage interface {
	// CreateAccount создаёт аккаунт (ErrEmailTaken при дубликате email)
	CreateAccount(ctx context.Context, account *Account) error

	// GetAccount возвращает аккаунт по ID
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)

	// GetAccountByEmail возвращает аккаунт по email (без учёта регистра)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
}

// ReportRow: строка reports: JSON payload + плоские числовые колонки для сортировки и статистики
type ReportRow struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	Title          string
	Payload        []byte // JSON {profile, rating, projection, recommendations}
	Score          int
	MonthlySavings float64
	AnnualSavings  float64
	CO2Savings     float64
	IsPublic       bool
	PublicID       *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Contribution returns the stats delta a report adds on insert.
func (r ReportRow) Contribution() Stats {
	return Stats{
		TotalReports: 1,
		TotalSavings: decimal.NewFromFloat(r.AnnualSavings),
		CO2Saved:     decimal.NewFromFloat(r.CO2Savings),
	}
}

// Колонки, по которым разрешена сортировка
const (
	SortCreatedAt      = "created_at"
	SortUpdatedAt      = "updated_at"
	SortTitle          = "title"
	SortAnnualSavings  = "annual_savings"
	SortMonthlySavings = "monthly_savings"
	SortCO2Savings     = "co2_savings"
	SortScore          = "score"
)

// ListQuery: параметры выборки отчётов
type ListQuery struct {
	SortBy string
	Desc   bool
	Limit  int
	Offset int
}

// MonthlyBucket: агрегат отчётов за месяц (YYYY-MM)
type MonthlyBucket struct {
	Month         string
	Reports       int
	AnnualSavings decimal.Decimal
}

// ReportsStorage: интерфейс для работы с отчётами аккаунтов.
// Все записи меняют статистику аккаунта атомарно вместе со строкой отчёта.
type ReportsStorage interface {
	// CreateReport вставляет отчёт и увеличивает статистику
	CreateReport(ctx context.Context, report *ReportRow) error

	// GetReport возвращает отчёт владельца (ErrNotFound, если чужой)
	GetReport(ctx context.Context, accountID, id uuid.UUID) (*ReportRow, error)

	// ListReports возвращает страницу отчётов и общее количество
	ListReports(ctx context.Context, accountID uuid.UUID, q ListQuery) ([]ReportRow, int, error)

	// CountReports возвращает число отчётов аккаунта
	CountReports(ctx context.Context, accountID uuid.UUID) (int, error)

	// UpdateReport обновляет title/payload/числа/is_public и сдвигает статистику на (new - old).
	// public_id ставится только если ещё не назначен.
	UpdateReport(ctx context.Context, report *ReportRow) error

	// DeleteReport удаляет отчёт и уменьшает статистику (не ниже нуля)
	DeleteReport(ctx context.Context, accountID, id uuid.UUID) (*ReportRow, error)

	// SetPublicID назначает public_id при первом вызове и возвращает действующий
	SetPublicID(ctx context.Context, accountID, id uuid.UUID, candidate string) (string, error)

	// GetReportByPublicID возвращает опубликованный отчёт
	GetReportByPublicID(ctx context.Context, publicID string) (*ReportRow, error)

	// ImportGuestReports переносит гостевые отчёты ровно один раз на guestToken.
	// Повторный вызов с тем же токеном возвращает 0 без изменений.
	ImportGuestReports(ctx context.Context, accountID uuid.UUID, guestToken string, rows []ReportRow) (int, error)

	// MonthlyTrend группирует отчёты по месяцам начиная с since
	MonthlyTrend(ctx context.Context, accountID uuid.UUID, since time.Time) ([]MonthlyBucket, error)
}

// AnalyticsEvent: событие шаринга/конверсии
type AnalyticsEvent struct {
	ID        uuid.UUID
	Type      string
	PublicID  string
	ReportID  *uuid.UUID
	AccountID *uuid.UUID
	Metadata  []byte // JSON
	CreatedAt time.Time
}

// AnalyticsStorage: запись событий аналитики
type AnalyticsStorage interface {
	InsertEvent(ctx context.Context, event *AnalyticsEvent) error
}

// Storage объединяет все хранилища
type Storage interface {
	AccountsStorage
	ReportsStorage
	AnalyticsStorage

	// Close закрывает соединение (для Postgres)
	Close() error
}
