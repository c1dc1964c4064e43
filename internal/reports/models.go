package reports

import (
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/scoring"
	"github.com/Carnacky79/energy-optimizer-v2/internal/userctx"
	"github.com/google/uuid"
)

// Report: каноническая структура отчёта, одна для гостей и аккаунтов
type Report struct {
	ID              uuid.UUID                 `json:"id"`
	Owner           userctx.Owner             `json:"owner"`
	Title           string                    `json:"title"`
	Profile         scoring.EnergyProfile     `json:"profile"`
	Rating          scoring.EfficiencyRating  `json:"rating"`
	Projection      scoring.SavingsProjection `json:"projection"`
	Recommendations []scoring.Recommendation  `json:"recommendations"`
	IsPublic        bool                      `json:"is_public"`
	PublicID        *string                   `json:"public_id,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
	ExpiresAt       *time.Time                `json:"expires_at,omitempty"`
}

// payload: то, что лежит в JSONB-колонке reports.payload
type payload struct {
	Profile         scoring.EnergyProfile     `json:"profile"`
	Rating          scoring.EfficiencyRating  `json:"rating"`
	Projection      scoring.SavingsProjection `json:"projection"`
	Recommendations []scoring.Recommendation  `json:"recommendations"`
}

// CreateReportRequest is the request to create a new report
type CreateReportRequest struct {
	Title   string                `json:"title"`
	Profile scoring.EnergyProfile `json:"profile"`
}

// ProfilePatch carries optional profile changes; nil fields keep the old value.
type ProfilePatch struct {
	ConsumptionKWh *float64              `json:"consumption_kwh"`
	Bill           *float64              `json:"bill"`
	AreaM2         *float64              `json:"area_m2"`
	HeatingType    *scoring.HeatingType  `json:"heating_type"`
	BuildingType   *scoring.BuildingType `json:"building_type"`
	Occupants      *int                  `json:"occupants"`
}

// UpdateReportRequest: изменяемые поля: title, профиль, is_public
type UpdateReportRequest struct {
	Title    *string       `json:"title"`
	Profile  *ProfilePatch `json:"profile"`
	IsPublic *bool         `json:"is_public"`
}

// ListParams: пагинация и сортировка списка
type ListParams struct {
	Page     int
	PageSize int
	SortBy   string
	Order    string // asc | desc
}

// Page is one page of reports
type Page struct {
	Reports  []ReportDTO `json:"reports"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Pages    int         `json:"pages"`
}

// ReportDTO is the response representation of a report
type ReportDTO struct {
	Report
	ROIDisplay string `json:"roi_display"`
}

// PublicReportDTO: отчёт по публичной ссылке, без владельца
type PublicReportDTO struct {
	PublicID        string                    `json:"public_id"`
	Title           string                    `json:"title"`
	Profile         scoring.EnergyProfile     `json:"profile"`
	Rating          scoring.EfficiencyRating  `json:"rating"`
	Projection      scoring.SavingsProjection `json:"projection"`
	Recommendations []scoring.Recommendation  `json:"recommendations"`
	ROIDisplay      string                    `json:"roi_display"`
	CreatedAt       time.Time                 `json:"created_at"`
}

// ShareResult is returned by ShareReport
type ShareResult struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// MonthlyTrend: отчёты и экономия за месяц
type MonthlyTrend struct {
	Month         string  `json:"month"`
	Reports       int     `json:"reports"`
	AnnualSavings float64 `json:"annual_savings"`
}

// StatsResponse: агрегаты владельца
type StatsResponse struct {
	TotalReports int64          `json:"total_reports"`
	TotalSavings float64        `json:"total_savings"`
	CO2Saved     float64        `json:"co2_saved"`
	MonthlyTrend []MonthlyTrend `json:"monthly_trend"`
}

// GuestStatus describes the remaining lifetime of a guest session.
type GuestStatus struct {
	Reports          int        `json:"reports"`
	MaxReports       int        `json:"max_reports"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RemainingHours   int        `json:"remaining_hours"`
	RemainingMinutes int        `json:"remaining_minutes"`
}

// Constants for validation
const (
	DefaultPageSize = 10
	MaxTitleLength  = 200
	OrderAsc        = "asc"
	OrderDesc       = "desc"
	trendMonths     = 6
)

func toDTO(r Report) ReportDTO {
	return ReportDTO{Report: r, ROIDisplay: r.Projection.ROIDisplay()}
}
