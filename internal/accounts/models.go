package accounts

import (
	"time"

	"github.com/google/uuid"
)

// RegisterRequest: регистрация; guest_token переносит гостевые отчёты, ref: public id ссылки, по которой пришёл пользователь
type RegisterRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	GuestToken string `json:"guest_token,omitempty"`
	Ref        string `json:"ref,omitempty"`
}

// LoginRequest: вход по email/паролю
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	GuestToken string `json:"guest_token,omitempty"`
}

// StatsDTO: агрегаты аккаунта
type StatsDTO struct {
	TotalReports int64   `json:"total_reports"`
	TotalSavings float64 `json:"total_savings"`
	CO2Saved     float64 `json:"co2_saved"`
}

// AccountDTO: публичное представление аккаунта (без хэша пароля)
type AccountDTO struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	Stats     StatsDTO  `json:"stats"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthResponse: ответ на регистрацию и вход
type AuthResponse struct {
	AccessToken     string     `json:"access_token"`
	TokenType       string     `json:"token_type"`
	ExpiresIn       int64      `json:"expires_in"`
	Account         AccountDTO `json:"account"`
	MigratedReports int        `json:"migrated_reports"`
}

const minPasswordLength = 8
