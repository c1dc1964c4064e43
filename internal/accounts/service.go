package accounts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/analytics"
	"github.com/Carnacky79/energy-optimizer-v2/internal/config"
	"github.com/Carnacky79/energy-optimizer-v2/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = storage.ErrEmailTaken
	ErrInvalidToken       = errors.New("invalid token")
	ErrAccountNotFound    = errors.New("account not found")
)

// GuestMigrator переносит гостевые отчёты в аккаунт (реализует reports.Service)
type GuestMigrator interface {
	MigrateGuest(ctx context.Context, token string, accountID uuid.UUID) (int, error)
}

// EventEmitter accepts analytics events without blocking.
type EventEmitter interface {
	Emit(analytics.Event)
}

// Service: сервис аккаунтов: регистрация, вход, выдача JWT
type Service struct {
	config   *config.Config
	store    storage.AccountsStorage
	migrator GuestMigrator
	events   EventEmitter
	hashCost int
	now      func() time.Time
}

func NewService(cfg *config.Config, store storage.AccountsStorage, migrator GuestMigrator, events EventEmitter) *Service {
	return &Service{
		config:   cfg,
		store:    store,
		migrator: migrator,
		events:   events,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

func (s *Service) tokenTTL() time.Duration {
	return time.Duration(s.config.JWTTTLMinutes) * time.Minute
}

// Register создаёт аккаунт, переносит гостевые отчёты и выдаёт токен
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidArgument)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidArgument, minPasswordLength)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &storage.Account{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Plan:         storage.PlanFree,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	log.Printf("INFO accounts: registered id=%s", account.ID)

	if ref := strings.TrimSpace(req.Ref); ref != "" && s.events != nil {
		accID := account.ID
		s.events.Emit(analytics.Event{
			Type:      analytics.EventConversion,
			PublicID:  ref,
			AccountID: &accID,
		})
	}

	return s.issue(ctx, account.ID, req.GuestToken)
}

// Login проверяет пароль и выдаёт токен; guest_token переносится так же, как при регистрации
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidArgument)
	}

	account, err := s.store.GetAccountByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, account.ID, req.GuestToken)
}

// issue переносит гостевые данные и собирает ответ со свежей статистикой
func (s *Service) issue(ctx context.Context, accountID uuid.UUID, guestToken string) (*AuthResponse, error) {
	migrated := 0
	if token := strings.TrimSpace(guestToken); token != "" && s.migrator != nil {
		n, err := s.migrator.MigrateGuest(ctx, token, accountID)
		if err != nil {
			// гостевые слоты не очищены, повторный вход с тем же токеном перенесёт их
			log.Printf("WARN accounts: guest migration failed account=%s err=%v", accountID, err)
		} else {
			migrated = n
		}
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("reload account: %w", err)
	}

	accessToken, err := s.generateJWT(accountID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}

	return &AuthResponse{
		AccessToken:     accessToken,
		TokenType:       "Bearer",
		ExpiresIn:       int64(s.tokenTTL().Seconds()),
		Account:         toDTO(account),
		MigratedReports: migrated,
	}, nil
}

// Me возвращает аккаунт с агрегатами
func (s *Service) Me(ctx context.Context, accountID string) (*AccountDTO, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	account, err := s.store.GetAccount(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	dto := toDTO(account)
	return &dto, nil
}

func toDTO(a *storage.Account) AccountDTO {
	return AccountDTO{
		ID:    a.ID,
		Email: a.Email,
		Name:  a.Name,
		Plan:  a.Plan,
		Stats: StatsDTO{
			TotalReports: a.Stats.TotalReports,
			TotalSavings: a.Stats.TotalSavings.InexactFloat64(),
			CO2Saved:     a.Stats.CO2Saved.InexactFloat64(),
		},
		CreatedAt: a.CreatedAt,
	}
}

// generateJWT: генерация JWT токена
func (s *Service) generateJWT(accountID string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": accountID,
		"iss": s.config.JWTIssuer,
		"exp": now.Add(s.tokenTTL()).Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// VerifyJWT: проверка JWT токена, возвращает id аккаунта
func (s *Service) VerifyJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithIssuer(s.config.JWTIssuer))

	if err != nil {
		return "", ErrInvalidToken
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		sub, ok := claims["sub"].(string)
		if !ok {
			return "", ErrInvalidToken
		}
		if _, err := uuid.Parse(sub); err != nil {
			return "", ErrInvalidToken
		}
		return sub, nil
	}

	return "", ErrInvalidToken
}
