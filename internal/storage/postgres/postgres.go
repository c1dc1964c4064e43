package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Carnacky79/energy-optimizer-v2/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStorage: Postgres реализация storage.Storage
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// New создаёт PostgresStorage и проверяет соединение
func New(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool}, nil
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

const accountColumns = `id, email, name, password_hash, plan, total_reports, total_savings::text, co2_saved::text, created_at, updated_at`

func scanAccount(row pgx.Row) (*storage.Account, error) {
	var (
		acc          storage.Account
		savings, co2 string
	)
	err := row.Scan(
		&acc.ID,
		&acc.Email,
		&acc.Name,
		&acc.PasswordHash,
		&acc.Plan,
		&acc.Stats.TotalReports,
		&savings,
		&co2,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if acc.Stats.TotalSavings, err = decimal.NewFromString(savings); err != nil {
		return nil, fmt.Errorf("parse total_savings: %w", err)
	}
	if acc.Stats.CO2Saved, err = decimal.NewFromString(co2); err != nil {
		return nil, fmt.Errorf("parse co2_saved: %w", err)
	}
	return &acc, nil
}

func (p *PostgresStorage) CreateAccount(ctx context.Context, account *storage.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Plan == "" {
		account.Plan = storage.PlanFree
	}
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))

	query := `
		INSERT INTO accounts (id, email, name, password_hash, plan, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := p.pool.QueryRow(ctx, query,
		account.ID,
		account.Email,
		account.Name,
		account.PasswordHash,
		account.Plan,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return storage.ErrEmailTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	account.Stats = storage.Stats{TotalSavings: decimal.Zero, CO2Saved: decimal.Zero}
	return nil
}

func (p *PostgresStorage) GetAccount(ctx context.Context, id uuid.UUID) (*storage.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(p.pool.QueryRow(ctx, query, id))
}

func (p *PostgresStorage) GetAccountByEmail(ctx context.Context, email string) (*storage.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(p.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

// lockAccount сериализует записи отчётов одного аккаунта
func lockAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func incrementStats(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, delta storage.Stats) error {
	query := `
		UPDATE accounts
		SET total_reports = total_reports + $2,
		    total_savings = total_savings + $3::numeric,
		    co2_saved = co2_saved + $4::numeric,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.Exec(ctx, query, accountID, delta.TotalReports, delta.TotalSavings.String(), delta.CO2Saved.String())
	return err
}

// decrementStats уменьшает агрегаты, не опуская их ниже нуля
func decrementStats(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, delta storage.Stats) error {
	query := `
		UPDATE accounts
		SET total_reports = GREATEST(total_reports - $2, 0),
		    total_savings = GREATEST(total_savings - $3::numeric, 0),
		    co2_saved = GREATEST(co2_saved - $4::numeric, 0),
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.Exec(ctx, query, accountID, delta.TotalReports, delta.TotalSavings.String(), delta.CO2Saved.String())
	return err
}

// inTx выполняет fn в транзакции; любая ошибка откатывает всё целиком
func (p *PostgresStorage) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
