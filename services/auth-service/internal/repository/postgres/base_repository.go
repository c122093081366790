package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"SiteAuthPlatform/services/auth-service/internal/repository"
)

// querier общий набор методов pgx.Tx и pgxpool.Pool
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BaseRepository базовая структура для всех репозиториев PostgreSQL
type BaseRepository struct {
	q querier
}

// NewBaseRepository создает новый экземпляр базового репозитория
func NewBaseRepository(q querier) *BaseRepository {
	return &BaseRepository{q: q}
}

// notFound переводит pgx.ErrNoRows в repository.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

// validID сообщает, что id можно передать в колонку UUID.
// Строка другого вида считается отсутствующей записью.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
