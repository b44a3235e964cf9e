package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	pg "github.com/lib/pq"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/model"
	"brandotp/internal/app/storage"
)

// storage.UserRepository interface implementation
var _ storage.UserRepository = (*UserRepository)(nil)

type UserRepository struct {
	db *sql.DB
}

func (r *UserRepository) LoggerComponent() string {
	return "UserRepository"
}

func NewUserRepository(db *sql.DB) (*UserRepository, error) {
	return &UserRepository{db: db}, nil
}

// Create implementation of interface storage.UserRepository
func (r *UserRepository) Create(ctx context.Context, m *model.User) (*model.User, error) {
	const SQL = `
		INSERT INTO users (email, password, role)
		VALUES ($1, crypt($2, gen_salt('bf')), $3)
		RETURNING id, created_at
`
	if m.Role == "" {
		m.Role = model.RoleUser
	}

	err := r.db.QueryRowContext(ctx, SQL, m.Email, m.Password, m.Role).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if pgErr, ok := err.(*pg.Error); ok {
			if pgerrcode.IsIntegrityConstraintViolation(string(pgErr.Code)) {
				return nil, apperr.ErrConflict
			}
		}

		return nil, fmt.Errorf("insert: %w", err)
	}

	return m, nil
}

// Read implementation of interface storage.UserRepository
func (r *UserRepository) Read(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const SQL = `
		SELECT id, email, role, coalesce(balance, 0), created_at
		FROM users
		WHERE id=$1
`
	m := &model.User{}

	err := r.db.QueryRowContext(ctx, SQL, id).Scan(&m.ID, &m.Email, &m.Role, &m.Balance, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	return m, nil
}

// ReadByEmail implementation of interface storage.UserRepository
func (r *UserRepository) ReadByEmail(ctx context.Context, email string) (*model.User, error) {
	const SQL = `
		SELECT id, email, role, coalesce(balance, 0), created_at
		FROM users
		WHERE email=$1
`
	m := &model.User{}

	err := r.db.QueryRowContext(ctx, SQL, email).Scan(&m.ID, &m.Email, &m.Role, &m.Balance, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	return m, nil
}

func (r *UserRepository) ReadByEmailAndPassword(ctx context.Context, email string, password string) (*model.User, error) {
	const SQL = `
		SELECT id, email, role, coalesce(balance, 0), created_at
		FROM users
		WHERE email = $1
		AND password = crypt($2, password)
`
	m := &model.User{}

	err := r.db.QueryRowContext(ctx, SQL, email, password).Scan(&m.ID, &m.Email, &m.Role, &m.Balance, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	return m, nil
}
