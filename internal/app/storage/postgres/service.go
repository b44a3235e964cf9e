package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	pg "github.com/lib/pq"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/model"
	"brandotp/internal/app/storage"
)

// storage.ServiceRepository interface implementation
var _ storage.ServiceRepository = (*ServiceRepository)(nil)

type ServiceRepository struct {
	db *sql.DB
}

func (r *ServiceRepository) LoggerComponent() string {
	return "ServiceRepository"
}

func NewServiceRepository(db *sql.DB) (*ServiceRepository, error) {
	return &ServiceRepository{db: db}, nil
}

// Create implementation of interface storage.ServiceRepository
func (r *ServiceRepository) Create(ctx context.Context, m *model.Service) (*model.Service, error) {
	const SQL = `
		INSERT INTO services (id, name, price, application_id, country_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING created_at, updated_at
`
	m.ID = uuid.New()
	if m.Status == "" {
		m.Status = model.ServiceStatusActive
	}

	err := r.db.QueryRowContext(ctx, SQL, m.ID, m.Name, m.Price, m.ApplicationID, m.CountryID, m.Status, time.Now()).
		Scan(&m.CreatedAt, &m.UpdatedAt)
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

// Read implementation of interface storage.ServiceRepository
func (r *ServiceRepository) Read(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	const SQL = `
		SELECT id, name, price, application_id, country_id, status, created_at, updated_at
		FROM services
		WHERE id=$1
`
	m := &model.Service{}

	err := r.db.QueryRowContext(ctx, SQL, id).
		Scan(&m.ID, &m.Name, &m.Price, &m.ApplicationID, &m.CountryID, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	return m, nil
}

// Update implementation of interface storage.ServiceRepository
func (r *ServiceRepository) Update(ctx context.Context, m *model.Service) (*model.Service, error) {
	const SQL = `
		UPDATE services
		SET name=$1, price=$2, application_id=$3, country_id=$4, status=$5, updated_at=now()
		WHERE id=$6
		RETURNING updated_at
`
	err := r.db.QueryRowContext(ctx, SQL, m.Name, m.Price, m.ApplicationID, m.CountryID, m.Status, m.ID).
		Scan(&m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("update: %w", err)
	}

	return m, nil
}

// Delete implementation of interface storage.ServiceRepository
func (r *ServiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const SQL = `DELETE FROM services WHERE id=$1`

	res, err := r.db.ExecContext(ctx, SQL, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.ErrNotFound
	}

	return nil
}

// All implementation of interface storage.ServiceRepository
func (r *ServiceRepository) All(ctx context.Context, onlyActive bool) ([]*model.Service, error) {
	const SQL = `
		SELECT id, name, price, application_id, country_id, status, created_at, updated_at
		FROM services
		WHERE ($1 = false OR status = 'active')
		ORDER BY name
`
	rows, err := r.db.QueryContext(ctx, SQL, onlyActive)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	res := make([]*model.Service, 0)
	for rows.Next() {
		m := &model.Service{}
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.ApplicationID, &m.CountryID, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return res, nil
}
