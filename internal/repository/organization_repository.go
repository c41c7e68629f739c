package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/recordport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type organizationRepository struct {
	pool *pgxpool.Pool
}

// NewOrganizationRepository creates a Postgres backed organization repository.
func NewOrganizationRepository(pool *pgxpool.Pool) OrganizationRepository {
	return &organizationRepository{pool: pool}
}

func (r *organizationRepository) Create(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO organizations (id, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		org.ID,
		org.Name,
		org.Description,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		return domain.Organization{}, fmt.Errorf("failed to create organization: %w", err)
	}
	return org, nil
}

func (r *organizationRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Organization, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, name, description, created_at, updated_at FROM organizations WHERE id = $1`,
		id,
	)
	return scanOrganization(row)
}

func (r *organizationRepository) GetByName(ctx context.Context, name string) (domain.Organization, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, name, description, created_at, updated_at FROM organizations WHERE name = $1`,
		name,
	)
	return scanOrganization(row)
}

func (r *organizationRepository) List(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, name, description, created_at, updated_at FROM organizations ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := []domain.Organization{}
	for rows.Next() {
		org, scanErr := scanOrganization(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		orgs = append(orgs, org)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", rowsErr)
	}
	return orgs, nil
}

func scanOrganization(row pgx.Row) (domain.Organization, error) {
	var (
		org       domain.Organization
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&org.ID, &org.Name, &org.Description, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Organization{}, ErrNotFound
		}
		return domain.Organization{}, fmt.Errorf("failed to scan organization: %w", err)
	}
	if createdAt.Valid {
		org.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		org.UpdatedAt = updatedAt.Time
	}
	return org, nil
}
