package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cardswap/cardswap/internal/database"
	"github.com/cardswap/cardswap/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository stores the profile records created alongside accounts.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(db *database.DB) *ProfileRepository {
	return &ProfileRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const profileColumns = `id, email, name, phone, country, city, created_at, updated_at`

func scanProfileRow(scanner rowScanner) (*models.ProfileRecord, error) {
	var p models.ProfileRecord
	err := scanner.Scan(
		&p.ID, &p.Email, &p.Name, &p.Phone, &p.Country, &p.City,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &p, nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*models.ProfileRecord, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return scanProfileRow(r.pool.QueryRow(ctx, query, id))
}

func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*models.ProfileRecord, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE LOWER(email) = LOWER($1)`
	return scanProfileRow(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

// Create inserts a profile keyed by the identity id. An existing record for
// the same id or email is a models.ErrConflict.
func (r *ProfileRepository) Create(ctx context.Context, p *models.ProfileRecord) (*models.ProfileRecord, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: profile id is required", models.ErrBadRequest)
	}

	now := time.Now()
	query := `
		INSERT INTO profiles (id, email, name, phone, country, city, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + profileColumns

	return scanProfileRow(r.pool.QueryRow(ctx, query,
		p.ID, p.Email, p.Name, p.Phone, p.Country, p.City, now, now,
	))
}

// Update replaces the editable profile fields.
func (r *ProfileRepository) Update(ctx context.Context, p *models.ProfileRecord) (*models.ProfileRecord, error) {
	query := `
		UPDATE profiles SET name = $1, phone = $2, country = $3, city = $4, updated_at = $5
		WHERE id = $6
		RETURNING ` + profileColumns

	return scanProfileRow(r.pool.QueryRow(ctx, query,
		p.Name, p.Phone, p.Country, p.City, time.Now(), p.ID,
	))
}
