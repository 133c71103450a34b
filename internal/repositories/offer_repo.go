package repositories

import (
	"context"
	"fmt"

	"github.com/cardswap/cardswap/internal/database"
	"github.com/cardswap/cardswap/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// OfferRepository is the remote catalog. It satisfies listings.Source.
type OfferRepository struct {
	pool *pgxpool.Pool
}

func NewOfferRepository(db *database.DB) *OfferRepository {
	return &OfferRepository{pool: db.Pool}
}

const offerColumns = `id, title, issuer, price, benefits, image_url, featured, is_new, category, seller_id, payout_method, created_at`

func scanOfferRow(scanner rowScanner) (*models.Offer, error) {
	var o models.Offer
	var sellerID *string

	err := scanner.Scan(
		&o.ID, &o.Title, &o.Issuer, &o.Price,
		pq.Array(&o.Benefits),
		&o.ImageURL, &o.Featured, &o.IsNew, &o.Category,
		&sellerID, &o.PayoutMethod, &o.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if sellerID != nil {
		o.SellerID = *sellerID
	}
	if o.Benefits == nil {
		o.Benefits = []string{}
	}
	return &o, nil
}

func scanOfferRows(rows pgx.Rows) ([]models.Offer, error) {
	defer rows.Close()

	offers := make([]models.Offer, 0)
	for rows.Next() {
		o, err := scanOfferRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return offers, nil
}

// Load returns the catalog, newest first.
func (r *OfferRepository) Load(ctx context.Context) ([]models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers ORDER BY created_at DESC, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers: %w", err)
	}
	return scanOfferRows(rows)
}

// Save inserts a new offer. Offers are immutable, so an existing id is a
// models.ErrConflict.
func (r *OfferRepository) Save(ctx context.Context, o *models.Offer) error {
	query := `
		INSERT INTO offers (id, title, issuer, price, benefits, image_url, featured, is_new, category, seller_id, payout_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	var sellerID *string
	if o.SellerID != "" {
		sellerID = &o.SellerID
	}

	_, err := r.pool.Exec(ctx, query,
		o.ID, o.Title, o.Issuer, o.Price,
		pq.Array(o.Benefits),
		o.ImageURL, o.Featured, o.IsNew, o.Category,
		sellerID, o.PayoutMethod, o.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// SeedIfEmpty inserts offers when the table has none, in one transaction.
func (r *OfferRepository) SeedIfEmpty(ctx context.Context, db *database.DB, offers []models.Offer) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM offers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count offers: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, o := range offers {
			batch.Queue(`
				INSERT INTO offers (id, title, issuer, price, benefits, image_url, featured, is_new, category, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				o.ID, o.Title, o.Issuer, o.Price, pq.Array(o.Benefits),
				o.ImageURL, o.Featured, o.IsNew, o.Category, o.CreatedAt,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return len(offers), nil
}
