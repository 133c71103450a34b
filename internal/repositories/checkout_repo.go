package repositories

import (
	"context"

	"github.com/cardswap/cardswap/internal/database"
	"github.com/cardswap/cardswap/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckoutRepository records counter-offers and simulated purchases.
type CheckoutRepository struct {
	pool *pgxpool.Pool
}

func NewCheckoutRepository(db *database.DB) *CheckoutRepository {
	return &CheckoutRepository{pool: db.Pool}
}

func (r *CheckoutRepository) SaveNegotiation(ctx context.Context, n *models.Negotiation) error {
	query := `
		INSERT INTO negotiations (id, offer_id, buyer_id, listing_price, offered_price, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		n.ID, n.OfferID, n.BuyerID, n.ListingPrice, n.OfferedPrice, n.Message, n.CreatedAt,
	)
	return database.MapPostgresError(err)
}

func (r *CheckoutRepository) SavePurchase(ctx context.Context, p *models.Purchase) error {
	query := `
		INSERT INTO purchases (id, offer_id, buyer_id, amount, payment_method, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID, p.OfferID, p.BuyerID, p.Amount, p.PaymentMethod, p.Reference, p.CreatedAt,
	)
	return database.MapPostgresError(err)
}
