package listings

import (
	"context"
	"sync"

	"github.com/cardswap/cardswap/internal/models"
)

const imageBase = "https://images.unsplash.com/"

// SeedOffers returns the offers the marketplace starts with.
func SeedOffers() []models.Offer {
	return []models.Offer{
		{
			ID: "1", Title: "Platinum Card Referral", Issuer: "American Express", Price: 1950,
			Benefits: []string{"60,000 Points Bonus", "Lounge Access", "₹20,000 Travel Credit"},
			ImageURL: imageBase + "photo-1580508174046-170816f65662?auto=format&fit=crop&w=300&q=80",
			Featured: true, Category: models.CategoryTravel,
		},
		{
			ID: "2", Title: "Sapphire Reserve Invitation", Issuer: "Chase", Price: 1850,
			Benefits: []string{"50,000 Points Bonus", "Priority Pass", "₹30,000 Travel Credit"},
			ImageURL: imageBase + "photo-1566613769130-c232c300b4bb?auto=format&fit=crop&w=300&q=80",
			Featured: true, IsNew: true, Category: models.CategoryTravel,
		},
		{
			ID: "3", Title: "Venture X Invitation", Issuer: "Capital One", Price: 1750,
			Benefits: []string{"75,000 Miles Bonus", "Airport Lounges", "₹30,000 Travel Credit"},
			ImageURL: imageBase + "photo-1567761790966-29293bbe0f9f?auto=format&fit=crop&w=300&q=80",
			IsNew: true, Category: models.CategoryTravel,
		},
		{
			ID: "4", Title: "Gold Card Referral", Issuer: "American Express", Price: 1250,
			Benefits: []string{"40,000 Points Bonus", "4x on Dining", "₹12,000 Dining Credit"},
			ImageURL: imageBase + "photo-1568913941351-8cfbf180eec8?auto=format&fit=crop&w=300&q=80",
			Category: models.CategoryDining,
		},
		{
			ID: "5", Title: "Freedom Unlimited Referral", Issuer: "Chase", Price: 1150,
			Benefits: []string{"20,000 Points Bonus", "1.5% Cash Back", "0% APR for 15 months"},
			ImageURL: imageBase + "photo-1556742502-ec7c0e9f34b1?auto=format&fit=crop&w=300&q=80",
			Category: models.CategoryCashBack,
		},
		{
			ID: "6", Title: "Delta SkyMiles Gold Invitation", Issuer: "American Express", Price: 1790,
			Benefits: []string{"70,000 Miles Bonus", "Free Checked Bag", "Priority Boarding"},
			ImageURL: imageBase + "photo-1574302050929-040f740d3cdb?auto=format&fit=crop&w=300&q=80",
			Featured: true, Category: models.CategoryAirline,
		},
		{
			ID: "7", Title: "Cash Rewards Referral", Issuer: "Bank of America", Price: 1050,
			Benefits: []string{"₹20,000 Cash Bonus", "3% Category Choice", "0% APR for 15 months"},
			ImageURL: imageBase + "photo-1559762717-99c81ac85459?auto=format&fit=crop&w=300&q=80",
			IsNew: true, Category: models.CategoryCashBack,
		},
		{
			ID: "8", Title: "Marriott Bonvoy Brilliant Offer", Issuer: "American Express", Price: 1890,
			Benefits: []string{"95,000 Points Bonus", "₹30,000 Hotel Credit", "Free Night Award"},
			ImageURL: imageBase + "photo-1571956603139-91c2ee25a6d4?auto=format&fit=crop&w=300&q=80",
			Featured: true, Category: models.CategoryHotel,
		},
	}
}

// MemorySource is a Source that starts from the seed offers and keeps posted
// offers in process memory only.
type MemorySource struct {
	mu     sync.Mutex
	posted []models.Offer
}

// NewMemorySource creates an in-memory catalog source.
func NewMemorySource() *MemorySource {
	return &MemorySource{}
}

// Load returns previously posted offers (newest first) followed by the seed.
func (m *MemorySource) Load(ctx context.Context) ([]models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offers := make([]models.Offer, 0, len(m.posted)+8)
	for i := len(m.posted) - 1; i >= 0; i-- {
		offers = append(offers, m.posted[i])
	}
	return append(offers, SeedOffers()...), nil
}

// Save records a posted offer.
func (m *MemorySource) Save(ctx context.Context, offer *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.posted = append(m.posted, *offer)
	return nil
}
