package models

import "time"

// AllSentinel is the category/issuer filter value meaning "no constraint".
const AllSentinel = "All"

// Offer categories
const (
	CategoryTravel   = "Travel"
	CategoryDining   = "Dining"
	CategoryCashBack = "Cash Back"
	CategoryAirline  = "Airline"
	CategoryHotel    = "Hotel"
)

// Categories lists the selectable categories, "All" first.
var Categories = []string{AllSentinel, CategoryTravel, CategoryDining, CategoryCashBack, CategoryAirline, CategoryHotel}

// Issuers lists the selectable card issuers, "All" first.
var Issuers = []string{AllSentinel, "American Express", "Chase", "Capital One", "Bank of America"}

// Offer is a credit-card referral or invitation listed on the marketplace.
// Offers are immutable once created.
type Offer struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Issuer       string    `json:"issuer"`
	Price        float64   `json:"price"`
	Benefits     []string  `json:"benefits"`
	ImageURL     string    `json:"image"`
	Featured     bool      `json:"featured"`
	IsNew        bool      `json:"new"`
	Category     string    `json:"category"`
	SellerID     string    `json:"seller_id,omitempty"`
	PayoutMethod string    `json:"payout_method,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsCategory reports whether c is one of the known categories (excluding "All").
func IsCategory(c string) bool {
	for _, known := range Categories[1:] {
		if known == c {
			return true
		}
	}
	return false
}
