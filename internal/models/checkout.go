package models

import "time"

// Payment methods accepted by the purchase flow
const (
	PaymentCard       = "card"
	PaymentNetBanking = "netbanking"
	PaymentUPI        = "upi"
)

// PaymentMethods lists the accepted payment methods in display order.
var PaymentMethods = []string{PaymentCard, PaymentNetBanking, PaymentUPI}

// Negotiation is a counter-offer sent to the seller of a listing.
type Negotiation struct {
	ID           string
	OfferID      string
	BuyerID      string
	ListingPrice float64
	OfferedPrice float64
	Message      string
	CreatedAt    time.Time
}

// Purchase is the outcome of a simulated payment for a listing.
type Purchase struct {
	ID            string
	OfferID       string
	BuyerID       string
	Amount        float64
	PaymentMethod string
	Reference     string
	CreatedAt     time.Time
}
