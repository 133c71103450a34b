package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/cardswap/cardswap/internal/models"
	"github.com/cardswap/cardswap/internal/validation"
	"github.com/google/uuid"
)

// PlatformFeeRate is the share of the listing price added as a platform fee.
const PlatformFeeRate = 0.05

// CheckoutRepository records negotiations and purchases. A nil repository
// keeps them in the log only.
type CheckoutRepository interface {
	SaveNegotiation(ctx context.Context, n *models.Negotiation) error
	SavePurchase(ctx context.Context, p *models.Purchase) error
}

// SellerNotifier delivers counter-offers to sellers.
type SellerNotifier interface {
	NotifySeller(ctx context.Context, sellerEmail, offerTitle string, offeredPrice float64, message string) error
}

// SellerDirectory resolves a seller id to a profile.
type SellerDirectory interface {
	GetByID(ctx context.Context, id string) (*models.ProfileRecord, error)
}

// Gateway charges a buyer. Implementations return a payment reference.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (string, error)
}

// ChargeRequest describes one payment.
type ChargeRequest struct {
	OfferID       string
	BuyerID       string
	Amount        float64
	PaymentMethod string
}

// NegotiateRequest is a buyer's counter-offer.
type NegotiateRequest struct {
	OfferedPrice float64 `validate:"gt=0"`
	Message      string  `validate:"min=5,max=500"`
}

// PurchaseRequest selects how to pay for a listing.
type PurchaseRequest struct {
	PaymentMethod string `validate:"required,payment_method"`
}

// Quote is the amount due for a listing.
type Quote struct {
	Price       float64
	PlatformFee float64
	Total       float64
}

// DefaultNegotiationMessage is the message prefilled for a counter-offer.
func DefaultNegotiationMessage(offer models.Offer) string {
	return fmt.Sprintf("Hi, I'm interested in your %q listing. Would you consider this offer?", offer.Title)
}

// QuoteFor computes the price breakdown shown before payment.
func QuoteFor(offer models.Offer) Quote {
	fee := math.Round(offer.Price * PlatformFeeRate)
	return Quote{Price: offer.Price, PlatformFee: fee, Total: offer.Price + fee}
}

// CheckoutService implements the negotiate and purchase flows. Neither moves
// real money.
type CheckoutService struct {
	repo     CheckoutRepository
	notifier SellerNotifier
	sellers  SellerDirectory
	gateway  Gateway
	delay    time.Duration
	logger   *slog.Logger
}

// CheckoutConfig wires a CheckoutService. Repo, Notifier and Sellers are
// optional.
type CheckoutConfig struct {
	Repo     CheckoutRepository
	Notifier SellerNotifier
	Sellers  SellerDirectory
	Gateway  Gateway
	// Delay simulates the round trip of sending a negotiation.
	Delay  time.Duration
	Logger *slog.Logger
}

func NewCheckoutService(cfg CheckoutConfig) *CheckoutService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gateway := cfg.Gateway
	if gateway == nil {
		gateway = &SimulatedGateway{}
	}
	return &CheckoutService{
		repo:     cfg.Repo,
		notifier: cfg.Notifier,
		sellers:  cfg.Sellers,
		gateway:  gateway,
		delay:    cfg.Delay,
		logger:   logger,
	}
}

// Negotiate sends a counter-offer for offer on behalf of buyer. The offered
// price must be below the listing price. An empty message is replaced by
// DefaultNegotiationMessage.
func (s *CheckoutService) Negotiate(ctx context.Context, buyer *models.Identity, offer models.Offer, req NegotiateRequest) (*models.Negotiation, error) {
	if buyer == nil {
		return nil, models.ErrNotAuthenticated
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		req.Message = DefaultNegotiationMessage(offer)
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.OfferedPrice >= offer.Price {
		return nil, &validation.Error{Fields: []validation.FieldError{{
			Field:   "OfferedPrice",
			Message: "offer must be lower than the listing price",
		}}}
	}

	if err := sleepCtx(ctx, s.delay); err != nil {
		return nil, err
	}

	n := &models.Negotiation{
		ID:           uuid.New().String(),
		OfferID:      offer.ID,
		BuyerID:      buyer.ID,
		ListingPrice: offer.Price,
		OfferedPrice: req.OfferedPrice,
		Message:      req.Message,
		CreatedAt:    time.Now(),
	}

	if s.repo != nil {
		if err := s.repo.SaveNegotiation(ctx, n); err != nil {
			return nil, fmt.Errorf("failed to record negotiation: %w", err)
		}
	}

	s.notifySeller(ctx, offer, n)

	s.logger.Info("negotiation sent",
		slog.String("negotiation_id", n.ID),
		slog.String("offer_id", offer.ID),
		slog.Float64("offered_price", n.OfferedPrice))
	return n, nil
}

// notifySeller is best effort; seeded listings have no seller.
func (s *CheckoutService) notifySeller(ctx context.Context, offer models.Offer, n *models.Negotiation) {
	if s.notifier == nil || s.sellers == nil || offer.SellerID == "" {
		return
	}
	seller, err := s.sellers.GetByID(ctx, offer.SellerID)
	if err != nil {
		s.logger.Warn("failed to look up seller", slog.String("seller_id", offer.SellerID), slog.Any("error", err))
		return
	}
	if err := s.notifier.NotifySeller(ctx, seller.Email, offer.Title, n.OfferedPrice, n.Message); err != nil {
		s.logger.Warn("failed to notify seller", slog.String("negotiation_id", n.ID), slog.Any("error", err))
	}
}

// Purchase pays for offer through the gateway.
func (s *CheckoutService) Purchase(ctx context.Context, buyer *models.Identity, offer models.Offer, req PurchaseRequest) (*models.Purchase, error) {
	if buyer == nil {
		return nil, models.ErrNotAuthenticated
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	quote := QuoteFor(offer)
	ref, err := s.gateway.Charge(ctx, ChargeRequest{
		OfferID:       offer.ID,
		BuyerID:       buyer.ID,
		Amount:        quote.Total,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		s.logger.Warn("payment failed",
			slog.String("offer_id", offer.ID),
			slog.String("payment_method", req.PaymentMethod),
			slog.Any("error", err))
		return nil, err
	}

	p := &models.Purchase{
		ID:            uuid.New().String(),
		OfferID:       offer.ID,
		BuyerID:       buyer.ID,
		Amount:        quote.Total,
		PaymentMethod: req.PaymentMethod,
		Reference:     ref,
		CreatedAt:     time.Now(),
	}

	if s.repo != nil {
		if err := s.repo.SavePurchase(ctx, p); err != nil {
			// The charge already went through; the record is informational.
			s.logger.Error("failed to record purchase", slog.String("reference", ref), slog.Any("error", err))
		}
	}

	s.logger.Info("purchase completed",
		slog.String("purchase_id", p.ID),
		slog.String("offer_id", offer.ID),
		slog.Float64("amount", p.Amount))
	return p, nil
}

// SimulatedGateway approves every charge after Delay unless DeclineAll is set.
type SimulatedGateway struct {
	Delay      time.Duration
	DeclineAll bool
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	if err := sleepCtx(ctx, g.Delay); err != nil {
		return "", err
	}
	if g.DeclineAll {
		return "", fmt.Errorf("%w: %s payment of %.2f was not approved", models.ErrPaymentDeclined, req.PaymentMethod, req.Amount)
	}
	return "sim_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16], nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
