package services

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/cardswap/cardswap/internal/models"
)

// MockCheckoutRepository implements CheckoutRepository for testing
type MockCheckoutRepository struct {
	mu                  sync.Mutex
	SaveNegotiationFunc func(ctx context.Context, n *models.Negotiation) error
	SavePurchaseFunc    func(ctx context.Context, p *models.Purchase) error
	Negotiations        []models.Negotiation
	Purchases           []models.Purchase
}

func (m *MockCheckoutRepository) SaveNegotiation(ctx context.Context, n *models.Negotiation) error {
	if m.SaveNegotiationFunc != nil {
		return m.SaveNegotiationFunc(ctx, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Negotiations = append(m.Negotiations, *n)
	return nil
}

func (m *MockCheckoutRepository) SavePurchase(ctx context.Context, p *models.Purchase) error {
	if m.SavePurchaseFunc != nil {
		return m.SavePurchaseFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Purchases = append(m.Purchases, *p)
	return nil
}

// MockSellerNotifier implements SellerNotifier for testing
type MockSellerNotifier struct {
	NotifySellerFunc func(ctx context.Context, sellerEmail, offerTitle string, offeredPrice float64, message string) error
	Sent             []string
}

func (m *MockSellerNotifier) NotifySeller(ctx context.Context, sellerEmail, offerTitle string, offeredPrice float64, message string) error {
	m.Sent = append(m.Sent, sellerEmail)
	if m.NotifySellerFunc != nil {
		return m.NotifySellerFunc(ctx, sellerEmail, offerTitle, offeredPrice, message)
	}
	return nil
}

// MockSellerDirectory implements SellerDirectory for testing
type MockSellerDirectory struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.ProfileRecord, error)
}

func (m *MockSellerDirectory) GetByID(ctx context.Context, id string) (*models.ProfileRecord, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// MockSESClient records SendEmail calls
type MockSESClient struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	Inputs        []*ses.SendEmailInput
}

func (m *MockSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.Inputs = append(m.Inputs, params)
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params, optFns...)
	}
	id := "msg-1"
	return &ses.SendEmailOutput{MessageId: &id}, nil
}
