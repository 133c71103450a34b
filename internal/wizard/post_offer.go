// Package wizard models the multi-step dialogs as explicit state machines.
// Every step has a name and a transition that is not allowed from the
// current step fails instead of being ignored.
package wizard

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cardswap/cardswap/internal/listings"
	"github.com/cardswap/cardswap/internal/models"
	"github.com/cardswap/cardswap/internal/validation"
)

// PostStep is a step of the post-offer wizard.
type PostStep string

const (
	StepCategorySelect PostStep = "category-select"
	StepDetails        PostStep = "details"
	StepPaymentMethod  PostStep = "payment-method"
	StepSubmit         PostStep = "submit"
	StepDone           PostStep = "done"
)

// OfferDetails is the listing content entered in the details step.
type OfferDetails struct {
	Title    string   `json:"title" validate:"required,min=3,max=120"`
	Issuer   string   `json:"issuer" validate:"required,min=2,max=60"`
	Price    float64  `json:"price" validate:"gt=0,lte=1000000"`
	Benefits []string `json:"benefits" validate:"min=1,max=10,dive,required,max=200"`
	ImageURL string   `json:"image" validate:"omitempty,url"`
}

// Poster publishes an offer to the catalog. *listings.Store satisfies it.
type Poster interface {
	Post(ctx context.Context, offer models.Offer) (models.Offer, listings.Catalog, error)
}

// PostOffer walks a seller through CategorySelect, Details, PaymentMethod
// and Submit.
type PostOffer struct {
	mu       sync.Mutex
	step     PostStep
	category string
	details  OfferDetails
	payout   string
}

func NewPostOffer() *PostOffer {
	return &PostOffer{step: StepCategorySelect}
}

// Step returns the current step.
func (w *PostOffer) Step() PostStep {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *PostOffer) expect(step PostStep, action string) error {
	if w.step != step {
		return fmt.Errorf("%w: cannot %s in step %s", models.ErrStateConflict, action, w.step)
	}
	return nil
}

// SelectCategory records the category and advances to Details.
func (w *PostOffer) SelectCategory(category string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepCategorySelect, "select a category"); err != nil {
		return err
	}
	if err := validation.Var("category", category, "required,category"); err != nil {
		return err
	}

	w.category = category
	w.step = StepDetails
	return nil
}

// SetDetails records the listing content and advances to PaymentMethod.
func (w *PostOffer) SetDetails(d OfferDetails) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepDetails, "enter details"); err != nil {
		return err
	}

	d.Title = strings.TrimSpace(d.Title)
	d.Issuer = strings.TrimSpace(d.Issuer)
	benefits := make([]string, 0, len(d.Benefits))
	for _, b := range d.Benefits {
		if b = strings.TrimSpace(b); b != "" {
			benefits = append(benefits, b)
		}
	}
	d.Benefits = benefits

	if err := validation.Struct(d); err != nil {
		return err
	}

	w.details = d
	w.step = StepPaymentMethod
	return nil
}

// SelectPaymentMethod records how the seller is paid and advances to Submit.
func (w *PostOffer) SelectPaymentMethod(method string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepPaymentMethod, "choose a payment method"); err != nil {
		return err
	}
	if err := validation.Var("payment_method", method, "required,payment_method"); err != nil {
		return err
	}

	w.payout = method
	w.step = StepSubmit
	return nil
}

// Back returns to the previous step. It is not allowed from the first step
// or once the offer is posted.
func (w *PostOffer) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.step {
	case StepDetails:
		w.step = StepCategorySelect
	case StepPaymentMethod:
		w.step = StepDetails
	case StepSubmit:
		w.step = StepPaymentMethod
	default:
		return fmt.Errorf("%w: cannot go back from step %s", models.ErrStateConflict, w.step)
	}
	return nil
}

// Draft returns the offer that Submit would post.
func (w *PostOffer) Draft() models.Offer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draftLocked("")
}

func (w *PostOffer) draftLocked(sellerID string) models.Offer {
	return models.Offer{
		Title:        w.details.Title,
		Issuer:       w.details.Issuer,
		Price:        w.details.Price,
		Benefits:     append([]string(nil), w.details.Benefits...),
		ImageURL:     w.details.ImageURL,
		IsNew:        true,
		Category:     w.category,
		SellerID:     sellerID,
		PayoutMethod: w.payout,
	}
}

// Submit posts the offer for seller. A failed post leaves the wizard in
// Submit so it can be retried.
func (w *PostOffer) Submit(ctx context.Context, poster Poster, seller *models.Identity) (models.Offer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepSubmit, "submit"); err != nil {
		return models.Offer{}, err
	}
	if seller == nil {
		return models.Offer{}, models.ErrNotAuthenticated
	}

	posted, _, err := poster.Post(ctx, w.draftLocked(seller.ID))
	if err != nil {
		return models.Offer{}, err
	}

	w.step = StepDone
	return posted, nil
}
