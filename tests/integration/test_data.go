package integration

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/cardswap/cardswap/internal/models"
)

// TestEmail generates a unique address using a timestamp
func TestEmail(suffix string) string {
	return fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
}

// TestProfile is a profile that passes sign-up validation.
var TestProfile = models.Profile{Name: "Asha Rao", Phone: "9876543210", Country: "India", City: "Mumbai"}

// TestOffer builds a listing with a fresh id.
func TestOffer(title string, price float64) models.Offer {
	return models.Offer{
		ID:        uuid.New().String(),
		Title:     title,
		Issuer:    "HDFC",
		Price:     price,
		Benefits:  []string{"5% cashback", "No annual fee"},
		Category:  models.CategoryCashBack,
		IsNew:     true,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

var linkPattern = regexp.MustCompile(`https?://\S+`)

// CallbackQuery extracts the query string of the emailed link, so it can be
// replayed against a test server listening elsewhere.
func CallbackQuery(body string) (string, error) {
	raw := linkPattern.FindString(body)
	if raw == "" {
		return "", fmt.Errorf("no link in %q", body)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return u.RawQuery, nil
}
