// Package listings holds the listing catalog and the filter engine that
// narrows it to the offers matching a set of criteria.
package listings

import (
	"strings"

	"github.com/cardswap/cardswap/internal/models"
	"golang.org/x/text/cases"
)

// Filter returns the offers in catalog that satisfy every active constraint
// in c, in catalog order. The catalog is never modified and Filter never
// fails: criteria whose price bounds are inverted yield an empty result.
//
// Search text is matched literally against title and issuer after case
// folding both sides; surrounding whitespace is significant.
func Filter(catalog []models.Offer, c models.FilterCriteria) []models.Offer {
	result := make([]models.Offer, 0, len(catalog))

	var needle string
	var fold cases.Caser
	if c.Search != "" {
		fold = cases.Fold()
		needle = fold.String(c.Search)
	}

	for _, o := range catalog {
		if c.FeaturedOnly && !o.Featured {
			continue
		}
		if c.NewOnly && !o.IsNew {
			continue
		}
		if c.Category != models.AllSentinel && o.Category != c.Category {
			continue
		}
		if c.Issuer != models.AllSentinel && o.Issuer != c.Issuer {
			continue
		}
		if !c.Price.Contains(o.Price) {
			continue
		}
		if needle != "" &&
			!strings.Contains(fold.String(o.Title), needle) &&
			!strings.Contains(fold.String(o.Issuer), needle) {
			continue
		}
		result = append(result, o)
	}

	return result
}

// ResetCriteria returns the fixed default criteria: no search text, every
// category and issuer, the default price range and both flags off.
func ResetCriteria() models.FilterCriteria {
	return models.FilterCriteria{
		Search:   "",
		Category: models.AllSentinel,
		Issuer:   models.AllSentinel,
		Price: models.PriceRange{
			Min: models.DefaultMinPrice,
			Max: models.DefaultMaxPrice,
		},
	}
}

// DefaultCriteria is ResetCriteria with the price range widened to cover
// bounds, so that no offer in a catalog with those bounds is hidden.
func DefaultCriteria(bounds models.PriceRange) models.FilterCriteria {
	c := ResetCriteria()
	if bounds.Min < c.Price.Min {
		c.Price.Min = bounds.Min
	}
	if bounds.Max > c.Price.Max {
		c.Price.Max = bounds.Max
	}
	return c
}

// PriceBounds returns the lowest and highest price in catalog. An empty
// catalog reports the default range.
func PriceBounds(catalog []models.Offer) models.PriceRange {
	if len(catalog) == 0 {
		return models.PriceRange{Min: models.DefaultMinPrice, Max: models.DefaultMaxPrice}
	}

	bounds := models.PriceRange{Min: catalog[0].Price, Max: catalog[0].Price}
	for _, o := range catalog[1:] {
		if o.Price < bounds.Min {
			bounds.Min = o.Price
		}
		if o.Price > bounds.Max {
			bounds.Max = o.Price
		}
	}
	return bounds
}

// ClampRange limits r to bounds. The result may be inverted (Min > Max) when
// r lies entirely outside bounds; Filter treats that as matching nothing.
func ClampRange(r, bounds models.PriceRange) models.PriceRange {
	if r.Min < bounds.Min {
		r.Min = bounds.Min
	}
	if r.Max > bounds.Max {
		r.Max = bounds.Max
	}
	return r
}

// IsDefault reports whether c equals the reset criteria.
func IsDefault(c models.FilterCriteria) bool {
	return c == ResetCriteria()
}
