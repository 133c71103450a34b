package models

// Default price range applied by a fresh or reset set of criteria.
const (
	DefaultMinPrice = 1000
	DefaultMaxPrice = 2000
)

// PriceRange is an inclusive [Min, Max] price interval.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether p lies inside the range, bounds included.
func (r PriceRange) Contains(p float64) bool {
	return p >= r.Min && p <= r.Max
}

// FilterCriteria is the active set of constraints applied to the catalog.
type FilterCriteria struct {
	Search       string     `json:"search"`
	Category     string     `json:"category"`
	Issuer       string     `json:"issuer"`
	Price        PriceRange `json:"price"`
	FeaturedOnly bool       `json:"featured_only"`
	NewOnly      bool       `json:"new_only"`
}
