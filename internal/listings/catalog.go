package listings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cardswap/cardswap/internal/models"
	"github.com/google/uuid"
)

// Catalog is an immutable snapshot of the listed offers. Offer ids are
// unique within a snapshot.
type Catalog struct {
	offers []models.Offer
	index  map[string]int
}

// NewCatalog builds a snapshot from offers, rejecting duplicate ids.
func NewCatalog(offers []models.Offer) (Catalog, error) {
	c := Catalog{
		offers: make([]models.Offer, len(offers)),
		index:  make(map[string]int, len(offers)),
	}
	copy(c.offers, offers)

	for i, o := range c.offers {
		if o.ID == "" {
			return Catalog{}, fmt.Errorf("offer at position %d has no id: %w", i, models.ErrValidation)
		}
		if _, dup := c.index[o.ID]; dup {
			return Catalog{}, fmt.Errorf("duplicate offer id %q: %w", o.ID, models.ErrConflict)
		}
		c.index[o.ID] = i
	}

	return c, nil
}

// Offers returns a copy of the snapshot's offers in display order.
func (c Catalog) Offers() []models.Offer {
	out := make([]models.Offer, len(c.offers))
	copy(out, c.offers)
	return out
}

// Len returns the number of offers in the snapshot.
func (c Catalog) Len() int {
	return len(c.offers)
}

// Get returns the offer with the given id.
func (c Catalog) Get(id string) (models.Offer, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.Offer{}, false
	}
	return c.offers[i], true
}

// Append returns a new snapshot with o placed first. The receiver is left
// untouched.
func (c Catalog) Append(o models.Offer) (Catalog, error) {
	if o.ID == "" {
		return Catalog{}, fmt.Errorf("offer has no id: %w", models.ErrValidation)
	}
	if _, dup := c.index[o.ID]; dup {
		return Catalog{}, fmt.Errorf("duplicate offer id %q: %w", o.ID, models.ErrConflict)
	}

	next := make([]models.Offer, 0, len(c.offers)+1)
	next = append(next, o)
	next = append(next, c.offers...)

	return NewCatalog(next)
}

// Facets summarises a catalog for the filter controls.
type Facets struct {
	Categories []string          `json:"categories"`
	Issuers    []string          `json:"issuers"`
	Bounds     models.PriceRange `json:"bounds"`
	Count      int               `json:"count"`
}

// FacetsOf returns the facets of a catalog.
func FacetsOf(c Catalog) Facets {
	return Facets{
		Categories: append([]string(nil), models.Categories...),
		Issuers:    append([]string(nil), models.Issuers...),
		Bounds:     PriceBounds(c.offers),
		Count:      c.Len(),
	}
}

// Source loads and persists offers on behalf of a Store.
type Source interface {
	Load(ctx context.Context) ([]models.Offer, error)
	Save(ctx context.Context, offer *models.Offer) error
}

// Store holds the current catalog snapshot. Readers never block; posts are
// serialized so each one builds on the latest snapshot.
type Store struct {
	current atomic.Pointer[Catalog]
	mu      sync.Mutex
	source  Source
	logger  *slog.Logger
}

// NewStore creates a Store seeded from source.
func NewStore(ctx context.Context, source Source, logger *slog.Logger) (*Store, error) {
	offers, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	catalog, err := NewCatalog(offers)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	s := &Store{source: source, logger: logger}
	s.current.Store(&catalog)

	logger.Info("catalog loaded", slog.Int("offers", catalog.Len()))
	return s, nil
}

// Snapshot returns the current catalog.
func (s *Store) Snapshot() Catalog {
	return *s.current.Load()
}

// Post persists a new offer and publishes a snapshot with it first. An id
// and creation time are assigned when missing.
func (s *Store) Post(ctx context.Context, offer models.Offer) (models.Offer, Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offer.ID == "" {
		offer.ID = uuid.New().String()
	}
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = time.Now().UTC()
	}

	next, err := s.current.Load().Append(offer)
	if err != nil {
		return models.Offer{}, Catalog{}, err
	}

	if err := s.source.Save(ctx, &offer); err != nil {
		s.logger.Error("failed to save offer", slog.String("offer_id", offer.ID), slog.Any("error", err))
		return models.Offer{}, Catalog{}, fmt.Errorf("failed to save offer: %w", err)
	}

	s.current.Store(&next)
	s.logger.Info("offer posted",
		slog.String("offer_id", offer.ID),
		slog.String("category", offer.Category),
		slog.Int("catalog_size", next.Len()))

	return offer, next, nil
}
