// Package listing provides read-only access to marketplace listings: the
// data the browse pages and item sliders render. All writes to listings are
// the seller's concern and out of scope for this client.
package listing

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/c360studio/marketctl/api"
	"github.com/c360studio/marketctl/cart"
)

// Listing is a full listing record as the backend reports it.
type Listing struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Price       cart.Price `json:"price"`
	Category    string     `json:"category"`
	Condition   string     `json:"condition"`
	Image       string     `json:"image,omitempty"`
	SellerName  string     `json:"seller_name,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ListOptions narrows a listing query. Zero values mean no filter.
type ListOptions struct {
	Category string
	Search   string
}

// Service reads listings through the shared API client.
type Service struct {
	client *api.Client
}

// NewService creates a listing service.
func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// List returns active listings, optionally filtered.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Listing, error) {
	path := "/api/listings/"

	query := url.Values{}
	if opts.Category != "" {
		query.Set("category", opts.Category)
	}
	if opts.Search != "" {
		query.Set("search", opts.Search)
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var listings []Listing
	if err := s.client.Get(ctx, path, &listings); err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

// Get returns a single listing by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Listing, error) {
	var l Listing
	if err := s.client.Get(ctx, fmt.Sprintf("/api/listings/%d/", id), &l); err != nil {
		return nil, fmt.Errorf("get listing %d: %w", id, err)
	}
	return &l, nil
}

// Mine returns the authenticated user's own listings.
func (s *Service) Mine(ctx context.Context) ([]Listing, error) {
	var listings []Listing
	if err := s.client.Get(ctx, "/api/listings/my-listings/", &listings); err != nil {
		return nil, fmt.Errorf("list own listings: %w", err)
	}
	return listings, nil
}
