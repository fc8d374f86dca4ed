package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360studio/marketctl/api"
	"github.com/c360studio/marketctl/metrics"
	"github.com/c360studio/marketctl/notify"
)

// ErrInvalidQuantity is returned when a mutation would set a quantity below
// one. Callers must use RemoveItem to take a line out of the cart.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// CartError wraps any failure during a cart operation. The previously
// rendered cart state is still valid: a failed mutation publishes nothing.
type CartError struct {
	// Op is the operation that failed ("get", "add_item", ...).
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *CartError) Error() string {
	return fmt.Sprintf("cart %s: %v", e.Op, e.Err)
}

func (e *CartError) Unwrap() error {
	return e.Err
}

// IsCartError returns true if err occurred during a cart operation.
func IsCartError(err error) bool {
	var cartErr *CartError
	return errors.As(err, &cartErr)
}

// Service reconciles local cart intent with the backend's authoritative
// state. The backend guarantees at most one cart per user (its list and
// create endpoints are both get-or-create), and this service never asks it
// to make another.
//
// Every successful operation re-reads the cart and publishes the line count
// to the notification hub, so all subscribed views agree with the backend.
type Service struct {
	client  *api.Client
	hub     *notify.Hub
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	cartID int64 // 0 until the first successful get-or-create
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a cart service over the shared API client, publishing
// item counts to hub. hub may be nil when no view subscribes.
func NewService(client *api.Client, hub *notify.Hub, opts ...ServiceOption) *Service {
	s := &Service{
		client: client,
		hub:    hub,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// GetOrCreate returns the user's cart, creating it on first touch. The
// backend's GET /api/carts/ is itself get-or-create and returns a single
// cart object; calling this twice without an intervening logout returns the
// same cart ID both times.
func (s *Service) GetOrCreate(ctx context.Context) (*Cart, error) {
	cart, err := s.fetch(ctx)
	if err != nil {
		return nil, &CartError{Op: "get", Err: err}
	}
	s.publish(cart)
	return cart, nil
}

// AddItem adds quantity of a listing to the cart. Repeated adds of the same
// listing merge into one line with the summed quantity rather than
// duplicating it. The returned cart is the backend's state after a re-read.
func (s *Service) AddItem(ctx context.Context, listingID int64, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, &CartError{Op: "add_item", Err: ErrInvalidQuantity}
	}

	cartID, err := s.currentCartID(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"listing_id": listingID,
		"quantity":   quantity,
	}
	err = s.client.Post(ctx, fmt.Sprintf("/api/carts/%d/add_item/", cartID), payload, nil)
	s.metrics.ObserveCartMutation("add_item", err == nil)
	if err != nil {
		return nil, &CartError{Op: "add_item", Err: err}
	}

	s.logger.Debug("Added item to cart",
		slog.Int64("listing_id", listingID),
		slog.Int("quantity", quantity))

	return s.reread(ctx, "add_item")
}

// UpdateQuantity sets the quantity for an existing line. Quantities below one
// are rejected before any network call; the stored quantity is untouched.
func (s *Service) UpdateQuantity(ctx context.Context, listingID int64, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, &CartError{Op: "update_quantity", Err: ErrInvalidQuantity}
	}

	cartID, err := s.currentCartID(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"listing_id": listingID,
		"quantity":   quantity,
	}
	err = s.client.Post(ctx, fmt.Sprintf("/api/carts/%d/update_quantity/", cartID), payload, nil)
	s.metrics.ObserveCartMutation("update_quantity", err == nil)
	if err != nil {
		return nil, &CartError{Op: "update_quantity", Err: err}
	}

	return s.reread(ctx, "update_quantity")
}

// RemoveItem deletes the line for listingID entirely.
func (s *Service) RemoveItem(ctx context.Context, listingID int64) (*Cart, error) {
	cartID, err := s.currentCartID(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"listing_id": listingID}
	err = s.client.Post(ctx, fmt.Sprintf("/api/carts/%d/remove_item/", cartID), payload, nil)
	s.metrics.ObserveCartMutation("remove_item", err == nil)
	if err != nil {
		return nil, &CartError{Op: "remove_item", Err: err}
	}

	s.logger.Debug("Removed item from cart", slog.Int64("listing_id", listingID))

	return s.reread(ctx, "remove_item")
}

// Clear removes every line from the cart in one call.
func (s *Service) Clear(ctx context.Context) (*Cart, error) {
	cartID, err := s.currentCartID(ctx)
	if err != nil {
		return nil, err
	}

	err = s.client.Post(ctx, fmt.Sprintf("/api/carts/%d/clear/", cartID), nil, nil)
	s.metrics.ObserveCartMutation("clear", err == nil)
	if err != nil {
		return nil, &CartError{Op: "clear", Err: err}
	}

	s.logger.Debug("Cleared cart")

	return s.reread(ctx, "clear")
}

// Checkout starts a payment session for the cart and returns the opaque
// redirect URL. The payment flow itself is an external step; control returns
// to the caller via a URL parameter on the provider's success redirect.
func (s *Service) Checkout(ctx context.Context) (string, error) {
	var result struct {
		URL string `json:"url"`
	}
	if err := s.client.Post(ctx, "/api/create-checkout-session/", map[string]any{}, &result); err != nil {
		return "", &CartError{Op: "checkout", Err: err}
	}
	if result.URL == "" {
		return "", &CartError{Op: "checkout", Err: errors.New("backend returned no redirect URL")}
	}
	return result.URL, nil
}

// Total sums price times quantity over all lines. It is computed fresh from
// the given cart on every call and never cached across mutations.
func (s *Service) Total(c *Cart) Price {
	var total Price
	for _, item := range c.Items {
		total += item.Listing.Price * Price(item.Quantity)
	}
	return total
}

// ItemCount returns the number of lines, the count the views display.
func (s *Service) ItemCount(c *Cart) int {
	return len(c.Items)
}

// currentCartID returns the cached cart ID, fetching the cart if this session
// has not touched it yet. The fetch does not publish: mutations publish
// exactly once, from the post-mutation re-read, so badge subscribers never
// see a transient pre-mutation count.
func (s *Service) currentCartID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	id := s.cartID
	s.mu.Unlock()
	if id != 0 {
		return id, nil
	}

	cart, err := s.fetch(ctx)
	if err != nil {
		return 0, &CartError{Op: "get", Err: err}
	}
	return cart.ID, nil
}

// fetch reads the cart from the backend and remembers its ID.
func (s *Service) fetch(ctx context.Context) (*Cart, error) {
	var cart Cart
	if err := s.client.Get(ctx, "/api/carts/", &cart); err != nil {
		return nil, err
	}
	if cart.ID == 0 {
		return nil, errors.New("backend returned a cart without an id")
	}

	s.mu.Lock()
	s.cartID = cart.ID
	s.mu.Unlock()

	return &cart, nil
}

// reread fetches the authoritative cart after a successful mutation and
// publishes the new count. A failure here surfaces as a CartError for op; the
// mutation itself already took effect on the backend.
func (s *Service) reread(ctx context.Context, op string) (*Cart, error) {
	cart, err := s.fetch(ctx)
	if err != nil {
		return nil, &CartError{Op: op, Err: err}
	}
	s.publish(cart)
	return cart, nil
}

// publish broadcasts the cart's line count.
func (s *Service) publish(c *Cart) {
	if s.hub != nil {
		s.hub.SetCount(len(c.Items))
	}
}

// Reset forgets the cached cart ID. Call it after a logout so the next
// operation resolves the new user's cart instead of the old one's.
func (s *Service) Reset() {
	s.mu.Lock()
	s.cartID = 0
	s.mu.Unlock()
}
