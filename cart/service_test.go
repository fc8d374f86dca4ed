package cart_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/c360studio/marketctl/api"
	"github.com/c360studio/marketctl/cart"
	"github.com/c360studio/marketctl/notify"
	"github.com/c360studio/marketctl/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMarket mimics the backend's cart endpoints: list is get-or-create and
// returns a single cart object, add_item merges duplicate lines.
type fakeMarket struct {
	mu           sync.Mutex
	requireToken string // when set, requests without this bearer get a 401
	cartID       int64
	cartsCreated int
	lines        map[int64]int        // listing ID -> quantity
	prices       map[int64]string     // listing ID -> decimal price
	failNext     map[string]int       // path suffix -> status to return once
	requests     atomic.Int32
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		lines:    make(map[int64]int),
		prices:   map[int64]string{7: "10.00", 9: "5.00", 11: "19.99"},
		failNext: make(map[string]int),
	}
}

var actionRe = regexp.MustCompile(`^/api/carts/(\d+)/(add_item|update_quantity|remove_item|clear)/$`)

func (f *fakeMarket) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.requireToken != "" && r.Header.Get("Authorization") != "Bearer "+f.requireToken {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Authentication credentials were not provided"})
			return
		}

		if status, ok := f.failNext[r.URL.Path]; ok {
			delete(f.failNext, r.URL.Path)
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{"error": "injected failure"})
			return
		}

		switch {
		case r.URL.Path == "/api/carts/":
			if f.cartID == 0 {
				f.cartsCreated++
				f.cartID = int64(f.cartsCreated)
			}
			f.writeCart(w)

		case r.URL.Path == "/api/create-checkout-session/":
			json.NewEncoder(w).Encode(map[string]string{"url": "https://pay.example/session/cs_123"})

		default:
			m := actionRe.FindStringSubmatch(r.URL.Path)
			if m == nil {
				t.Errorf("unexpected path %s", r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if id, _ := strconv.ParseInt(m[1], 10, 64); id != f.cartID {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			if m[2] == "clear" {
				f.lines = make(map[int64]int)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			var body struct {
				ListingID int64 `json:"listing_id"`
				Quantity  int   `json:"quantity"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

			switch m[2] {
			case "add_item":
				f.lines[body.ListingID] += body.Quantity
				f.writeCart(w)
			case "update_quantity":
				if _, ok := f.lines[body.ListingID]; !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				f.lines[body.ListingID] = body.Quantity
				w.WriteHeader(http.StatusOK)
			case "remove_item":
				delete(f.lines, body.ListingID)
				w.WriteHeader(http.StatusNoContent)
			}
		}
	}
}

// writeCart renders the cart the way CartSerializer does. Caller holds f.mu.
func (f *fakeMarket) writeCart(w http.ResponseWriter) {
	items := []map[string]any{}
	lineID := int64(100)
	for listingID, qty := range f.lines {
		items = append(items, map[string]any{
			"id":       lineID,
			"quantity": qty,
			"listing": map[string]any{
				"id":    listingID,
				"title": fmt.Sprintf("Listing %d", listingID),
				"price": f.prices[listingID],
			},
		})
		lineID++
	}
	json.NewEncoder(w).Encode(map[string]any{"id": f.cartID, "items": items})
}

func newTestService(t *testing.T, f *fakeMarket, hub *notify.Hub) (*cart.Service, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	client := api.NewClient(server.URL)
	return cart.NewService(client, hub), server
}

func TestService_RepeatedAddsMergeIntoOneLine(t *testing.T) {
	f := newFakeMarket()
	svc, _ := newTestService(t, f, nil)
	ctx := context.Background()

	var got *cart.Cart
	for i := 0; i < 4; i++ {
		var err error
		got, err = svc.AddItem(ctx, 7, 1)
		require.NoError(t, err)
	}

	require.Len(t, got.Items, 1, "idempotent merge, not one line per click")
	line := got.Line(7)
	require.NotNil(t, line)
	assert.Equal(t, 4, line.Quantity)
}

func TestService_GetOrCreateIsStable(t *testing.T) {
	f := newFakeMarket()
	svc, _ := newTestService(t, f, nil)
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, 7, 1)
	require.NoError(t, err)
	_, err = svc.RemoveItem(ctx, 7)
	require.NoError(t, err)

	second, err := svc.GetOrCreate(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.cartsCreated, "a second cart must never be created")
}

func TestService_UpdateQuantityRejectsBelowOne(t *testing.T) {
	f := newFakeMarket()
	svc, _ := newTestService(t, f, nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, 7, 2)
	require.NoError(t, err)
	before := f.requests.Load()

	for _, qty := range []int{0, -1} {
		_, err := svc.UpdateQuantity(ctx, 7, qty)
		require.Error(t, err)
		assert.ErrorIs(t, err, cart.ErrInvalidQuantity)
		assert.True(t, cart.IsCartError(err))
	}

	assert.Equal(t, before, f.requests.Load(), "rejected quantities must not reach the backend")
	assert.Equal(t, 2, f.lines[7], "stored quantity unchanged")
}

func TestService_UpdateQuantityRereadsCart(t *testing.T) {
	f := newFakeMarket()
	svc, _ := newTestService(t, f, nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, 7, 1)
	require.NoError(t, err)

	got, err := svc.UpdateQuantity(ctx, 7, 5)
	require.NoError(t, err)

	line := got.Line(7)
	require.NotNil(t, line)
	assert.Equal(t, 5, line.Quantity)
}

func TestService_RemoveItemDeletesLine(t *testing.T) {
	f := newFakeMarket()
	svc, _ := newTestService(t, f, nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, 7, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, 9, 1)
	require.NoError(t, err)

	got, err := svc.RemoveItem(ctx, 7)
	require.NoError(t, err)

	assert.Len(t, got.Items, 1)
	assert.Nil(t, got.Line(7))
}

func TestService_Total(t *testing.T) {
	svc := cart.NewService(nil, nil)

	c := &cart.Cart{Items: []cart.CartItem{
		{Listing: cart.ListingSummary{Price: 1000}, Quantity: 2},
		{Listing: cart.ListingSummary{Price: 500}, Quantity: 3},
	}}

	assert.Equal(t, "35.00", svc.Total(c).String())
	assert.Equal(t, "0.00", svc.Total(&cart.Cart{}).String())
}

func TestService_PublishesCountAfterMutations(t *testing.T) {
	f := newFakeMarket()
	hub := notify.NewHub()
	svc, _ := newTestService(t, f, hub)
	ctx := context.Background()

	var counts []int
	hub.Subscribe("nav-badge", func(n int) { counts = append(counts, n) })

	_, err := svc.AddItem(ctx, 7, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, 9, 1)
	require.NoError(t, err)
	_, err = svc.RemoveItem(ctx, 7)
	require.NoError(t, err)

	// Exactly one publish per mutation, each carrying the post-mutation
	// count. Subscribers never see a transient pre-mutation value.
	assert.Equal(t, []int{1, 2, 1}, counts)
	assert.Equal(t, 1, hub.Count())
}

func TestService_ClearEmptiesCart(t *testing.T) {
	f := newFakeMarket()
	hub := notify.NewHub()
	svc, _ := newTestService(t, f, hub)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, 7, 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, 9, 1)
	require.NoError(t, err)
	require.Equal(t, 2, hub.Count())

	got, err := svc.Clear(ctx)
	require.NoError(t, err)

	assert.Empty(t, got.Items)
	assert.Equal(t, 0, hub.Count(), "badge reflects the emptied cart")
	assert.Empty(t, f.lines)
}

func TestService_FailedMutationLeavesCountUntouched(t *testing.T) {
	f := newFakeMarket()
	hub := notify.NewHub()
	svc, _ := newTestService(t, f, hub)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, 7, 1)
	require.NoError(t, err)
	require.Equal(t, 1, hub.Count())

	f.failNext["/api/carts/1/update_quantity/"] = http.StatusInternalServerError
	_, err = svc.UpdateQuantity(ctx, 7, 3)
	require.Error(t, err)
	assert.True(t, cart.IsCartError(err))

	assert.Equal(t, 1, hub.Count(), "last-known-good count stands after a failed mutation")
	assert.Equal(t, 1, f.lines[7], "backend state untouched")
}

func TestService_UnauthenticatedAddSignalsSignin(t *testing.T) {
	f := newFakeMarket()
	f.requireToken = "valid-token"
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	var signals atomic.Int32
	mgr := session.NewManager(session.NewMemStore(), server.URL,
		session.WithSigninSignal(func() { signals.Add(1) }))
	client := api.NewClient(server.URL, api.WithTokenSource(mgr))
	svc := cart.NewService(client, notify.NewHub())

	_, err := svc.AddItem(context.Background(), 7, 1)
	require.Error(t, err)
	assert.True(t, cart.IsCartError(err))
	assert.True(t, session.IsRefreshError(err), "cause is the failed session refresh")

	assert.Equal(t, int32(1), signals.Load(), "exactly one sign-in signal")
	assert.Equal(t, 0, f.cartsCreated, "no cart is created for an unauthenticated user")
}

func TestService_Checkout(t *testing.T) {
	f := newFakeMarket()
	svc, _ := newTestService(t, f, nil)

	url, err := svc.Checkout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/session/cs_123", url)
}

func TestService_ResetForgetsCart(t *testing.T) {
	f := newFakeMarket()
	svc, _ := newTestService(t, f, nil)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx)
	require.NoError(t, err)

	svc.Reset()

	// The next mutation resolves the cart again instead of using a stale ID.
	before := f.requests.Load()
	_, err = svc.AddItem(ctx, 9, 1)
	require.NoError(t, err)
	assert.Greater(t, f.requests.Load(), before+1, "cart was re-resolved before the mutation")
}
