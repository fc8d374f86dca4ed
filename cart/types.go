// Package cart keeps a user's shopping cart consistent with the backend,
// which owns the authoritative state. Every mutation re-reads the cart
// afterwards so derived totals never trust a locally optimistic guess.
package cart

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Price is a monetary amount in cents. The backend serializes decimals as
// strings ("12.50"); Price parses either that or a bare JSON number.
type Price int64

// ParsePrice parses a decimal string with at most two fraction digits.
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}

	var cents int64
	switch len(frac) {
	case 0:
	case 1:
		d, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid price %q: %w", s, err)
		}
		cents = d * 10
	case 2:
		d, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid price %q: %w", s, err)
		}
		cents = d
	default:
		return 0, fmt.Errorf("invalid price %q: more than two fraction digits", s)
	}

	total := units*100 + cents
	if negative {
		total = -total
	}
	return Price(total), nil
}

// String renders the price as a two-decimal string, the backend's own format.
func (p Price) String() string {
	sign := ""
	v := int64(p)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// UnmarshalJSON accepts both the backend's decimal strings and raw numbers.
func (p *Price) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		*p = 0
		return nil
	}
	parsed, err := ParsePrice(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON renders the backend's string format.
func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// ListingSummary is the backend-owned listing snapshot embedded in cart
// items. This package treats it as read-only.
type ListingSummary struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Price      Price  `json:"price"`
	Image      string `json:"image,omitempty"`
	SellerName string `json:"seller_name,omitempty"`
}

// CartItem is one cart line. Quantity is always >= 1; removing the line is
// the only way to reach zero.
type CartItem struct {
	ID       int64          `json:"id"`
	Listing  ListingSummary `json:"listing"`
	Quantity int            `json:"quantity"`
}

// Cart is the user's single cart as last reported by the backend.
type Cart struct {
	ID    int64      `json:"id"`
	Items []CartItem `json:"items"`
}

// Line returns the item for listingID, or nil when absent.
func (c *Cart) Line(listingID int64) *CartItem {
	for i := range c.Items {
		if c.Items[i].Listing.ID == listingID {
			return &c.Items[i]
		}
	}
	return nil
}
