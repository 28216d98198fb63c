// Package directory holds the customer list view: the customers last fetched,
// which row is expanded, and the active filters.
package directory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/eshaffer321/receipt-desk/internal/domain/receipt"
)

// ID identifies a customer. The customers service may send it as a number or
// a string; both decode to the same ID.
type ID string

// UnmarshalJSON accepts JSON strings and numbers.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("customer id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers so they round-trip unchanged.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Customer is one row of the customer list. Columns that come straight from
// SQL aggregates or free-form input are kept as loose values so that one odd
// row cannot fail the whole list. A nil Orders means not fetched yet; an
// empty one means fetched with no orders.
type Customer struct {
	ID                  ID              `json:"id"`
	Name                receipt.Value   `json:"name"`
	PhoneNumber         receipt.Value   `json:"phone_number"`
	OrderCount          receipt.Value   `json:"order_count,omitzero"`
	LastOrderDate       receipt.Value   `json:"last_order_date,omitzero"`
	LastDeliveryPartner string          `json:"last_delivery_partner,omitempty"`
	Orders              []CustomerOrder `json:"orders,omitzero"`
}

// CustomerOrder is a past order as the customers service returns it.
type CustomerOrder struct {
	ID              ID            `json:"id"`
	OrderID         receipt.Value `json:"order_id,omitzero"`
	OrderDate       string        `json:"order_date,omitempty"`
	Total           receipt.Value `json:"total,omitzero"`
	DeliveryPartner string        `json:"delivery_partner,omitempty"`
	OrderItems      []OrderItem   `json:"OrderItems"`
}

// OrderItem is a line of a past order.
type OrderItem struct {
	ID       ID            `json:"id"`
	ItemName string        `json:"item_name"`
	Quantity receipt.Value `json:"quantity,omitzero"`
	Price    receipt.Value `json:"price,omitzero"`
}

// DisplayOrderCount prefers the server count as sent, then the number of
// fetched orders, then "N/A".
func (c Customer) DisplayOrderCount() string {
	if c.OrderCount.Present {
		return c.OrderCount.String()
	}
	if c.Orders != nil {
		return strconv.Itoa(len(c.Orders))
	}
	return "N/A"
}

// DisplayLastOrderDate renders the date part of last_order_date. Numbers are
// read as Unix milliseconds.
func (c Customer) DisplayLastOrderDate() string {
	if !c.LastOrderDate.Truthy() {
		return "N/A"
	}
	if _, ok := c.LastOrderDate.Raw.(string); !ok {
		if ms := c.LastOrderDate.Number(); !math.IsNaN(ms) {
			return time.UnixMilli(int64(ms)).UTC().Format(time.DateOnly)
		}
	}
	return displayDate(c.LastOrderDate.String())
}

// DisplayLastPartner returns the last partner or "N/A".
func (c Customer) DisplayLastPartner() string {
	if c.LastDeliveryPartner == "" {
		return "N/A"
	}
	return c.LastDeliveryPartner
}

func displayDate(s string) string {
	if s == "" {
		return "N/A"
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return s
}
