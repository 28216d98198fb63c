package directory

import (
	"errors"
)

// ErrNotFound is returned for an id that is not in the current list.
var ErrNotFound = errors.New("customer not in list")

// Filters narrow the customer search. Empty fields mean "no constraint".
type Filters struct {
	Days            string `json:"days" form:"days"`
	MinOrders       string `json:"minOrders" form:"minOrders"`
	DeliveryPartner string `json:"deliveryPartner" form:"deliveryPartner"`
	MinItemsInOrder string `json:"minItemsInOrder" form:"minItemsInOrder"`
}

// View is a snapshot of the directory.
type View struct {
	Customers  []Customer `json:"customers"`
	ExpandedID ID         `json:"expanded_id,omitempty"`
	Filters    Filters    `json:"filters"`
}

// Directory is the customer list of one session. It is not safe for
// concurrent use.
type Directory struct {
	customers []Customer
	expanded  ID
	filters   Filters
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{customers: []Customer{}}
}

// Replace swaps the whole list. Orders merged into previous rows are
// dropped, and the expansion is cleared when its row is gone.
func (d *Directory) Replace(customers []Customer) {
	if customers == nil {
		customers = []Customer{}
	}
	d.customers = customers
	if d.expanded != "" && d.index(d.expanded) < 0 {
		d.expanded = ""
	}
}

// SetFilters records the filters of the latest search.
func (d *Directory) SetFilters(f Filters) {
	d.filters = f
}

// Filters returns the active filters.
func (d *Directory) Filters() Filters {
	return d.filters
}

// Has reports whether id is in the list.
func (d *Directory) Has(id ID) bool {
	return d.index(id) >= 0
}

// Expanded returns the expanded row id, or "" when none is.
func (d *Directory) Expanded() ID {
	return d.expanded
}

// Collapse clears the expansion if id is the expanded row and reports
// whether it did. Fetched orders stay on the row.
func (d *Directory) Collapse(id ID) bool {
	if d.expanded == "" || d.expanded != id {
		return false
	}
	d.expanded = ""
	return true
}

// Expand merges orders into the row and marks it expanded.
func (d *Directory) Expand(id ID, orders []CustomerOrder) error {
	i := d.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if orders == nil {
		orders = []CustomerOrder{}
	}

	next := make([]Customer, len(d.customers))
	copy(next, d.customers)
	next[i].Orders = orders

	d.customers = next
	d.expanded = id
	return nil
}

// Remove drops the row. The expansion is cleared if it pointed at it.
func (d *Directory) Remove(id ID) error {
	i := d.index(id)
	if i < 0 {
		return ErrNotFound
	}

	next := make([]Customer, 0, len(d.customers)-1)
	next = append(next, d.customers[:i]...)
	next = append(next, d.customers[i+1:]...)
	d.customers = next

	if d.expanded == id {
		d.expanded = ""
	}
	return nil
}

// View returns a snapshot that shares nothing mutable with d.
func (d *Directory) View() View {
	customers := make([]Customer, len(d.customers))
	copy(customers, d.customers)
	return View{
		Customers:  customers,
		ExpandedID: d.expanded,
		Filters:    d.filters,
	}
}

func (d *Directory) index(id ID) int {
	for i, c := range d.customers {
		if c.ID == id {
			return i
		}
	}
	return -1
}
