// Package partners lists the delivery partners whose receipts are handled.
package partners

import (
	"errors"
	"strings"
)

// ErrUnknown is returned for a slug outside the fixed partner set.
var ErrUnknown = errors.New("unknown delivery partner")

// Partner is a delivery partner. Slug appears in routes and approval
// payloads; Name is what staff see in selectors and customer filters.
type Partner struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

var all = []Partner{
	{Slug: "talabat", Name: "Talabat"},
	{Slug: "snoonu", Name: "Snoonu"},
	{Slug: "rafeeq", Name: "Rafeeq"},
}

// All returns the partners in selector order.
func All() []Partner {
	out := make([]Partner, len(all))
	copy(out, all)
	return out
}

// Lookup finds a partner by slug. Matching ignores case.
func Lookup(slug string) (Partner, error) {
	for _, p := range all {
		if strings.EqualFold(p.Slug, slug) {
			return p, nil
		}
	}
	return Partner{}, ErrUnknown
}

// FilterName normalizes a customer-search partner filter to its display
// name. Empty input means "any partner".
func FilterName(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	for _, p := range all {
		if strings.EqualFold(p.Name, v) || strings.EqualFold(p.Slug, v) {
			return p.Name, nil
		}
	}
	return "", ErrUnknown
}
