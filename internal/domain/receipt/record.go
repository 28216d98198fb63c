package receipt

import (
	"fmt"
	"math"
)

// Canonical field names of an order record.
const (
	FieldOrderID             = "order_id"
	FieldOrderDate           = "order_date"
	FieldCustomerName        = "customer_name"
	FieldCustomerPhoneNumber = "customer_phone_number"
	FieldOrderItems          = "order_items"
	FieldSubtotalAmount      = "subtotal_amount"
	FieldDeliveryFees        = "delivery_fees"
	FieldDiscount            = "discount"
	FieldTotal               = "total"
)

// Canonical field names of a line item.
const (
	ItemFieldName     = "item_name"
	ItemFieldPrice    = "price"
	ItemFieldQuantity = "quantity"
)

// OrderRecord is a draft order extracted from a receipt.
type OrderRecord struct {
	OrderID             Value      `json:"order_id,omitzero"`
	OrderDate           Value      `json:"order_date,omitzero"`
	CustomerName        Value      `json:"customer_name,omitzero"`
	CustomerPhoneNumber Value      `json:"customer_phone_number,omitzero"`
	OrderItems          []LineItem `json:"order_items"`
	SubtotalAmount      Value      `json:"subtotal_amount,omitzero"`
	DeliveryFees        Value      `json:"delivery_fees,omitzero"`
	Discount            Value      `json:"discount,omitzero"`
	Total               Value      `json:"total,omitzero"`
}

// LineItem is one row of a receipt. It has no identity beyond its position.
type LineItem struct {
	ItemName Value `json:"item_name,omitzero"`
	Price    Value `json:"price,omitzero"`
	Quantity Value `json:"quantity,omitzero"`
}

// BlankItem is the row appended when staff add an item by hand.
func BlankItem() LineItem {
	return LineItem{
		ItemName: Of(""),
		Quantity: Of(float64(1)),
		Price:    Of(float64(0)),
	}
}

// Field returns a pointer to the named scalar field, or nil if the record has
// no scalar field with that name.
func (r *OrderRecord) Field(name string) *Value {
	switch name {
	case FieldOrderID:
		return &r.OrderID
	case FieldOrderDate:
		return &r.OrderDate
	case FieldCustomerName:
		return &r.CustomerName
	case FieldCustomerPhoneNumber:
		return &r.CustomerPhoneNumber
	case FieldSubtotalAmount:
		return &r.SubtotalAmount
	case FieldDeliveryFees:
		return &r.DeliveryFees
	case FieldDiscount:
		return &r.Discount
	case FieldTotal:
		return &r.Total
	}
	return nil
}

// Field returns a pointer to the named item field, or nil.
func (i *LineItem) Field(name string) *Value {
	switch name {
	case ItemFieldName:
		return &i.ItemName
	case ItemFieldPrice:
		return &i.Price
	case ItemFieldQuantity:
		return &i.Quantity
	}
	return nil
}

// LineTotal is price times quantity, used for display only.
func (i LineItem) LineTotal() float64 {
	return i.Price.Number() * i.Quantity.Number()
}

// Clone returns a copy that shares no item slice with r.
func (r OrderRecord) Clone() OrderRecord {
	out := r
	if r.OrderItems != nil {
		out.OrderItems = make([]LineItem, len(r.OrderItems))
		copy(out.OrderItems, r.OrderItems)
	}
	return out
}

// FormatCurrency renders an amount as "QAR 12.50", or "N/A" when it is not a
// number. Rounding happens here only; stored amounts are never rounded.
func FormatCurrency(v Value) string {
	if !v.Present || v.Raw == nil {
		return "N/A"
	}
	if s, ok := v.Raw.(string); ok && s == "" {
		return "N/A"
	}
	return FormatAmount(v.Number())
}

// FormatAmount renders a plain float the same way as FormatCurrency.
func FormatAmount(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "N/A"
	}
	return fmt.Sprintf("QAR %.2f", f)
}
