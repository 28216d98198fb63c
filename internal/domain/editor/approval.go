package editor

import (
	"github.com/eshaffer321/receipt-desk/internal/domain/receipt"
)

// ApprovalItem is a line item as the orders service expects it.
type ApprovalItem struct {
	ItemName receipt.Value `json:"item_name,omitzero"`
	Price    receipt.Value `json:"price,omitzero"`
	Quantity receipt.Value `json:"quantity,omitzero"`
}

// ApprovalPayload is the body of an approve_order request.
type ApprovalPayload struct {
	CustomerName        receipt.Value  `json:"customer_name,omitzero"`
	CustomerPhoneNumber receipt.Value  `json:"customer_phone_number,omitzero"`
	OrderID             receipt.Value  `json:"order_id,omitzero"`
	OrderDate           receipt.Value  `json:"order_date,omitzero"`
	SubtotalAmount      receipt.Value  `json:"subtotal_amount,omitzero"`
	DeliveryFees        receipt.Value  `json:"delivery_fees"`
	Discount            receipt.Value  `json:"discount"`
	Total               receipt.Value  `json:"total,omitzero"`
	OrderItemList       []ApprovalItem `json:"order_item_list"`
	DeliveryPartner     string         `json:"delivery_partner"`
}

// ApprovalPayload maps the draft onto the wire shape. order_items becomes
// order_item_list, and falsy fees or discount are sent as 0.
func (e *Editor) ApprovalPayload(partner string) (ApprovalPayload, error) {
	if e.mode != ModeViewing {
		return ApprovalPayload{}, ErrNotViewing
	}
	return BuildApproval(e.draft, partner), nil
}

// BuildApproval maps a record onto the approval wire shape.
func BuildApproval(rec receipt.OrderRecord, partner string) ApprovalPayload {
	items := make([]ApprovalItem, 0, len(rec.OrderItems))
	for _, item := range rec.OrderItems {
		items = append(items, ApprovalItem{
			ItemName: item.ItemName,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}

	return ApprovalPayload{
		CustomerName:        rec.CustomerName,
		CustomerPhoneNumber: rec.CustomerPhoneNumber,
		OrderID:             rec.OrderID,
		OrderDate:           rec.OrderDate,
		SubtotalAmount:      rec.SubtotalAmount,
		DeliveryFees:        orZero(rec.DeliveryFees),
		Discount:            orZero(rec.Discount),
		Total:               rec.Total,
		OrderItemList:       items,
		DeliveryPartner:     partner,
	}
}

func orZero(v receipt.Value) receipt.Value {
	if !v.Truthy() {
		return receipt.Of(float64(0))
	}
	return v
}
