// Package reconciler maps OCR extraction payloads onto the canonical order
// record.
//
// The OCR backend does not commit to one naming convention, so each canonical
// field has an ordered list of accepted source keys. The first key present on
// the payload wins, even when its value is null or empty.
package reconciler

import (
	"github.com/eshaffer321/receipt-desk/internal/domain/receipt"
)

// FieldAliases lists the source keys accepted for one canonical field, in
// priority order.
type FieldAliases struct {
	Field string
	Keys  []string
}

// OrderFields is the alias table for scalar order fields.
var OrderFields = []FieldAliases{
	{Field: receipt.FieldOrderID, Keys: []string{"order_ID", "orderID", "order_id"}},
	{Field: receipt.FieldOrderDate, Keys: []string{"order_date", "orderDate"}},
	{Field: receipt.FieldCustomerName, Keys: []string{"customer_name", "customerName"}},
	{Field: receipt.FieldCustomerPhoneNumber, Keys: []string{"customer_phone_number", "customerPhoneNumber"}},
	{Field: receipt.FieldSubtotalAmount, Keys: []string{"subtotal_amount", "subtotalAmount"}},
	{Field: receipt.FieldDeliveryFees, Keys: []string{"delivery_fees", "deliveryFees"}},
	{Field: receipt.FieldDiscount, Keys: []string{"discount"}},
	{Field: receipt.FieldTotal, Keys: []string{"total", "totalAmount"}},
}

// ItemListKeys are the accepted keys for the line item list.
var ItemListKeys = []string{"order_item_list", "orderItemList", "orderItems", "order_items"}

// ItemFields is the alias table for line item fields.
var ItemFields = []FieldAliases{
	{Field: receipt.ItemFieldName, Keys: []string{"item_name", "itemName"}},
	{Field: receipt.ItemFieldQuantity, Keys: []string{"quantity"}},
	{Field: receipt.ItemFieldPrice, Keys: []string{"price"}},
}

// Lookup returns the value of the first key present in obj.
func Lookup(obj map[string]any, keys []string) receipt.Value {
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			return receipt.Of(v)
		}
	}
	return receipt.Absent()
}

// Reconcile builds an order record from a raw payload. It never fails:
// fields with no matching key are left absent.
func Reconcile(payload map[string]any) receipt.OrderRecord {
	var rec receipt.OrderRecord

	for _, fa := range OrderFields {
		*rec.Field(fa.Field) = Lookup(payload, fa.Keys)
	}

	rec.OrderItems = reconcileItems(Lookup(payload, ItemListKeys))
	return rec
}

func reconcileItems(list receipt.Value) []receipt.LineItem {
	raw, ok := list.Raw.([]any)
	if !list.Truthy() || !ok {
		return []receipt.LineItem{}
	}

	items := make([]receipt.LineItem, 0, len(raw))
	for _, entry := range raw {
		obj, _ := entry.(map[string]any)

		var item receipt.LineItem
		for _, fa := range ItemFields {
			*item.Field(fa.Field) = Lookup(obj, fa.Keys)
		}
		items = append(items, item)
	}
	return items
}
