// Package editor implements the review state machine for a draft order.
//
// A draft starts in viewing mode. Staff switch to editing, change fields and
// line items, and save back to viewing. Approval is only possible while
// viewing. Every change to items, delivery fees or discount recalculates the
// subtotal and total.
package editor

import (
	"errors"
	"fmt"

	"github.com/eshaffer321/receipt-desk/internal/domain/receipt"
	"github.com/eshaffer321/receipt-desk/internal/domain/totals"
)

// Mode is the presentation mode of a draft.
type Mode string

const (
	ModeViewing Mode = "viewing"
	ModeEditing Mode = "editing"
)

var (
	ErrNotEditing    = errors.New("draft is not in editing mode")
	ErrNotViewing    = errors.New("draft is in editing mode")
	ErrUnknownField  = errors.New("unknown field")
	ErrReadOnlyField = errors.New("field is derived and cannot be edited")
	ErrItemIndex     = errors.New("item index out of range")
	ErrInvalidMode   = errors.New("invalid editor mode")
)

// editableFields are the order fields staff may overwrite while editing.
var editableFields = map[string]bool{
	receipt.FieldCustomerName:        true,
	receipt.FieldCustomerPhoneNumber: true,
	receipt.FieldOrderID:             true,
	receipt.FieldOrderDate:           true,
	receipt.FieldDeliveryFees:        true,
	receipt.FieldDiscount:            true,
}

// Editor holds one draft and its mode.
type Editor struct {
	mode  Mode
	draft receipt.OrderRecord
}

// New returns an editor in viewing mode over draft.
func New(draft receipt.OrderRecord) *Editor {
	return &Editor{mode: ModeViewing, draft: draft.Clone()}
}

// Restore rebuilds an editor from persisted state.
func Restore(mode Mode, draft receipt.OrderRecord) (*Editor, error) {
	if mode != ModeViewing && mode != ModeEditing {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	return &Editor{mode: mode, draft: draft.Clone()}, nil
}

// Mode returns the current mode.
func (e *Editor) Mode() Mode {
	return e.mode
}

// Draft returns a copy of the current draft.
func (e *Editor) Draft() receipt.OrderRecord {
	return e.draft.Clone()
}

// BeginEdit switches from viewing to editing. The draft is unchanged.
func (e *Editor) BeginEdit() error {
	if e.mode != ModeViewing {
		return ErrNotViewing
	}
	e.mode = ModeEditing
	return nil
}

// SetField replaces an order field with raw. Fee and discount edits also
// recalculate the totals.
func (e *Editor) SetField(name string, raw any) error {
	if e.mode != ModeEditing {
		return ErrNotEditing
	}

	field := e.draft.Field(name)
	if field == nil {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if !editableFields[name] {
		return fmt.Errorf("%w: %s", ErrReadOnlyField, name)
	}

	*field = receipt.Of(raw)

	if name == receipt.FieldDeliveryFees || name == receipt.FieldDiscount {
		totals.Apply(&e.draft)
	}
	return nil
}

// ChangeItem replaces one field of the item at index and recalculates.
func (e *Editor) ChangeItem(index int, name string, raw any) error {
	if e.mode != ModeEditing {
		return ErrNotEditing
	}
	if index < 0 || index >= len(e.draft.OrderItems) {
		return fmt.Errorf("%w: %d", ErrItemIndex, index)
	}

	items := make([]receipt.LineItem, len(e.draft.OrderItems))
	copy(items, e.draft.OrderItems)

	field := items[index].Field(name)
	if field == nil {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	*field = receipt.Of(raw)

	e.draft.OrderItems = items
	totals.Apply(&e.draft)
	return nil
}

// AddItem appends a blank row and recalculates.
func (e *Editor) AddItem() error {
	if e.mode != ModeEditing {
		return ErrNotEditing
	}

	e.draft.OrderItems = append(e.draft.Clone().OrderItems, receipt.BlankItem())
	totals.Apply(&e.draft)
	return nil
}

// RemoveItem drops the row at index and recalculates.
func (e *Editor) RemoveItem(index int) error {
	if e.mode != ModeEditing {
		return ErrNotEditing
	}
	if index < 0 || index >= len(e.draft.OrderItems) {
		return fmt.Errorf("%w: %d", ErrItemIndex, index)
	}

	items := make([]receipt.LineItem, 0, len(e.draft.OrderItems)-1)
	items = append(items, e.draft.OrderItems[:index]...)
	items = append(items, e.draft.OrderItems[index+1:]...)

	e.draft.OrderItems = items
	totals.Apply(&e.draft)
	return nil
}

// Save switches back to viewing and returns the full draft for the owner to
// keep. Nothing is submitted.
func (e *Editor) Save() (receipt.OrderRecord, error) {
	if e.mode != ModeEditing {
		return receipt.OrderRecord{}, ErrNotEditing
	}
	e.mode = ModeViewing
	return e.draft.Clone(), nil
}
