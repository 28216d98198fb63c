package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Email    string `json:"email" form:"email"`
}

// ApprovalListParams represents query parameters for listing approvals.
type ApprovalListParams struct {
	Partner string `json:"partner"`
	Mine    bool   `json:"mine"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
}

// DefaultApprovalListParams returns default values for approval list params.
func DefaultApprovalListParams() ApprovalListParams {
	return ApprovalListParams{
		Limit: 50,
	}
}

var errFieldsNotObject = errors.New("field edits must be a JSON object")

// FieldEdits is a JSON object of field edits. Keys keep the order they were
// sent in, so edits apply the way the page made them.
type FieldEdits struct {
	Values map[string]any
	Order  []string
}

// Len returns the number of edits.
func (f FieldEdits) Len() int {
	return len(f.Order)
}

func (f *FieldEdits) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errFieldsNotObject
	}

	f.Values = make(map[string]any)
	f.Order = f.Order[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		if _, seen := f.Values[key]; !seen {
			f.Order = append(f.Order, key)
		}
		f.Values[key] = v
	}
	_, err = dec.Token()
	return err
}
