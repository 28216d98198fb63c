package receipt

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Number(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected float64
		nan      bool
	}{
		{name: "float", value: Of(10.5), expected: 10.5},
		{name: "int", value: Of(3), expected: 3},
		{name: "numeric string", value: Of("12.25"), expected: 12.25},
		{name: "padded string", value: Of("  7 "), expected: 7},
		{name: "empty string", value: Of(""), expected: 0},
		{name: "null", value: Of(nil), expected: 0},
		{name: "true", value: Of(true), expected: 1},
		{name: "false", value: Of(false), expected: 0},
		{name: "json number", value: Of(json.Number("4.5")), expected: 4.5},
		{name: "absent", value: Absent(), nan: true},
		{name: "garbage string", value: Of("ten"), nan: true},
		{name: "object", value: Of(map[string]any{"a": 1}), nan: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.value.Number()
			if tt.nan {
				assert.True(t, math.IsNaN(got), "expected NaN, got %v", got)
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValue_Truthy(t *testing.T) {
	assert.False(t, Absent().Truthy())
	assert.False(t, Of(nil).Truthy())
	assert.False(t, Of(0.0).Truthy())
	assert.False(t, Of("").Truthy())
	assert.False(t, Of(false).Truthy())
	assert.False(t, Of(math.NaN()).Truthy())

	assert.True(t, Of(3.0).Truthy())
	assert.True(t, Of("0").Truthy())
	assert.True(t, Of(true).Truthy())
}

func TestValue_JSON(t *testing.T) {
	t.Run("absent fields are omitted", func(t *testing.T) {
		rec := OrderRecord{OrderID: Of("A1"), OrderItems: []LineItem{}}

		data, err := json.Marshal(rec)
		require.NoError(t, err)

		assert.JSONEq(t, `{"order_id":"A1","order_items":[]}`, string(data))
	})

	t.Run("null is kept distinct from absent", func(t *testing.T) {
		var rec OrderRecord
		err := json.Unmarshal([]byte(`{"order_id":null,"order_items":[]}`), &rec)
		require.NoError(t, err)

		assert.True(t, rec.OrderID.Present)
		assert.True(t, rec.OrderID.IsNull())
		assert.False(t, rec.CustomerName.Present)
	})

	t.Run("NaN serializes as null", func(t *testing.T) {
		data, err := json.Marshal(Of(math.NaN()))
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))
	})

	t.Run("round trip keeps raw types", func(t *testing.T) {
		rec := OrderRecord{
			Total: Of("10"),
			OrderItems: []LineItem{
				{ItemName: Of("Rice"), Price: Of(10.0), Quantity: Of(2.0)},
			},
		}

		data, err := json.Marshal(rec)
		require.NoError(t, err)

		var back OrderRecord
		require.NoError(t, json.Unmarshal(data, &back))

		assert.Equal(t, "10", back.Total.Raw)
		assert.Equal(t, 10.0, back.OrderItems[0].Price.Raw)
		assert.False(t, back.Discount.Present)
	})
}

func TestFormatCurrency(t *testing.T) {
	assert.Equal(t, "QAR 12.50", FormatCurrency(Of(12.5)))
	assert.Equal(t, "QAR 3.00", FormatCurrency(Of("3")))
	assert.Equal(t, "N/A", FormatCurrency(Absent()))
	assert.Equal(t, "N/A", FormatCurrency(Of(nil)))
	assert.Equal(t, "N/A", FormatCurrency(Of("abc")))
	assert.Equal(t, "QAR 0.33", FormatAmount(1.0/3.0))
}

func TestOrderRecord_Field(t *testing.T) {
	var rec OrderRecord

	field := rec.Field(FieldCustomerName)
	require.NotNil(t, field)
	*field = Of("Jo")

	assert.Equal(t, "Jo", rec.CustomerName.Raw)
	assert.Nil(t, rec.Field(FieldOrderItems))
	assert.Nil(t, rec.Field("unknown"))
}

func TestLineItem_LineTotal(t *testing.T) {
	item := LineItem{Price: Of(2.5), Quantity: Of("4")}
	assert.Equal(t, 10.0, item.LineTotal())
}
