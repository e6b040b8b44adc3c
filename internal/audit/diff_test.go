package audit

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var valueComparer = cmp.Comparer(func(a, b Value) bool { return a.Equal(b) })

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDiffClassifiesChanges(t *testing.T) {
	before := Fields{
		"name":           String("Monthly Tuition"),
		"amount":         Number(dec("1500")),
		"discountReason": String("sibling"),
		"zeta":           String("x"),
	}
	after := Fields{
		"name":           String("Monthly Tuition"),
		"amount":         Number(dec("1800.00")),
		"scholarshipTag": String("MERIT"),
		"zeta":           String("y"),
	}

	changes := Diff(before, after, nil)

	want := []Change{
		{Field: "amount", Label: "Amount", Kind: ChangeChanged, Old: Number(dec("1500")), New: Number(dec("1800")), OldText: "₹1500.00", NewText: "₹1800.00"},
		{Field: "discountReason", Label: "Discount reason", Kind: ChangeRemoved, Old: String("sibling"), New: Null(), OldText: "sibling", NewText: "(none)"},
		{Field: "scholarshipTag", Label: "Scholarship", Kind: ChangeAdded, Old: Null(), New: String("MERIT"), OldText: "(none)", NewText: "MERIT"},
		{Field: "zeta", Label: "zeta", Kind: ChangeChanged, Old: String("x"), New: String("y"), OldText: "x", NewText: "y"},
	}
	if diff := cmp.Diff(want, changes, valueComparer); diff != "" {
		t.Fatalf("diff mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffTreatsNullAndAbsentAlike(t *testing.T) {
	before := Fields{"endDate": Null(), "discountReason": Null()}
	after := Fields{}

	assert.Empty(t, Diff(before, after, nil))
	assert.Empty(t, Diff(after, before, nil))
	assert.Empty(t, Diff(nil, before, nil))
}

func TestDiffIsSymmetric(t *testing.T) {
	before := Fields{
		"amount":    Number(dec("1000")),
		"status":    String("ACTIVE"),
		"lineItems": List(Object(Fields{"label": String("Books"), "amount": Number(dec("200"))})),
		"endDate":   String("2026-12-31"),
	}
	after := Fields{
		"amount":         Number(dec("900")),
		"status":         String("ACTIVE"),
		"lineItems":      List(Object(Fields{"label": String("Books"), "amount": Number(dec("100"))})),
		"discountAmount": Number(dec("100")),
	}

	forward := Diff(before, after, nil)
	backward := Diff(after, before, nil)
	require.Len(t, backward, len(forward))

	swapped := map[ChangeKind]ChangeKind{ChangeAdded: ChangeRemoved, ChangeRemoved: ChangeAdded, ChangeChanged: ChangeChanged}
	for i, change := range forward {
		back := backward[i]
		assert.Equal(t, change.Field, back.Field)
		assert.Equal(t, swapped[change.Kind], back.Kind)
		assert.True(t, change.Old.Equal(back.New), "field %s", change.Field)
		assert.True(t, change.New.Equal(back.Old), "field %s", change.Field)
	}
}

func TestDiffComparesListsElementWise(t *testing.T) {
	a := Fields{"lineItems": List(String("a"), String("b"))}
	b := Fields{"lineItems": List(String("b"), String("a"))}
	c := Fields{"lineItems": List(String("a"), String("b"))}

	assert.Len(t, Diff(a, b, nil), 1)
	assert.Empty(t, Diff(a, c, nil))
}

func TestDiffAppendsMetaAsInfo(t *testing.T) {
	meta := Fields{"memberCount": Int(12), "failedCount": Int(1)}

	changes := Diff(Fields{"status": String("PAUSED")}, Fields{"status": String("ACTIVE")}, meta)

	require.Len(t, changes, 3)
	assert.Equal(t, ChangeChanged, changes[0].Kind)
	assert.Equal(t, "failedCount", changes[1].Field)
	assert.Equal(t, ChangeInfo, changes[1].Kind)
	assert.Equal(t, "Members affected", changes[2].Label)
	assert.Equal(t, "12", changes[2].NewText)
}

func TestFormat(t *testing.T) {
	d := NewDiffer("Rs ")
	tests := []struct {
		name  string
		field string
		value Value
		want  string
	}{
		{"currency", "paidAmount", Number(dec("250.5")), "Rs 250.50"},
		{"percent", "taxRate", Number(dec("18")), "18%"},
		{"plain number", "installments", Int(3), "3"},
		{"bool", "isActive", Bool(false), "No"},
		{"null", "endDate", Null(), "(none)"},
		{"empty list", "lineItems", List(), "(none)"},
		{"object list", "lineItems", List(
			Object(Fields{"label": String("Tuition"), "amount": Number(dec("800"))}),
			Object(Fields{"label": String("Lab"), "amount": Number(dec("200"))}),
		), "Tuition (Rs 800.00), Lab (Rs 200.00)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Format(tt.field, tt.value))
		})
	}
}

func TestValueJSONKeepsNumbersExact(t *testing.T) {
	var fields Fields
	require.NoError(t, fields.UnmarshalJSON([]byte(`{"amount":1234.10,"tags":["a",null],"ok":true,"nested":{"x":0.1}}`)))

	assert.True(t, fields.Get("amount").Num().Equal(dec("1234.1")))
	assert.Equal(t, KindList, fields.Get("tags").Kind())
	assert.True(t, fields.Get("tags").Items()[1].IsNull())
	assert.True(t, fields.Get("ok").Truth())
	assert.Equal(t, "0.1", fields.Get("nested").Fields().Get("x").Num().String())

	data, err := Object(fields).MarshalJSON()
	require.NoError(t, err)
	var again Fields
	require.NoError(t, again.UnmarshalJSON(data))
	assert.True(t, fields.Equal(again))
}
