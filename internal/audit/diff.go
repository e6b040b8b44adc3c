package audit

import (
	"sort"
	"strings"
)

// ChangeKind classifies a diff row.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeChanged ChangeKind = "changed"
	ChangeInfo    ChangeKind = "info"
)

// DefaultCurrency prefixes currency fields.
const DefaultCurrency = "₹"

const noneText = "(none)"

// Change is one rendered diff row.
type Change struct {
	Field   string     `json:"field"`
	Label   string     `json:"label"`
	Kind    ChangeKind `json:"kind"`
	Old     Value      `json:"oldValue"`
	New     Value      `json:"newValue"`
	OldText string     `json:"oldText"`
	NewText string     `json:"newText"`
}

// Differ renders field-level diffs with a currency symbol.
type Differ struct {
	Currency string
}

// NewDiffer constructs a Differ; an empty symbol uses DefaultCurrency.
func NewDiffer(currency string) Differ {
	if strings.TrimSpace(currency) == "" {
		currency = DefaultCurrency
	}
	return Differ{Currency: currency}
}

// Diff renders the diff with the default currency.
func Diff(before, after, meta Fields) []Change {
	return NewDiffer("").Diff(before, after, meta)
}

// Diff compares before and after and appends meta as informational rows.
// Null and absent keys both mean no value. Known fields come first in label order,
// then unknown fields alphabetically, then meta rows sorted by key.
func (d Differ) Diff(before, after, meta Fields) []Change {
	keys := unionKeys(before, after)
	changes := make([]Change, 0, len(keys)+len(meta))
	for _, key := range keys {
		oldValue := before.Get(key)
		newValue := after.Get(key)
		if oldValue.Equal(newValue) {
			continue
		}
		kind := ChangeChanged
		switch {
		case oldValue.IsNull():
			kind = ChangeAdded
		case newValue.IsNull():
			kind = ChangeRemoved
		}
		changes = append(changes, Change{
			Field:   key,
			Label:   Label(key),
			Kind:    kind,
			Old:     oldValue,
			New:     newValue,
			OldText: d.Format(key, oldValue),
			NewText: d.Format(key, newValue),
		})
	}
	for _, key := range meta.Keys() {
		value := meta[key]
		changes = append(changes, Change{
			Field:   key,
			Label:   Label(key),
			Kind:    ChangeInfo,
			New:     value,
			NewText: d.Format(key, value),
		})
	}
	return changes
}

func unionKeys(before, after Fields) []string {
	seen := make(map[string]struct{}, len(before)+len(after))
	keys := make([]string, 0, len(before)+len(after))
	for _, fields := range []Fields{before, after} {
		for k := range fields {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, iKnown := fieldRank[keys[i]]
		rj, jKnown := fieldRank[keys[j]]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Format renders a value for display, applying unit formatting by field.
func (d Differ) Format(field string, v Value) string {
	switch v.Kind() {
	case KindNull:
		return noneText
	case KindString:
		return v.Str()
	case KindBool:
		if v.Truth() {
			return "Yes"
		}
		return "No"
	case KindNumber:
		switch {
		case isCurrency(field):
			return d.currency() + v.Num().StringFixed(2)
		case isPercent(field):
			return v.Num().String() + "%"
		}
		return v.Num().String()
	case KindList:
		if len(v.Items()) == 0 {
			return noneText
		}
		parts := make([]string, 0, len(v.Items()))
		for _, item := range v.Items() {
			if item.Kind() == KindObject {
				parts = append(parts, d.summarize(item.Fields()))
				continue
			}
			parts = append(parts, d.Format(field, item))
		}
		return strings.Join(parts, ", ")
	case KindObject:
		return d.summarize(v.Fields())
	}
	return ""
}

// summarize renders an object as "label (₹amount)" when it has those keys.
func (d Differ) summarize(fields Fields) string {
	label := ""
	for _, key := range summaryLabelKeys {
		if v := fields.Get(key); v.Kind() == KindString && v.Str() != "" {
			label = v.Str()
			break
		}
	}
	amount := fields.Get("amount")
	if label != "" && amount.Kind() == KindNumber {
		return label + " (" + d.Format("amount", amount) + ")"
	}
	if label != "" {
		return label
	}
	parts := make([]string, 0, len(fields))
	for _, key := range fields.Keys() {
		if fields[key].IsNull() {
			continue
		}
		parts = append(parts, Label(key)+": "+d.Format(key, fields[key]))
	}
	return strings.Join(parts, ", ")
}

func (d Differ) currency() string {
	if d.Currency == "" {
		return DefaultCurrency
	}
	return d.Currency
}
