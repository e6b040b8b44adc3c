package audit

// fieldLabels lists known fields in display order.
var fieldLabels = []struct {
	Key   string
	Label string
}{
	{"name", "Name"},
	{"description", "Description"},
	{"concern", "Fee concern"},
	{"feeStructureId", "Fee structure"},
	{"feeStructureName", "Fee structure name"},
	{"title", "Title"},
	{"amount", "Amount"},
	{"billingCycle", "Billing cycle"},
	{"lateFinePerDay", "Late fine per day"},
	{"taxType", "Tax type"},
	{"taxRate", "Tax rate"},
	{"cessRate", "Cess rate"},
	{"supplyType", "Supply type"},
	{"sacCode", "SAC code"},
	{"hsnCode", "HSN code"},
	{"lineItems", "Line items"},
	{"installmentsAllowed", "Installments allowed"},
	{"maxInstallments", "Max installments"},
	{"fixedInstallments", "Fixed installments"},
	{"isActive", "Active"},
	{"customAmount", "Custom amount"},
	{"discountAmount", "Discount"},
	{"discountReason", "Discount reason"},
	{"scholarshipTag", "Scholarship"},
	{"scholarshipAmount", "Scholarship amount"},
	{"installments", "Installments"},
	{"startDate", "Start date"},
	{"endDate", "End date"},
	{"status", "Status"},
	{"creditApplied", "Credit applied"},
	{"creditRemaining", "Credit remaining"},
	{"dueDate", "Due date"},
	{"finalAmount", "Final amount"},
	{"paidAmount", "Paid amount"},
	{"waivedAmount", "Waived amount"},
	{"balance", "Balance"},
	{"mode", "Mode"},
	{"transactionRef", "Transaction reference"},
	{"receiptNo", "Receipt number"},
	{"paidAt", "Paid on"},
	{"refundedAt", "Refunded on"},
	{"reason", "Reason"},
	{"totalPaid", "Total paid"},
	{"totalBalance", "Total balance"},
	{"recordCount", "Records"},
	{"memberCount", "Members affected"},
	{"succeededCount", "Succeeded"},
	{"failedCount", "Failed"},
	{"skippedCount", "Skipped"},
	{"notAttemptedCount", "Not attempted"},
	{"supersedePolicy", "Supersede policy"},
	{"channel", "Channel"},
}

var currencyFields = map[string]struct{}{
	"amount":            {},
	"lateFinePerDay":    {},
	"customAmount":      {},
	"discountAmount":    {},
	"scholarshipAmount": {},
	"creditApplied":     {},
	"creditRemaining":   {},
	"finalAmount":       {},
	"paidAmount":        {},
	"waivedAmount":      {},
	"balance":           {},
	"totalPaid":         {},
	"totalBalance":      {},
}

var percentFields = map[string]struct{}{
	"taxRate":  {},
	"cessRate": {},
}

// summaryLabelKeys are tried in order to name an object inside a list.
var summaryLabelKeys = []string{"label", "name", "title", "recordId"}

var (
	labelIndex = buildLabelIndex()
	fieldRank  = buildFieldRank()
)

func buildLabelIndex() map[string]string {
	out := make(map[string]string, len(fieldLabels))
	for _, f := range fieldLabels {
		out[f.Key] = f.Label
	}
	return out
}

func buildFieldRank() map[string]int {
	out := make(map[string]int, len(fieldLabels))
	for i, f := range fieldLabels {
		out[f.Key] = i
	}
	return out
}

// Label returns the display label of a field, the key itself when unknown.
func Label(field string) string {
	if label, ok := labelIndex[field]; ok {
		return label
	}
	return field
}

func isCurrency(field string) bool {
	_, ok := currencyFields[field]
	return ok
}

func isPercent(field string) bool {
	_, ok := percentFields[field]
	return ok
}
