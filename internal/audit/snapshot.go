package audit

import (
	fees "coaching-fees/internal/fees/domain"
)

// StructureFields snapshots a fee structure.
func StructureFields(s fees.FeeStructure) Fields {
	items := make([]Value, 0, len(s.LineItems))
	for _, item := range s.LineItems {
		items = append(items, Object(Fields{"label": String(item.Label), "amount": Number(item.Amount)}))
	}
	fields := Fields{
		"name":                String(s.Name),
		"description":         OptString(s.Description),
		"concern":             String(s.Concern),
		"amount":              Number(s.Amount),
		"billingCycle":        String(string(s.BillingCycle)),
		"lateFinePerDay":      Number(s.LateFinePerDay),
		"taxType":             String(string(s.Tax.Type)),
		"lineItems":           List(items...),
		"installmentsAllowed": Bool(s.Installments.Allowed),
		"isActive":            Bool(s.IsActive),
	}
	if s.Tax.Type != fees.TaxNone {
		fields["taxRate"] = Number(s.Tax.Rate)
		fields["cessRate"] = Number(s.Tax.CessRate)
		fields["supplyType"] = OptString(s.Tax.SupplyType)
		fields["sacCode"] = OptString(s.Tax.SACCode)
		fields["hsnCode"] = OptString(s.Tax.HSNCode)
	}
	if s.Installments.Allowed {
		fields["maxInstallments"] = Int(s.Installments.MaxCount)
		fixed := make([]Value, 0, len(s.Installments.Fixed))
		for _, inst := range s.Installments.Fixed {
			fixed = append(fixed, Object(Fields{"label": String(inst.Label), "amount": Number(inst.Amount)}))
		}
		fields["fixedInstallments"] = List(fixed...)
	}
	return fields
}

// AssignmentFields snapshots an assignment.
func AssignmentFields(a fees.FeeAssignment) Fields {
	fields := Fields{
		"feeStructureId":    String(a.FeeStructureID),
		"concern":           String(a.Concern),
		"customAmount":      OptNumber(a.CustomAmount),
		"discountAmount":    Number(a.DiscountAmount),
		"discountReason":    OptString(a.DiscountReason),
		"scholarshipTag":    OptString(a.ScholarshipTag),
		"scholarshipAmount": Number(a.ScholarshipAmount),
		"startDate":         Date(a.StartDate),
		"endDate":           OptDate(a.EndDate),
		"status":            String(string(a.Status)),
	}
	if a.Installments > 1 {
		fields["installments"] = Int(a.Installments)
	}
	if a.CreditApplied.IsPositive() {
		fields["creditApplied"] = Number(a.CreditApplied)
		fields["creditRemaining"] = Number(a.CreditRemaining)
	}
	return fields
}

// RecordFields snapshots the settlement state of a record.
func RecordFields(r fees.FeeRecord) Fields {
	return Fields{
		"title":        String(r.Title),
		"dueDate":      Date(r.DueDate),
		"finalAmount":  Number(r.FinalAmount),
		"paidAmount":   Number(r.PaidAmount),
		"waivedAmount": Number(r.WaivedAmount),
		"status":       String(string(r.Status)),
	}
}

// PaymentFields snapshots a payment.
func PaymentFields(p fees.Payment) Fields {
	return Fields{
		"amount":         Number(p.Amount),
		"mode":           String(string(p.Mode)),
		"transactionRef": OptString(p.TransactionRef),
		"receiptNo":      String(p.ReceiptNo),
		"paidAt":         Date(p.PaidAt),
	}
}

// RefundFields snapshots a refund.
func RefundFields(r fees.Refund) Fields {
	return Fields{
		"amount":     Number(r.Amount),
		"mode":       String(string(r.Mode)),
		"reason":     OptString(r.Reason),
		"refundedAt": Date(r.RefundedAt),
	}
}

// WaiverFields snapshots a waiver.
func WaiverFields(w fees.Waiver) Fields {
	return Fields{
		"waivedAmount": Number(w.WaivedAmount),
		"reason":       String(w.Reason),
	}
}
