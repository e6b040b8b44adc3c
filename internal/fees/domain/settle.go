package fees

// VerifyLive returns a ConflictError unless current holds exactly the expected live records
// with unchanged final, paid and waived amounts.
func VerifyLive(assignmentID string, current, expected []SettledRecord) error {
	want := make(map[string]SettledRecord, len(expected))
	for _, e := range expected {
		want[e.RecordID] = e
	}
	if len(current) != len(want) {
		return Conflict("live records of assignment %s changed since preview", assignmentID)
	}
	for _, c := range current {
		e, ok := want[c.RecordID]
		if !ok || !e.FinalAmount.Equal(c.FinalAmount) || !e.PaidAmount.Equal(c.PaidAmount) ||
			!e.WaivedAmount.Equal(c.WaivedAmount) {
			return Conflict("record %s changed since preview", c.RecordID)
		}
	}
	return nil
}

// Settled captures the state of a record for VerifyLive.
func (r FeeRecord) Settled() SettledRecord {
	return SettledRecord{
		RecordID:     r.ID,
		FinalAmount:  r.FinalAmount,
		PaidAmount:   r.PaidAmount,
		WaivedAmount: r.WaivedAmount,
	}
}
