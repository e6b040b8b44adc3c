package fees

// Member is the read-only roster view this core needs.
type Member struct {
	ID         string `json:"id"`
	CoachingID string `json:"coachingId"`
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Batch      string `json:"batch,omitempty"`
	Active     bool   `json:"active"`
}
