package ledger

// Balance is the caller-facing view of a user's credit state.
type Balance struct {
	FreeRemaining  int `json:"free_remaining"`
	Paid           int `json:"paid"`
	Bonus          int `json:"bonus"`
	TotalAvailable int `json:"total_available"`
}
