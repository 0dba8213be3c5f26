package models

// Credit amounts that must stay stable across releases.
// Both values are part of the product contract: the signup bonus is
// promised on the landing page and the premium removal price is shown
// in the editor before every run.
const (
	SignupBonusCredits = 5
	PremiumRemovalCost = 2
)
