package campaigns

import "errors"

var (
	// ErrUnknownCampaign is returned when a campaign id is not in the current list.
	ErrUnknownCampaign = errors.New("unknown campaign")
	// ErrNotEligible is returned by manual display when a clause fails. The
	// wrapping error carries the reason.
	ErrNotEligible = errors.New("campaign not eligible")
)
