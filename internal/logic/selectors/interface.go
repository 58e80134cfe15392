package selectors

import "github.com/patrickwarner/inappserve/internal/models"

// Selector ranks eligible campaigns. The first element of the result is the
// winner. Implementations must not modify the input slice.
type Selector interface {
	Select(candidates []*models.Campaign) []*models.Campaign
}

// Winner returns the head of a ranked list, or nil when it is empty.
func Winner(ranked []*models.Campaign) *models.Campaign {
	if len(ranked) == 0 {
		return nil
	}
	return ranked[0]
}
