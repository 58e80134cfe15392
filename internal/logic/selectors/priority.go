package selectors

import (
	"sort"

	"github.com/patrickwarner/inappserve/internal/logic"
	"github.com/patrickwarner/inappserve/internal/models"
)

// PrioritySelector ranks campaigns by descending priority. The sort is
// stable, so campaigns of equal priority keep their payload order.
type PrioritySelector struct{}

func (PrioritySelector) Select(candidates []*models.Campaign) []*models.Campaign {
	ranked := make([]*models.Campaign, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority > ranked[j].Priority
	})
	return ranked
}

// SelectWithTrace ranks candidates with s and records the ranking on trace.
func SelectWithTrace(s Selector, candidates []*models.Campaign, trace *logic.SelectionTrace) []*models.Campaign {
	ranked := s.Select(candidates)
	trace.AddStep("ranked", ranked)
	return ranked
}
