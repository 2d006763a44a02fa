// Package proximity ranks demo slots by how close they sit to the middle of
// the viewport.
package proximity

import (
	"math"
	"sort"

	"github.com/patrickwarner/embedpool/internal/models"
)

// Ranker orders slots for a reconcile pass. The pool depends on this
// interface so alternative policies can be swapped in for experiments.
type Ranker interface {
	Rank(slots []models.Slot, vp models.Viewport) []models.RankedSlot
}

// CenterRanker is the default Ranker: closest to the viewport center first,
// with document order breaking ties.
type CenterRanker struct{}

// Distance returns the absolute distance between the slot's vertical center
// and the viewport's vertical center.
func Distance(s models.Slot, vp models.Viewport) float64 {
	return math.Abs(vp.Center() - s.Center())
}

// Rank returns every slot with its distance, closest first. The input order
// is treated as document order, so equal distances keep that order.
func (CenterRanker) Rank(slots []models.Slot, vp models.Viewport) []models.RankedSlot {
	ranked := make([]models.RankedSlot, 0, len(slots))
	for _, s := range slots {
		ranked = append(ranked, models.RankedSlot{Slot: s.ID, Distance: Distance(s, vp)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})
	return ranked
}

// Winners returns the IDs of the first n ranked slots (fewer when there are
// not enough slots).
func Winners(ranked []models.RankedSlot, n int) []models.SlotID {
	if n > len(ranked) {
		n = len(ranked)
	}
	if n < 0 {
		n = 0
	}
	winners := make([]models.SlotID, n)
	for i := 0; i < n; i++ {
		winners[i] = ranked[i].Slot
	}
	return winners
}
