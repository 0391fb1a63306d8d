package solver

import "github.com/giftloop/draw-engine/pkg/models"

// Pair is a forbidden giver->receiver direction.
type Pair struct {
	Giver    string
	Receiver string
}

// PairSet is the effective exclusion set consumed by the solver.
type PairSet map[Pair]struct{}

// Has reports whether the giver->receiver direction is excluded.
func (s PairSet) Has(giver, receiver string) bool {
	_, ok := s[Pair{Giver: giver, Receiver: receiver}]
	return ok
}

// Add inserts a single directed exclusion.
func (s PairSet) Add(giver, receiver string) {
	s[Pair{Giver: giver, Receiver: receiver}] = struct{}{}
}

// BuildExclusionSet flattens manual exclusion records and historical
// giver->receiver pairs into one directed set. Mutual records expand to both
// directions; historical pairs are inserted as-is, never mirrored. Unknown
// participant ids are not validated here — the candidate graph build catches
// them by producing an unreferenced key, and excess exclusions for absent
// members are simply never consulted.
func BuildExclusionSet(manual []models.Exclusion, history []Pair) PairSet {
	set := make(PairSet, len(manual)*2+len(history))
	for _, ex := range manual {
		set.Add(ex.GiverID, ex.ReceiverID)
		if ex.Mutual {
			set.Add(ex.ReceiverID, ex.GiverID)
		}
	}
	for _, p := range history {
		set[p] = struct{}{}
	}
	return set
}
