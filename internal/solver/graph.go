package solver

import "sort"

// buildCandidates computes each participant's legal receiver list: everyone
// else minus excluded targets. Lists preserve the input participant order so
// the only randomness in the pipeline comes from the solver's shuffle.
//
// Returns KindInvalidInput for fewer than 3 participants or duplicate ids,
// and KindImpossible as soon as any participant has no legal receiver. The
// empty-set check is a cheap pre-pass; global infeasibility can still surface
// later from backtracking exhaustion.
func buildCandidates(participants []string, exclusions PairSet) (map[string][]string, error) {
	if len(participants) < 3 {
		return nil, invalidInputf("need at least 3 participants, got %d", len(participants))
	}

	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if _, dup := seen[p]; dup {
			return nil, invalidInputf("duplicate participant id %q", p)
		}
		seen[p] = struct{}{}
	}

	candidates := make(map[string][]string, len(participants))
	for _, giver := range participants {
		legal := make([]string, 0, len(participants)-1)
		for _, receiver := range participants {
			if receiver == giver {
				continue
			}
			if exclusions.Has(giver, receiver) {
				continue
			}
			legal = append(legal, receiver)
		}
		if len(legal) == 0 {
			return nil, impossiblef("no valid receivers for %s", giver)
		}
		candidates[giver] = legal
	}
	return candidates, nil
}

// orderMostConstrained sorts givers ascending by candidate count (minimum
// remaining values). The sort is stable: ties keep their input order, which
// the determinism contract depends on.
func orderMostConstrained(participants []string, candidates map[string][]string) []string {
	ordered := make([]string, len(participants))
	copy(ordered, participants)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(candidates[ordered[i]]) < len(candidates[ordered[j]])
	})
	return ordered
}
