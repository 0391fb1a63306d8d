// Package solver assigns every member of a group exactly one other member to
// gift, honoring directed exclusion constraints. The search is a randomized
// backtracking walk over a most-constrained-first ordering: candidate lists
// are shuffled per frame, so a seeded solve is fully reproducible while an
// unseeded one draws fresh entropy.
package solver

import "context"

// Solve computes a complete giver->receiver mapping over participants.
//
// On success the mapping is a total bijection with no fixed points and no
// pair from the exclusion set. A non-empty seed makes the result
// byte-identical across runs and processes for the same participant order
// and exclusion set; an empty seed uses system entropy.
func Solve(participants []string, exclusions PairSet, seed string) (map[string]string, error) {
	return SolveContext(context.Background(), participants, exclusions, seed)
}

// SolveContext is Solve with a deadline. The backtracking loop checks the
// context periodically and aborts with KindTimeout once it expires — worst
// case is exponential under adversarial exclusion sets and the MRV ordering
// only mitigates that, so bounded callers should pass a deadline.
func SolveContext(ctx context.Context, participants []string, exclusions PairSet, seed string) (map[string]string, error) {
	candidates, err := buildCandidates(participants, exclusions)
	if err != nil {
		return nil, err
	}
	ordered := orderMostConstrained(participants, candidates)
	rng := newRNG(seed)

	// Explicit stack instead of recursion: one frame per giver holding the
	// shuffled receivers not yet tried at this depth.
	type frame struct {
		options []string
		next    int
	}

	assignment := make(map[string]string, len(ordered))
	used := make(map[string]struct{}, len(ordered))
	stack := make([]frame, 0, len(ordered))

	push := func(giver string) {
		remaining := make([]string, 0, len(candidates[giver]))
		for _, r := range candidates[giver] {
			if _, taken := used[r]; !taken {
				remaining = append(remaining, r)
			}
		}
		// Shuffle at push time so randomness is consumed in traversal order,
		// keeping seeded runs reproducible.
		rng.Shuffle(len(remaining), func(i, j int) {
			remaining[i], remaining[j] = remaining[j], remaining[i]
		})
		stack = append(stack, frame{options: remaining})
	}

	push(ordered[0])
	for steps := 0; ; steps++ {
		if steps%1024 == 1023 {
			if ctx.Err() != nil {
				return nil, &DrawError{Kind: KindTimeout, Message: "assignment search deadline exceeded"}
			}
		}

		top := &stack[len(stack)-1]
		giver := ordered[len(stack)-1]

		// Undo the tentative pick from the previous visit to this frame.
		if prev, ok := assignment[giver]; ok {
			delete(assignment, giver)
			delete(used, prev)
		}

		if top.next >= len(top.options) {
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return nil, impossiblef("no valid assignment configuration possible")
			}
			continue
		}

		receiver := top.options[top.next]
		top.next++
		assignment[giver] = receiver
		used[receiver] = struct{}{}

		if len(stack) == len(ordered) {
			// First complete assignment wins; no exhaustive enumeration.
			return assignment, nil
		}
		push(ordered[len(stack)])
	}
}
