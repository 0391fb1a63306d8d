// Package draw orchestrates the "execute draw" workflow: gather inputs from
// the CRUD layer, run the assignment solver, and hand the result to the
// persistence sink. The solver itself is pure; everything stateful lives
// behind the narrow interfaces below.
package draw

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/giftloop/draw-engine/internal/solver"
	"github.com/giftloop/draw-engine/pkg/models"
)

// MemberSource resolves the active participant ids of a group.
type MemberSource interface {
	ListActiveMemberIDs(ctx context.Context, groupID string) ([]string, error)
}

// ExclusionSource resolves the manual exclusion records of a group.
type ExclusionSource interface {
	ListExclusions(ctx context.Context, groupID string) ([]models.Exclusion, error)
}

// HistorySource resolves giver->receiver pairs from the most recent completed
// draws of a group, used as no-repeat constraints.
type HistorySource interface {
	RecentAssignmentPairs(ctx context.Context, groupID string, lookback int) ([]solver.Pair, error)
}

// AssignmentSink persists a generated assignment batch. Implementations MUST
// make the write atomic and first-writer-wins per draw — the engine assumes
// at most one invocation per draw id succeeds, and relies on the sink
// (a unique (draw_id, giver_id) constraint in the Postgres store) to reject
// a concurrent second batch with models.ErrAssignmentsExist and zero partial
// writes.
type AssignmentSink interface {
	SaveAssignments(ctx context.Context, draw models.Draw, records []models.Assignment) error
}

// DrawStore looks up and transitions draw rows.
type DrawStore interface {
	GetDraw(ctx context.Context, drawID string) (models.Draw, error)
	MarkDrawFailed(ctx context.Context, drawID, reason string) error
}

// solveTimeout bounds the backtracking search. Adversarial exclusion sets are
// exponential in the worst case; a stuck draw should fail, not pin a worker.
const solveTimeout = 15 * time.Second

type Service struct {
	members    MemberSource
	exclusions ExclusionSource
	history    HistorySource
	sink       AssignmentSink
	draws      DrawStore
}

func NewService(members MemberSource, exclusions ExclusionSource, history HistorySource, sink AssignmentSink, draws DrawStore) *Service {
	return &Service{
		members:    members,
		exclusions: exclusions,
		history:    history,
		sink:       sink,
		draws:      draws,
	}
}

// ExecuteDraw runs the full pipeline for one pending draw and returns the
// persisted assignments. Infeasible or invalid configurations mark the draw
// failed with the solver's diagnostic; losing a concurrent race surfaces
// models.ErrAssignmentsExist untouched so callers can treat it as a conflict.
func (s *Service) ExecuteDraw(ctx context.Context, drawID string) ([]models.Assignment, error) {
	d, err := s.draws.GetDraw(ctx, drawID)
	if err != nil {
		return nil, fmt.Errorf("failed to load draw %s: %w", drawID, err)
	}
	if d.Status != models.DrawStatusPending {
		return nil, fmt.Errorf("draw %s is %s, expected %s: %w", drawID, d.Status, models.DrawStatusPending, models.ErrAssignmentsExist)
	}

	mapping, err := s.solveForGroup(ctx, d.GroupID, d.Seed, d.Lookback)
	if err != nil {
		if solver.IsInvalidInput(err) || solver.IsImpossible(err) || solver.IsTimeout(err) {
			if markErr := s.draws.MarkDrawFailed(ctx, drawID, err.Error()); markErr != nil {
				log.Printf("[DRAW] Failed to mark draw %s failed: %v", drawID, markErr)
			}
		}
		return nil, err
	}

	records := solver.Materialize(mapping, drawID)
	if err := s.sink.SaveAssignments(ctx, d, records); err != nil {
		return nil, fmt.Errorf("failed to persist assignments for draw %s: %w", drawID, err)
	}

	log.Printf("[DRAW] Generated %d assignments for draw %s (group %s)", len(records), drawID, d.GroupID)
	return records, nil
}

// Preview solves for a group without touching any draw row — a dry run used
// by organizers to check feasibility before scheduling.
func (s *Service) Preview(ctx context.Context, groupID, seed string, lookback int) (map[string]string, error) {
	return s.solveForGroup(ctx, groupID, seed, lookback)
}

func (s *Service) solveForGroup(ctx context.Context, groupID, seed string, lookback int) (map[string]string, error) {
	participants, err := s.members.ListActiveMemberIDs(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members for group %s: %w", groupID, err)
	}

	manual, err := s.exclusions.ListExclusions(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exclusions for group %s: %w", groupID, err)
	}

	var history []solver.Pair
	if lookback > 0 {
		history, err = s.history.RecentAssignmentPairs(ctx, groupID, lookback)
		if err != nil {
			return nil, fmt.Errorf("failed to load assignment history for group %s: %w", groupID, err)
		}
	}

	exclusionSet := solver.BuildExclusionSet(manual, history)

	solveCtx, cancel := context.WithTimeout(ctx, solveTimeout)
	defer cancel()
	return solver.SolveContext(solveCtx, participants, exclusionSet, seed)
}
