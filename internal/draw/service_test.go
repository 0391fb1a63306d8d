package draw

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftloop/draw-engine/internal/solver"
	"github.com/giftloop/draw-engine/pkg/models"
)

// fakeStore is an in-memory stand-in for the Postgres store. Its
// SaveAssignments mimics the database's atomicity contract: the whole batch
// either lands or is rejected with models.ErrAssignmentsExist, guarded by the
// same (draw_id, giver_id) uniqueness the real schema enforces.
type fakeStore struct {
	mu          sync.Mutex
	members     []string
	exclusions  []models.Exclusion
	history     []solver.Pair
	historyHits int
	draws       map[string]models.Draw
	assignments map[string][]models.Assignment
}

func newFakeStore(members []string) *fakeStore {
	return &fakeStore{
		members:     members,
		draws:       make(map[string]models.Draw),
		assignments: make(map[string][]models.Assignment),
	}
}

func (f *fakeStore) addDraw(d models.Draw) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draws[d.ID] = d
}

func (f *fakeStore) ListActiveMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	return append([]string(nil), f.members...), nil
}

func (f *fakeStore) ListExclusions(ctx context.Context, groupID string) ([]models.Exclusion, error) {
	return f.exclusions, nil
}

func (f *fakeStore) RecentAssignmentPairs(ctx context.Context, groupID string, lookback int) ([]solver.Pair, error) {
	f.mu.Lock()
	f.historyHits++
	f.mu.Unlock()
	return f.history, nil
}

func (f *fakeStore) GetDraw(ctx context.Context, drawID string) (models.Draw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.draws[drawID]
	if !ok {
		return models.Draw{}, errors.New("draw not found")
	}
	return d, nil
}

func (f *fakeStore) MarkDrawFailed(ctx context.Context, drawID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.draws[drawID]
	d.Status = models.DrawStatusFailed
	f.draws[drawID] = d
	return nil
}

func (f *fakeStore) SaveAssignments(ctx context.Context, draw models.Draw, records []models.Assignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, ok := f.draws[draw.ID]
	if !ok {
		return errors.New("draw not found")
	}
	if current.Status != models.DrawStatusPending || len(f.assignments[draw.ID]) > 0 {
		return models.ErrAssignmentsExist
	}

	givers := make(map[string]bool, len(records))
	for _, rec := range records {
		if givers[rec.GiverID] {
			return models.ErrAssignmentsExist
		}
		givers[rec.GiverID] = true
	}

	f.assignments[draw.ID] = append([]models.Assignment(nil), records...)
	current.Status = models.DrawStatusCompleted
	f.draws[draw.ID] = current
	return nil
}

func newTestService(store *fakeStore) *Service {
	return NewService(store, store, store, store, store)
}

func TestExecuteDraw_Success(t *testing.T) {
	store := newFakeStore([]string{"alice", "bob", "carol", "dave"})
	store.exclusions = []models.Exclusion{
		{GiverID: "alice", ReceiverID: "bob", Mutual: true},
	}
	store.addDraw(models.Draw{ID: "d1", GroupID: "g1", Status: models.DrawStatusPending, Seed: "holiday-2026"})

	svc := newTestService(store)

	records, err := svc.ExecuteDraw(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, records, 4)

	mapping := make(map[string]string, len(records))
	for _, rec := range records {
		assert.Equal(t, "d1", rec.DrawID)
		assert.NotEqual(t, rec.GiverID, rec.ReceiverID)
		mapping[rec.GiverID] = rec.ReceiverID
	}
	assert.NotEqual(t, "bob", mapping["alice"], "manual exclusion violated")
	assert.NotEqual(t, "alice", mapping["bob"], "mutual expansion violated")

	d, err := store.GetDraw(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DrawStatusCompleted, d.Status)
	assert.Len(t, store.assignments["d1"], 4)
}

func TestExecuteDraw_HistoricalExclusions(t *testing.T) {
	store := newFakeStore([]string{"alice", "bob", "carol", "dave"})
	store.history = []solver.Pair{{Giver: "alice", Receiver: "bob"}}
	store.addDraw(models.Draw{ID: "d1", GroupID: "g1", Status: models.DrawStatusPending, Seed: "s", Lookback: 2})

	svc := newTestService(store)

	records, err := svc.ExecuteDraw(context.Background(), "d1")
	require.NoError(t, err)
	require.Equal(t, 1, store.historyHits, "history must be computed fresh for the solve")

	for _, rec := range records {
		if rec.GiverID == "alice" {
			assert.NotEqual(t, "bob", rec.ReceiverID, "historical pair repeated")
		}
	}
}

func TestExecuteDraw_ZeroLookbackSkipsHistory(t *testing.T) {
	store := newFakeStore([]string{"alice", "bob", "carol"})
	store.addDraw(models.Draw{ID: "d1", GroupID: "g1", Status: models.DrawStatusPending, Lookback: 0})

	svc := newTestService(store)

	_, err := svc.ExecuteDraw(context.Background(), "d1")
	require.NoError(t, err)
	assert.Zero(t, store.historyHits)
}

func TestExecuteDraw_InfeasibleMarksDrawFailed(t *testing.T) {
	store := newFakeStore([]string{"alice", "bob", "carol"})
	store.exclusions = []models.Exclusion{
		{GiverID: "alice", ReceiverID: "bob"},
		{GiverID: "alice", ReceiverID: "carol"},
	}
	store.addDraw(models.Draw{ID: "d1", GroupID: "g1", Status: models.DrawStatusPending})

	svc := newTestService(store)

	_, err := svc.ExecuteDraw(context.Background(), "d1")
	require.Error(t, err)
	assert.True(t, solver.IsImpossible(err))

	d, _ := store.GetDraw(context.Background(), "d1")
	assert.Equal(t, models.DrawStatusFailed, d.Status)
	assert.Empty(t, store.assignments["d1"])
}

func TestExecuteDraw_TooFewMembers(t *testing.T) {
	store := newFakeStore([]string{"alice", "bob"})
	store.addDraw(models.Draw{ID: "d1", GroupID: "g1", Status: models.DrawStatusPending})

	svc := newTestService(store)

	_, err := svc.ExecuteDraw(context.Background(), "d1")
	require.Error(t, err)
	assert.True(t, solver.IsInvalidInput(err))
}

func TestExecuteDraw_AlreadyCompleted(t *testing.T) {
	store := newFakeStore([]string{"alice", "bob", "carol"})
	store.addDraw(models.Draw{ID: "d1", GroupID: "g1", Status: models.DrawStatusCompleted})

	svc := newTestService(store)

	_, err := svc.ExecuteDraw(context.Background(), "d1")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAssignmentsExist)
}

// Two concurrent executions of the same draw: exactly one batch lands, the
// loser fails cleanly with the conflict sentinel and no partial writes. The
// fake sink enforces the same uniqueness the Postgres schema does.
func TestExecuteDraw_ConcurrentSingleWinner(t *testing.T) {
	store := newFakeStore([]string{"alice", "bob", "carol", "dave", "erin"})
	store.addDraw(models.Draw{ID: "d1", GroupID: "g1", Status: models.DrawStatusPending})

	svc := newTestService(store)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.ExecuteDraw(context.Background(), "d1")
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, models.ErrAssignmentsExist):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
	assert.Len(t, store.assignments["d1"], 5, "winner's batch must be complete, loser's absent")
}

func TestPreview_DoesNotPersist(t *testing.T) {
	store := newFakeStore([]string{"alice", "bob", "carol"})

	svc := newTestService(store)

	mapping, err := svc.Preview(context.Background(), "g1", "seed", 0)
	require.NoError(t, err)
	assert.Len(t, mapping, 3)
	assert.Empty(t, store.assignments)

	// Seeded previews are reproducible, matching what a later execution with
	// the same seed will produce.
	again, err := svc.Preview(context.Background(), "g1", "seed", 0)
	require.NoError(t, err)
	assert.Equal(t, mapping, again)
}
