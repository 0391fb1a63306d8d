package solver

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/giftloop/draw-engine/pkg/models"
)

// Materialize converts a solved mapping into persistable assignment records
// sharing one creation timestamp. Records are emitted in giver order so the
// downstream batch insert is deterministic for a seeded solve.
//
// Materialize does not check whether the draw already has assignments — that
// idempotency guard lives at the persistence layer, where the unique
// (draw_id, giver_id) constraint makes the first writer win atomically.
func Materialize(mapping map[string]string, drawID string) []models.Assignment {
	givers := make([]string, 0, len(mapping))
	for giver := range mapping {
		givers = append(givers, giver)
	}
	sort.Strings(givers)

	now := time.Now().UTC()
	records := make([]models.Assignment, 0, len(mapping))
	for _, giver := range givers {
		records = append(records, models.Assignment{
			ID:         uuid.NewString(),
			DrawID:     drawID,
			GiverID:    giver,
			ReceiverID: mapping[giver],
			CreatedAt:  now,
		})
	}
	return records
}
