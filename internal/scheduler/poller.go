// Package scheduler executes scheduled draws. A ticker loop polls for pending
// draws whose scheduled time has passed and runs each through the draw
// service; the persistence layer's first-writer-wins constraint makes it safe
// to run a poller per process without coordination.
package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/giftloop/draw-engine/internal/api"
	"github.com/giftloop/draw-engine/internal/db"
	"github.com/giftloop/draw-engine/internal/draw"
	"github.com/giftloop/draw-engine/pkg/models"
)

const pollInterval = 30 * time.Second

type Poller struct {
	store  *db.PostgresStore
	draws  *draw.Service
	notify func(api.DrawEvent)
}

func NewPoller(store *db.PostgresStore, draws *draw.Service, notify func(api.DrawEvent)) *Poller {
	return &Poller{store: store, draws: draws, notify: notify}
}

func (p *Poller) Run(ctx context.Context) {
	log.Println("Starting Scheduled Draw Poller...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Stopping Scheduled Draw Poller...")
			return
		case <-ticker.C:
			p.runDueDraws(ctx)
		}
	}
}

func (p *Poller) runDueDraws(ctx context.Context) {
	due, err := p.store.ListDueDraws(ctx, time.Now())
	if err != nil {
		log.Printf("[SCHEDULER] Failed to list due draws: %v", err)
		return
	}

	for _, d := range due {
		records, err := p.draws.ExecuteDraw(ctx, d.ID)
		if err != nil {
			// Another process may have picked up the same draw first; that
			// is the expected race outcome, not a failure.
			if errors.Is(err, models.ErrAssignmentsExist) {
				log.Printf("[SCHEDULER] Draw %s already executed elsewhere", d.ID)
				continue
			}
			log.Printf("[SCHEDULER] Draw %s failed: %v", d.ID, err)
			if p.notify != nil {
				p.notify(api.DrawEvent{
					Type:    "draw_failed",
					DrawID:  d.ID,
					GroupID: d.GroupID,
					Reason:  err.Error(),
				})
			}
			continue
		}

		log.Printf("[SCHEDULER] Executed scheduled draw %s (%d assignments)", d.ID, len(records))
		if p.notify != nil {
			p.notify(api.DrawEvent{
				Type:        "draw_completed",
				DrawID:      d.ID,
				GroupID:     d.GroupID,
				Assignments: len(records),
			})
		}
	}
}
