package service

import (
	"context"
	"log"

	"github.com/livite/outreach-backend/internal/clock"
	"github.com/livite/outreach-backend/internal/model"
	"github.com/livite/outreach-backend/internal/store"
)

// Cleanup runs the store-only terminal re-classifications: archiving queued
// emails for games that already happened, and marking past games Missed or
// No Response. These run every cycle regardless of mail health.
type Cleanup struct {
	Store store.RecordStore
	Clock clock.Clock

	// NoResponseDays is how long after the last contact a game waits
	// before being written off. Default 14.
	NoResponseDays int
}

type CleanupStats struct {
	Archived   int
	Missed     int
	NoResponse int
	Failed     int
}

func (c *Cleanup) Run(ctx context.Context) CleanupStats {
	var stats CleanupStats
	c.archiveExpired(ctx, &stats)
	c.markMissed(ctx, &stats)
	return stats
}

// archiveExpired drops Draft and Approved emails whose game date has
// passed. Nobody should approve or send outreach for a game that already
// happened.
func (c *Cleanup) archiveExpired(ctx context.Context, stats *CleanupStats) {
	now := c.Clock.Now()
	for _, status := range []model.MessageStatus{model.StatusDraft, model.StatusApproved} {
		msgs, err := store.QueryAll(ctx, c.Store, store.EntityEmailQueue, store.Query{Filter: store.Filter{All: []store.Cond{
			{Property: model.MessagePropStatus, Op: store.OpEquals, Value: store.Select(string(status))},
			{Property: model.MessagePropGameDate, Op: store.OpBefore, Value: store.Date(now)},
		}}})
		if err != nil {
			log.Println("⚠️ Failed to query expired emails:", err)
			stats.Failed++
			continue
		}
		for _, e := range msgs {
			msg := model.MessageFromEntity(e)
			if err := c.Store.Archive(ctx, msg.ID); err != nil {
				log.Printf("⚠️ Archiving expired email %s failed: %v", msg.Title, err)
				stats.Failed++
				continue
			}
			log.Printf("🗑 Archived expired %s email: %s", status, msg.Title)
			stats.Archived++
		}
	}
}

// markMissed re-classifies past games. Never contacted means Missed;
// contacted long ago with silence means No Response.
func (c *Cleanup) markMissed(ctx context.Context, stats *CleanupStats) {
	now := c.Clock.Now()

	past, err := store.QueryAll(ctx, c.Store, store.EntityGames, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.GamePropDate, Op: store.OpBefore, Value: store.Date(now)},
	}}})
	if err != nil {
		log.Println("⚠️ Failed to query past games:", err)
		stats.Failed++
		return
	}

	for _, e := range past {
		game := model.GameFromEntity(e)
		switch game.OutreachStatus {
		case model.OutreachNotContacted:
			if err := c.Store.Update(ctx, game.ID, store.Properties{
				model.GamePropOutreachStatus: store.Select(string(model.OutreachMissed)),
			}); err != nil {
				log.Printf("⚠️ Marking %s missed failed: %v", game.Title, err)
				stats.Failed++
				continue
			}
			log.Printf("Game %s marked Missed", game.Title)
			stats.Missed++
		case model.OutreachEmailSent:
			if game.LastContacted == nil {
				continue
			}
			if daysBetween(*game.LastContacted, now) < c.NoResponseDays {
				continue
			}
			if err := c.Store.Update(ctx, game.ID, store.Properties{
				model.GamePropOutreachStatus: store.Select(string(model.OutreachNoResponse)),
			}); err != nil {
				log.Printf("⚠️ Marking %s no-response failed: %v", game.Title, err)
				stats.Failed++
				continue
			}
			log.Printf("Game %s marked No Response", game.Title)
			stats.NoResponse++
		}
	}
}
