package service

import (
	"context"
	"fmt"
	"log"

	"github.com/livite/outreach-backend/internal/clock"
	"github.com/livite/outreach-backend/internal/model"
	"github.com/livite/outreach-backend/internal/store"
)

// FollowupScheduler drafts the next email in a sequence for games that were
// contacted but never answered.
type FollowupScheduler struct {
	Store     store.RecordStore
	Clock     clock.Clock
	Templates *Templates
	Admission *Admission

	// MaxSequenceSteps caps how many emails one game ever gets; default 3.
	MaxSequenceSteps int
	// FollowupIntervalDays is the fallback cadence when a template does not
	// set Days After Previous; default 7.
	FollowupIntervalDays int
}

type FollowupStats struct {
	Processed int
	Created   int
	Skipped   int
	Failed    int
}

func (f *FollowupScheduler) Run(ctx context.Context) FollowupStats {
	var stats FollowupStats
	now := f.Clock.Now()

	games, err := store.QueryAll(ctx, f.Store, store.EntityGames, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.GamePropOutreachStatus, Op: store.OpEquals, Value: store.Select(string(model.OutreachEmailSent))},
		{Property: model.GamePropFollowUpDate, Op: store.OpOnOrBefore, Value: store.Date(now)},
	}}})
	if err != nil {
		log.Println("⚠️ Failed to query follow-up games:", err)
		stats.Failed++
		return stats
	}
	if len(games) == 0 {
		return stats
	}
	log.Printf("Found %d game(s) due for follow-up", len(games))

	for _, e := range games {
		stats.Processed++
		game := model.GameFromEntity(e)
		if err := f.followupOne(ctx, game, &stats); err != nil {
			stats.Failed++
			log.Printf("⚠️ Follow-up for %s failed: %v", game.Title, err)
		}
	}
	return stats
}

func (f *FollowupScheduler) followupOne(ctx context.Context, game model.Game, stats *FollowupStats) error {
	now := f.Clock.Now()

	if game.Date != nil && game.Date.Before(now) {
		log.Printf("  Skipping %s: game date has passed", game.Title)
		stats.Skipped++
		return nil
	}
	if game.ContactID == "" {
		log.Printf("  Skipping %s: no contact linked", game.Title)
		stats.Skipped++
		return nil
	}
	contactEntity, err := f.Store.Get(ctx, game.ContactID)
	if err != nil {
		return fmt.Errorf("fetch contact: %w", err)
	}
	contact := model.ContactFromEntity(contactEntity)
	if contact.Email == "" {
		log.Printf("  Skipping %s: contact has no email", game.Title)
		stats.Skipped++
		return nil
	}

	sent, err := f.countDelivered(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("count sent emails: %w", err)
	}
	nextStep := sent + 1
	if sent >= f.MaxSequenceSteps {
		log.Printf("  Skipping %s: max follow-ups reached (%d)", game.Title, f.MaxSequenceSteps)
		stats.Skipped++
		return nil
	}

	pending, err := f.hasPending(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("check pending emails: %w", err)
	}
	if pending {
		log.Printf("  Skipping %s: draft already queued", game.Title)
		stats.Skipped++
		return nil
	}

	tpl, err := f.Templates.FindFollowup(ctx, game.Sport, nextStep)
	if err != nil {
		return fmt.Errorf("find template: %w", err)
	}
	if tpl == nil {
		log.Printf("  Skipping %s: no template available", game.Title)
		stats.Skipped++
		return nil
	}

	vars := TemplateVars(game, contact)
	subject := Render(tpl.SubjectLine, vars)
	body := Render(tpl.Body, vars)
	if err := ValidateRendered(subject, body); err != nil {
		return err
	}

	allowed, reason, err := f.Admission.MayContact(ctx, game, contact)
	if err != nil {
		return fmt.Errorf("admission check: %w", err)
	}

	if allowed {
		msg := model.Message{
			Title:      fmt.Sprintf("%s - follow-up %d", game.Title, nextStep),
			Subject:    subject,
			Body:       body,
			ToEmail:    contact.Email,
			Status:     model.StatusDraft,
			GameID:     game.ID,
			ContactID:  contact.ID,
			TemplateID: tpl.ID,
			GameDate:   game.Date,
			School:     game.AwaySchool,
			Sport:      game.Sport,
		}
		if _, err := f.Store.Create(ctx, store.EntityEmailQueue, msg.Properties()); err != nil {
			return fmt.Errorf("create follow-up draft: %w", err)
		}
		log.Printf("✅ Follow-up draft created for %s (step %d)", game.Title, nextStep)
		stats.Created++
	} else {
		log.Printf("  Follow-up for %s denied: %s", game.Title, reason)
		stats.Skipped++
	}

	// The follow-up slot is consumed whether the draft was created or
	// denied. Without this, a permanently blocked contact would be
	// re-evaluated every single cycle.
	next := now.Add(DaysAfter(tpl, f.FollowupIntervalDays))
	return f.Store.Update(ctx, game.ID, store.Properties{
		model.GamePropFollowUpDate: store.Date(next),
	})
}

// countDelivered counts emails for the game that made it out the door.
func (f *FollowupScheduler) countDelivered(ctx context.Context, gameID string) (int, error) {
	msgs, err := store.QueryAll(ctx, f.Store, store.EntityEmailQueue, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.MessagePropGame, Op: store.OpContains, Value: store.Relation(gameID)},
	}}})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range msgs {
		switch model.MessageStatus(e.Properties[model.MessagePropStatus].Text) {
		case model.StatusSent, model.StatusResponded, model.StatusBooked:
			count++
		}
	}
	return count, nil
}

func (f *FollowupScheduler) hasPending(ctx context.Context, gameID string) (bool, error) {
	msgs, err := store.QueryAll(ctx, f.Store, store.EntityEmailQueue, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.MessagePropGame, Op: store.OpContains, Value: store.Relation(gameID)},
	}}})
	if err != nil {
		return false, err
	}
	for _, e := range msgs {
		switch model.MessageStatus(e.Properties[model.MessagePropStatus].Text) {
		case model.StatusDraft, model.StatusApproved:
			return true, nil
		}
	}
	return false, nil
}
