package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/livite/outreach-backend/internal/clock"
	apperrors "github.com/livite/outreach-backend/internal/errors"
	"github.com/livite/outreach-backend/internal/model"
	"github.com/livite/outreach-backend/internal/store"
)

// DraftGenerator turns games flagged for outreach into queued draft emails.
type DraftGenerator struct {
	Store     store.RecordStore
	Clock     clock.Clock
	Templates *Templates
	Admission *Admission
}

type DraftStats struct {
	Processed int
	Created   int
	Skipped   int
	Failed    int
}

// Run picks up every game with the Create Draft flag set. The Draft
// Created stamp is the idempotency marker: it is written on success and on
// admission denial alike. A game re-flagged after it was already stamped
// is logged as a duplicate and has its flag cleared, so a stray check on a
// processed game never loops. Render failures leave the flag and stamp
// untouched so a fixed template gets retried.
func (d *DraftGenerator) Run(ctx context.Context) DraftStats {
	var stats DraftStats

	games, err := store.QueryAll(ctx, d.Store, store.EntityGames, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.GamePropCreateDraft, Op: store.OpEquals, Value: store.Checkbox(true)},
	}}})
	if err != nil {
		log.Println("⚠️ Failed to query flagged games:", err)
		stats.Failed++
		return stats
	}
	if len(games) == 0 {
		return stats
	}
	log.Printf("Found %d game(s) flagged for drafts", len(games))

	for _, e := range games {
		stats.Processed++
		game := model.GameFromEntity(e)
		if game.DraftCreated != nil {
			log.Printf("  Duplicate: draft already created for %s, clearing flag", game.Title)
			stats.Skipped++
			if err := d.Store.Update(ctx, game.ID, store.Properties{
				model.GamePropCreateDraft: store.Checkbox(false),
			}); err != nil {
				stats.Failed++
				log.Printf("⚠️ Clearing flag for %s failed: %v", game.Title, err)
			}
			continue
		}
		if err := d.draftOne(ctx, game, &stats); err != nil {
			stats.Failed++
			log.Printf("⚠️ Draft for %s failed: %v", game.Title, err)
			var renderErr *apperrors.TemplateRenderError
			if errors.As(err, &renderErr) || apperrors.IsValidation(err) {
				d.noteDraftError(ctx, game, err)
			}
		}
	}
	return stats
}

// Backfill drafts every Not Contacted game with a future date, flag or no
// flag. Used from -step=backfill to sweep a freshly imported schedule; the
// same stamp idempotency applies, so re-runs are safe.
func (d *DraftGenerator) Backfill(ctx context.Context) DraftStats {
	var stats DraftStats

	games, err := store.QueryAll(ctx, d.Store, store.EntityGames, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.GamePropOutreachStatus, Op: store.OpEquals, Value: store.Select(string(model.OutreachNotContacted))},
		{Property: model.GamePropDraftCreated, Op: store.OpIsEmpty},
	}}})
	if err != nil {
		log.Println("⚠️ Failed to query not-contacted games:", err)
		stats.Failed++
		return stats
	}
	if len(games) == 0 {
		return stats
	}
	log.Printf("Backfill: %d not-contacted game(s)", len(games))

	now := d.Clock.Now()
	for _, e := range games {
		game := model.GameFromEntity(e)
		if game.Date != nil && game.Date.Before(now) {
			continue
		}
		if game.ContactID == "" {
			// A schedule import without contacts is normal; these
			// wait until someone assigns one.
			stats.Skipped++
			continue
		}
		stats.Processed++
		if err := d.draftOne(ctx, game, &stats); err != nil {
			stats.Failed++
			log.Printf("⚠️ Backfill draft for %s failed: %v", game.Title, err)
			var renderErr *apperrors.TemplateRenderError
			if errors.As(err, &renderErr) || apperrors.IsValidation(err) {
				d.noteDraftError(ctx, game, err)
			}
		}
	}
	return stats
}

func (d *DraftGenerator) draftOne(ctx context.Context, game model.Game, stats *DraftStats) error {
	if game.ContactID == "" {
		return apperrors.NewValidation("contact", "game has no assigned contact")
	}
	contactEntity, err := d.Store.Get(ctx, game.ContactID)
	if err != nil {
		return fmt.Errorf("fetch contact: %w", err)
	}
	contact := model.ContactFromEntity(contactEntity)
	if contact.Email == "" {
		return apperrors.NewValidation("email", "contact has no email address")
	}

	seqType := model.SequenceCold
	if contact.Returning() {
		seqType = model.SequenceReturning
		log.Printf("  Returning contact, using Returning templates")
	}

	tpl, err := d.Templates.FindDraft(ctx, game.Sport, 1, seqType)
	if err != nil {
		return fmt.Errorf("find template: %w", err)
	}
	if tpl == nil {
		return apperrors.NewValidation("template", "no template available")
	}

	vars := TemplateVars(game, contact)
	subject := Render(tpl.SubjectLine, vars)
	body := Render(tpl.Body, vars)
	if err := ValidateRendered(subject, body); err != nil {
		return err
	}

	allowed, reason, err := d.Admission.MayContact(ctx, game, contact)
	if err != nil {
		return fmt.Errorf("admission check: %w", err)
	}

	now := d.Clock.Now()
	if !allowed {
		// A denial consumes the flag the same way a success does,
		// otherwise blocked games churn every cycle.
		log.Printf("  Skipping %s: %s", game.Title, reason)
		stats.Skipped++
		return d.Store.Update(ctx, game.ID, store.Properties{
			model.GamePropDraftCreated: store.Date(now),
			model.GamePropCreateDraft:  store.Checkbox(false),
			model.GamePropNotes:        store.Text(appendNote(game.Notes, fmt.Sprintf("[Draft Skipped %s] %s", now.Format("2006-01-02"), reason))),
		})
	}

	msg := model.Message{
		Title:      fmt.Sprintf("%s - %s", game.Title, contact.Name),
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
	if _, err := d.Store.Create(ctx, store.EntityEmailQueue, msg.Properties()); err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	if err := d.Store.Update(ctx, game.ID, store.Properties{
		model.GamePropDraftCreated: store.Date(now),
		model.GamePropCreateDraft:  store.Checkbox(false),
	}); err != nil {
		return fmt.Errorf("stamp game: %w", err)
	}

	log.Printf("✅ Draft created for %s (%s)", game.Title, contact.Email)
	stats.Created++
	return nil
}

// noteDraftError records a render or validation failure on the game so the
// operator sees why the flag is still set.
func (d *DraftGenerator) noteDraftError(ctx context.Context, game model.Game, cause error) {
	note := fmt.Sprintf("[Draft Error %s] %v", d.Clock.Now().Format("2006-01-02"), cause)
	err := d.Store.Update(ctx, game.ID, store.Properties{
		model.GamePropNotes: store.Text(appendNote(game.Notes, note)),
	})
	if err != nil {
		log.Println("⚠️ Failed to note draft error:", err)
	}
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
