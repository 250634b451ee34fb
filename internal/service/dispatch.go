package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/livite/outreach-backend/internal/clock"
	apperrors "github.com/livite/outreach-backend/internal/errors"
	"github.com/livite/outreach-backend/internal/mail"
	"github.com/livite/outreach-backend/internal/model"
	"github.com/livite/outreach-backend/internal/queue"
	"github.com/livite/outreach-backend/internal/store"
)

// Dispatcher sends approved emails under a per-cycle cap.
type Dispatcher struct {
	Store  store.RecordStore
	Mail   mail.Provider
	Clock  clock.Clock
	Events queue.Publisher

	// MaxSendsPerCycle is the backpressure valve; messages past the cap
	// stay Approved and go out next cycle. Default 10.
	MaxSendsPerCycle int
	// SendDelay is the pause between successful sends. Default 3s.
	SendDelay time.Duration
	// FollowupIntervalDays sets the game's next follow-up date after a
	// send. Default 7.
	FollowupIntervalDays int
}

type DispatchStats struct {
	Processed int
	Sent      int
	Failed    int
	Deferred  int
	// AuthFailed means the provider rejected our credentials mid-batch.
	// The remaining messages stay Approved for the next run.
	AuthFailed bool
}

func (d *Dispatcher) Run(ctx context.Context) DispatchStats {
	var stats DispatchStats

	approved, err := store.QueryAll(ctx, d.Store, store.EntityEmailQueue, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.MessagePropStatus, Op: store.OpEquals, Value: store.Select(string(model.StatusApproved))},
	}}})
	if err != nil {
		log.Println("⚠️ Failed to query approved emails:", err)
		stats.Failed++
		return stats
	}
	if len(approved) == 0 {
		return stats
	}

	batch := approved
	if len(batch) > d.MaxSendsPerCycle {
		batch = batch[:d.MaxSendsPerCycle]
		stats.Deferred = len(approved) - d.MaxSendsPerCycle
		log.Printf("Sending %d of %d approved email(s), %d deferred to next cycle", len(batch), len(approved), stats.Deferred)
	} else {
		log.Printf("Sending %d approved email(s)", len(batch))
	}

	for i, e := range batch {
		stats.Processed++
		msg := model.MessageFromEntity(e)
		sent, err := d.sendOne(ctx, msg)
		if err != nil {
			if apperrors.IsAuth(err) {
				// Credentials are gone; nothing else in the batch
				// can send. Everything not yet attempted stays
				// Approved.
				log.Println("⚠️ Mail auth failed, aborting send batch:", err)
				stats.AuthFailed = true
				break
			}
			stats.Failed++
			log.Printf("⚠️ Send %s failed: %v", msg.Title, err)
			continue
		}
		if sent {
			stats.Sent++
			if i < len(batch)-1 {
				d.Clock.Sleep(d.SendDelay)
			}
		} else {
			stats.Failed++
		}
	}
	return stats
}

// sendOne returns (false, nil) when the message failed validation or the
// provider rejected it; the message is marked Failed either way and the
// batch continues.
func (d *Dispatcher) sendOne(ctx context.Context, msg model.Message) (bool, error) {
	if reason := validateSendable(msg); reason != "" {
		log.Printf("  Marking %s Failed: %s", msg.Title, reason)
		return false, d.markFailed(ctx, msg.ID, reason)
	}

	res, err := d.Mail.Send(ctx, msg.ToEmail, msg.Subject, msg.Body, "")
	if err != nil {
		// An auth failure is ours, not the message's. Failed is
		// terminal, so the message must stay Approved.
		if apperrors.IsAuth(err) {
			return false, err
		}
		if markErr := d.markFailed(ctx, msg.ID, err.Error()); markErr != nil {
			return false, fmt.Errorf("send failed (%v), marking failed also failed: %w", err, markErr)
		}
		return false, nil
	}

	now := d.Clock.Now()
	err = d.Store.Update(ctx, msg.ID, store.Properties{
		model.MessagePropStatus:            store.Select(string(model.StatusSent)),
		model.MessagePropSentAt:            store.Date(now),
		model.MessagePropProviderMessageID: store.Text(res.MessageID),
		model.MessagePropProviderThreadID:  store.Text(res.ThreadID),
	})
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}

	if err := d.updateGameAfterSend(ctx, msg, now); err != nil {
		log.Printf("⚠️ Sent but game update failed for %s: %v", msg.Title, err)
	}
	if err := d.updateContactAfterSend(ctx, msg, now); err != nil {
		log.Printf("⚠️ Sent but contact update failed for %s: %v", msg.Title, err)
	}

	d.Events.PublishSend(queue.SendEvent{
		MessageID: msg.ID,
		GameID:    msg.GameID,
		School:    msg.School,
		Sport:     msg.Sport,
		SentAt:    now,
	})
	log.Printf("✅ Sent %s to %s", msg.Title, msg.ToEmail)
	return true, nil
}

func validateSendable(msg model.Message) string {
	switch {
	case msg.ToEmail == "":
		return "no recipient email"
	case msg.Subject == "":
		return "empty subject"
	case msg.Body == "":
		return "empty body"
	}
	return ""
}

func (d *Dispatcher) markFailed(ctx context.Context, id, reason string) error {
	return d.Store.Update(ctx, id, store.Properties{
		model.MessagePropStatus:        store.Select(string(model.StatusFailed)),
		model.MessagePropResponseNotes: store.Text("Send failed: " + reason),
	})
}

func (d *Dispatcher) updateGameAfterSend(ctx context.Context, msg model.Message, now time.Time) error {
	if msg.GameID == "" {
		return nil
	}
	gameEntity, err := d.Store.Get(ctx, msg.GameID)
	if err != nil {
		return err
	}
	game := model.GameFromEntity(gameEntity)

	props := store.Properties{
		model.GamePropLastContacted: store.Date(now),
		model.GamePropFollowUpDate:  store.Date(now.Add(time.Duration(d.FollowupIntervalDays) * 24 * time.Hour)),
	}
	// A follow-up to a game that already responded must not reset the
	// funnel; only the contact stamps move.
	if !game.OutreachStatus.MoreAdvancedThan(model.OutreachEmailSent) {
		props[model.GamePropOutreachStatus] = store.Select(string(model.OutreachEmailSent))
	}
	if game.FirstContacted == nil {
		props[model.GamePropFirstContacted] = store.Date(now)
	}
	return d.Store.Update(ctx, msg.GameID, props)
}

func (d *Dispatcher) updateContactAfterSend(ctx context.Context, msg model.Message, now time.Time) error {
	if msg.ContactID == "" {
		return nil
	}
	contactEntity, err := d.Store.Get(ctx, msg.ContactID)
	if err != nil {
		return err
	}
	contact := model.ContactFromEntity(contactEntity)

	props := store.Properties{
		model.ContactPropLastEmailed: store.Date(now),
	}
	if contact.FirstEmailed == nil {
		props[model.ContactPropFirstEmailed] = store.Date(now)
	}
	return d.Store.Update(ctx, msg.ContactID, props)
}
