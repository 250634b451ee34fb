package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/livite/outreach-backend/internal/clock"
	apperrors "github.com/livite/outreach-backend/internal/errors"
	"github.com/livite/outreach-backend/internal/mirror"
	"github.com/livite/outreach-backend/internal/model"
	"github.com/livite/outreach-backend/internal/store"
)

// UndoEngine walks back what the forward pipeline did: orders, mirrored
// orders, statuses, cooldown stamps. Every forward side effect has a
// compensation here.
type UndoEngine struct {
	Store  store.RecordStore
	Mirror mirror.Client // nil when the dashboard is not configured
	State  *LocalState
	Clock  clock.Clock
}

type UndoStats struct {
	Orders    int
	Outreach  int
	Dashboard int
	Failed    int
}

func (u *UndoEngine) Run(ctx context.Context) UndoStats {
	var stats UndoStats
	u.runUndoOrders(ctx, &stats)
	u.runUndoOutreach(ctx, &stats)
	u.runDashboardUndo(ctx, &stats)
	return stats
}

// runUndoOrders handles the "Undo Order" flag: the order goes away, the
// email and game drop back to Responded.
func (u *UndoEngine) runUndoOrders(ctx context.Context, stats *UndoStats) {
	flagged, err := u.flaggedEmails(ctx, model.MessagePropUndoOrder)
	if err != nil {
		log.Println("⚠️ Failed to query undo-order flags:", err)
		stats.Failed++
		return
	}
	if len(flagged) == 0 {
		return
	}
	log.Printf("Found %d email(s) flagged for order undo", len(flagged))

	for _, msg := range flagged {
		if msg.GameID == "" {
			u.clearOrphanFlag(ctx, msg.ID, model.MessagePropUndoOrder, stats)
			continue
		}
		u.undoOrderCascade(ctx, msg.GameID)

		err := u.Store.Update(ctx, msg.ID, store.Properties{
			model.MessagePropStatus:    store.Select(string(model.StatusResponded)),
			model.MessagePropUndoOrder: store.Checkbox(false),
		})
		if err != nil {
			log.Printf("⚠️ Reverting email %s failed: %v", msg.Title, err)
			stats.Failed++
			continue
		}
		if err := u.Store.Update(ctx, msg.GameID, store.Properties{
			model.GamePropOutreachStatus: store.Select(string(model.OutreachResponded)),
		}); err != nil {
			log.Printf("⚠️ Reverting game for %s failed: %v", msg.Title, err)
			stats.Failed++
			continue
		}
		log.Printf("↩️ Order undone for %s", msg.Title)
		stats.Orders++
	}
}

// runUndoOutreach handles the "Undo Outreach" flag: the full reversal. A
// Booked email first gets the order cascade, then the contact cooldown is
// cleared, the game returns to Not Contacted with a fresh draft slot, and
// the email itself is archived so admission control stops counting it.
func (u *UndoEngine) runUndoOutreach(ctx context.Context, stats *UndoStats) {
	flagged, err := u.flaggedEmails(ctx, model.MessagePropUndoOutreach)
	if err != nil {
		log.Println("⚠️ Failed to query undo-outreach flags:", err)
		stats.Failed++
		return
	}
	if len(flagged) == 0 {
		return
	}
	log.Printf("Found %d email(s) flagged for outreach undo", len(flagged))

	for _, msg := range flagged {
		if msg.Status == model.StatusBooked && msg.GameID != "" {
			log.Printf("  %s is Booked, undoing order first", msg.Title)
			u.undoOrderCascade(ctx, msg.GameID)
		}

		if msg.ContactID != "" {
			if err := u.Store.Update(ctx, msg.ContactID, store.Properties{
				model.ContactPropLastEmailed: store.EmptyDate(),
			}); err != nil {
				log.Printf("⚠️ Clearing Last Emailed for %s failed: %v", msg.Title, err)
			}
		}

		if msg.GameID != "" {
			if err := u.Store.Update(ctx, msg.GameID, store.Properties{
				model.GamePropOutreachStatus: store.Select(string(model.OutreachNotContacted)),
				model.GamePropDraftCreated:   store.EmptyDate(),
				model.GamePropFollowUpDate:   store.EmptyDate(),
			}); err != nil {
				log.Printf("⚠️ Resetting game for %s failed: %v", msg.Title, err)
				stats.Failed++
				continue
			}
		}

		if err := u.Store.Archive(ctx, msg.ID); err != nil {
			log.Printf("⚠️ Archiving email %s failed: %v", msg.Title, err)
			stats.Failed++
			continue
		}
		log.Printf("↩️ Outreach undone for %s", msg.Title)
		stats.Outreach++
	}
}

// runDashboardUndo picks up undo requests made from the dashboard side. The
// mapping file is the only way back from a mirrored order to the game; each
// entry is polled for the dashboard's Undo checkbox.
func (u *UndoEngine) runDashboardUndo(ctx context.Context, stats *UndoStats) {
	if u.Mirror == nil {
		return
	}
	mapping, err := u.State.Mapping()
	if err != nil {
		log.Println("⚠️ Failed to read order mapping:", err)
		stats.Failed++
		return
	}

	for gameID, mirrorID := range mapping {
		state, err := u.Mirror.GetOrder(ctx, mirrorID)
		if errors.Is(err, apperrors.ErrNotFound) {
			// Deleted upstream; nothing left to reverse.
			u.State.DeleteMapping(gameID)
			continue
		}
		if err != nil {
			log.Printf("⚠️ Dashboard order %s check failed: %v", mirrorID, err)
			stats.Failed++
			continue
		}
		if !state.Undo {
			continue
		}

		log.Printf("Dashboard undo requested for game %s", gameID)
		u.undoOrderCascade(ctx, gameID)

		msg, err := u.bookedEmailForGame(ctx, gameID)
		if err != nil {
			log.Printf("⚠️ Finding booked email for game %s failed: %v", gameID, err)
			stats.Failed++
			continue
		}
		if msg != nil {
			if err := u.Store.Update(ctx, msg.ID, store.Properties{
				model.MessagePropStatus: store.Select(string(model.StatusResponded)),
			}); err != nil {
				log.Printf("⚠️ Reverting email %s failed: %v", msg.Title, err)
			}
		}
		if err := u.Store.Update(ctx, gameID, store.Properties{
			model.GamePropOutreachStatus: store.Select(string(model.OutreachResponded)),
		}); err != nil {
			log.Printf("⚠️ Reverting game %s failed: %v", gameID, err)
			stats.Failed++
			continue
		}
		stats.Dashboard++
	}
}

// undoOrderCascade removes every order artifact for a game: the pending
// file entry, the mirrored dashboard order, the mapping entry, and the
// primary order records. Each leg is independent; a missing artifact is not
// an error.
func (u *UndoEngine) undoOrderCascade(ctx context.Context, gameID string) {
	removed, err := u.State.RemovePendingOrder(gameID)
	if err != nil {
		log.Println("⚠️ Pending order removal failed:", err)
	} else if removed {
		log.Println("  Removed pending dashboard order")
	}

	mirrorID, err := u.State.MirrorID(gameID)
	if err != nil {
		log.Println("⚠️ Mapping read failed:", err)
	} else if mirrorID != "" && u.Mirror != nil {
		if err := u.Mirror.ArchiveOrder(ctx, mirrorID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("⚠️ Archiving dashboard order %s failed: %v", mirrorID, err)
		} else {
			log.Println("  Archived dashboard order")
		}
		if err := u.State.DeleteMapping(gameID); err != nil {
			log.Println("⚠️ Mapping delete failed:", err)
		}
	}

	orders, err := store.QueryAll(ctx, u.Store, store.EntityOrders, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.OrderPropGame, Op: store.OpContains, Value: store.Relation(gameID)},
	}}})
	if err != nil {
		log.Println("⚠️ Order lookup failed:", err)
		return
	}
	for _, o := range orders {
		if err := u.Store.Archive(ctx, o.ID); err != nil {
			log.Printf("⚠️ Archiving order %s failed: %v", o.ID, err)
		} else {
			log.Printf("  Archived order %s", o.ID)
		}
	}
}

func (u *UndoEngine) flaggedEmails(ctx context.Context, flagProp string) ([]model.Message, error) {
	entities, err := store.QueryAll(ctx, u.Store, store.EntityEmailQueue, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: flagProp, Op: store.OpEquals, Value: store.Checkbox(true)},
	}}})
	if err != nil {
		return nil, err
	}
	msgs := make([]model.Message, 0, len(entities))
	for _, e := range entities {
		msgs = append(msgs, model.MessageFromEntity(e))
	}
	return msgs, nil
}

func (u *UndoEngine) bookedEmailForGame(ctx context.Context, gameID string) (*model.Message, error) {
	entities, err := store.QueryAll(ctx, u.Store, store.EntityEmailQueue, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.MessagePropGame, Op: store.OpContains, Value: store.Relation(gameID)},
		{Property: model.MessagePropStatus, Op: store.OpEquals, Value: store.Select(string(model.StatusBooked))},
	}}})
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	msg := model.MessageFromEntity(entities[0])
	return &msg, nil
}

func (u *UndoEngine) clearOrphanFlag(ctx context.Context, id, flagProp string, stats *UndoStats) {
	cerr := &apperrors.ConsistencyError{EntityID: id, Reason: fmt.Sprintf("%s flag set but no game linked", flagProp)}
	log.Println("⚠️", cerr)
	if err := u.Store.Update(ctx, id, store.Properties{
		flagProp: store.Checkbox(false),
	}); err != nil {
		log.Println("⚠️ Clearing orphan flag failed:", err)
	}
	stats.Failed++
}
