package service

import (
	"context"
	"fmt"
	"log"

	"github.com/livite/outreach-backend/internal/clock"
	apperrors "github.com/livite/outreach-backend/internal/errors"
	"github.com/livite/outreach-backend/internal/mirror"
	"github.com/livite/outreach-backend/internal/model"
	"github.com/livite/outreach-backend/internal/store"
)

// Converter turns a responded email flagged "Convert to Order" into an order
// record, plus a best-effort mirrored order on the dashboard. The mirror
// write is not transactional: on failure the payload lands in the pending
// file and the conversion still succeeds.
type Converter struct {
	Store  store.RecordStore
	Mirror mirror.Client // nil when the dashboard is not configured
	State  *LocalState
	Clock  clock.Clock
}

type ConvertStats struct {
	Processed int
	Created   int
	Failed    int
}

func (c *Converter) Run(ctx context.Context) ConvertStats {
	var stats ConvertStats

	flagged, err := store.QueryAll(ctx, c.Store, store.EntityEmailQueue, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.MessagePropConvertToOrder, Op: store.OpEquals, Value: store.Checkbox(true)},
	}}})
	if err != nil {
		log.Println("⚠️ Failed to query convert flags:", err)
		stats.Failed++
		return stats
	}
	if len(flagged) == 0 {
		return stats
	}
	log.Printf("Found %d email(s) flagged for order conversion", len(flagged))

	for _, e := range flagged {
		stats.Processed++
		msg := model.MessageFromEntity(e)
		if err := c.convertOne(ctx, msg); err != nil {
			stats.Failed++
			log.Printf("⚠️ Conversion for %s failed: %v", msg.Title, err)
			continue
		}
		stats.Created++
	}
	return stats
}

func (c *Converter) convertOne(ctx context.Context, msg model.Message) error {
	if msg.GameID == "" {
		// Flag with nothing behind it: clear it so it does not loop
		// forever, leave everything else alone.
		cerr := &apperrors.ConsistencyError{EntityID: msg.ID, Reason: "convert flag set but no game linked"}
		log.Println("⚠️", cerr)
		return c.Store.Update(ctx, msg.ID, store.Properties{
			model.MessagePropConvertToOrder: store.Checkbox(false),
		})
	}

	gameEntity, err := c.Store.Get(ctx, msg.GameID)
	if err != nil {
		return fmt.Errorf("fetch game: %w", err)
	}
	game := model.GameFromEntity(gameEntity)
	now := c.Clock.Now()

	// Dedup: an earlier conversion that already produced a live order for
	// this email makes this pass a no-op beyond clearing the flag.
	existing, err := c.orderExists(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("check existing orders: %w", err)
	}
	if !existing {
		order := model.Order{
			Title:            orderTitle(game),
			OrderDate:        &now,
			DeliveryDate:     game.Date,
			DeliveryLocation: game.Venue,
			PaymentStatus:    model.PaymentStatusUnpaid,
			School:           game.AwaySchool,
			GameID:           game.ID,
			ContactID:        msg.ContactID,
			MessageID:        msg.ID,
		}
		if _, err := c.Store.Create(ctx, store.EntityOrders, order.Properties()); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		log.Printf("✅ Order created: %s", order.Title)
		c.mirrorOrder(ctx, game)
	} else {
		log.Printf("  Order already exists for %s, skipping create", msg.Title)
	}

	msgProps := store.Properties{
		model.MessagePropConvertToOrder: store.Checkbox(false),
	}
	// Booked only ever follows Responded; a message converted twice in a
	// row keeps its status and just loses the flag.
	if msg.Status.CanTransitionTo(model.StatusBooked) {
		msgProps[model.MessagePropStatus] = store.Select(string(model.StatusBooked))
	}
	if err := c.Store.Update(ctx, msg.ID, msgProps); err != nil {
		return fmt.Errorf("update email: %w", err)
	}
	if err := c.Store.Update(ctx, game.ID, store.Properties{
		model.GamePropOutreachStatus: store.Select(string(model.OutreachBooked)),
	}); err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	return nil
}

func (c *Converter) orderExists(ctx context.Context, messageID string) (bool, error) {
	page, err := c.Store.Query(ctx, store.EntityOrders, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.OrderPropEmail, Op: store.OpContains, Value: store.Relation(messageID)},
	}}})
	if err != nil {
		return false, err
	}
	return len(page.Items) > 0, nil
}

// mirrorOrder pushes the order to the dashboard. Failures fall back to the
// pending file for later replay; either way the primary conversion stands.
func (c *Converter) mirrorOrder(ctx context.Context, game model.Game) {
	if c.Mirror == nil {
		return
	}
	mo := mirror.Order{
		Title:            orderTitle(game),
		School:           game.AwaySchool,
		Sport:            game.Sport,
		GameDate:         game.Date,
		DeliveryDate:     game.Date,
		DeliveryLocation: game.Venue,
	}
	mirrorID, err := c.Mirror.CreateOrder(ctx, mo)
	if err == nil {
		if err := c.State.SaveMapping(game.ID, mirrorID); err != nil {
			log.Println("⚠️ Mirror created but mapping save failed:", err)
		} else {
			log.Printf("✅ Dashboard order mirrored (%s)", mirrorID)
		}
		return
	}

	log.Printf("⚠️ Dashboard mirror failed (%v), saving to pending file", err)
	pending := PendingOrder{
		GameID:           game.ID,
		Title:            mo.Title,
		School:           mo.School,
		Sport:            mo.Sport,
		GameDate:         mo.GameDate,
		DeliveryLocation: mo.DeliveryLocation,
		SavedAt:          c.Clock.Now(),
	}
	if err := c.State.AppendPendingOrder(pending); err != nil {
		log.Println("⚠️ Pending file write failed:", err)
	}
}

func orderTitle(game model.Game) string {
	date := ""
	if game.Date != nil {
		date = " " + game.Date.Format("2006-01-02")
	}
	school := game.AwaySchool
	if school == "" {
		school = game.HomeSchool
	}
	return fmt.Sprintf("%s %s%s", school, game.Sport, date)
}
