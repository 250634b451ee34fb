package service

import (
	"context"
	"errors"
	"testing"

	"github.com/livite/outreach-backend/internal/model"
)

func (e *env) seedRespondedBooking(t *testing.T) (gameID, contactID, msgID string) {
	t.Helper()
	contactID = e.seedContact(t, model.Contact{Name: "Dana", Email: "dana@westfield.edu", LastEmailed: daysAgo(3)})
	gameID = e.seedGame(t, model.Game{
		Title: "2026-09-10 Westfield @ Lincoln", Date: daysAhead(10), Sport: "Baseball",
		HomeSchool: "Lincoln", AwaySchool: "Westfield", Venue: "Lincoln Field",
		ContactID: contactID, OutreachStatus: model.OutreachResponded,
	})
	msgID = e.seedMessage(t, model.Message{
		Title: "m1", Subject: "s", Body: "b", ToEmail: "dana@westfield.edu",
		Status: model.StatusResponded, GameID: gameID, ContactID: contactID,
		SentAt: daysAgo(3), ConvertToOrder: true,
	})
	return gameID, contactID, msgID
}

func TestConverterCreatesOrder(t *testing.T) {
	e := newEnv(t)
	gameID, contactID, msgID := e.seedRespondedBooking(t)

	stats := e.convert.Run(context.Background())
	if stats.Created != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	orders := e.liveOrders(t)
	if len(orders) != 1 {
		t.Fatalf("orders = %d", len(orders))
	}
	order := orders[0]
	if order.GameID != gameID || order.ContactID != contactID || order.MessageID != msgID {
		t.Errorf("order relations: %+v", order)
	}
	if order.PaymentStatus != model.PaymentStatusUnpaid {
		t.Errorf("payment status = %q", order.PaymentStatus)
	}
	if order.DeliveryLocation != "Lincoln Field" {
		t.Errorf("delivery location = %q", order.DeliveryLocation)
	}

	msg := e.getMessage(t, msgID)
	if msg.Status != model.StatusBooked {
		t.Errorf("message status = %q", msg.Status)
	}
	if msg.ConvertToOrder {
		t.Error("convert flag should be cleared")
	}
	if e.getGame(t, gameID).OutreachStatus != model.OutreachBooked {
		t.Error("game should be Booked")
	}

	// Mirror created and the mapping recorded for later undo.
	if len(e.mirror.orders) != 1 {
		t.Fatalf("mirror orders = %d", len(e.mirror.orders))
	}
	mirrorID, err := e.state.MirrorID(gameID)
	if err != nil || mirrorID == "" {
		t.Errorf("mapping entry missing: %q %v", mirrorID, err)
	}
}

func TestConverterMirrorFailureFallsBackToPendingFile(t *testing.T) {
	e := newEnv(t)
	gameID, _, msgID := e.seedRespondedBooking(t)
	e.mirror.createErr = errors.New("dashboard down")

	stats := e.convert.Run(context.Background())
	if stats.Created != 1 {
		t.Fatalf("stats = %+v, conversion must survive a mirror failure", stats)
	}
	if len(e.liveOrders(t)) != 1 {
		t.Error("primary order must exist")
	}
	if e.getMessage(t, msgID).Status != model.StatusBooked {
		t.Error("message must still be Booked")
	}

	pending, err := e.state.PendingOrders()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].GameID != gameID {
		t.Errorf("pending = %+v", pending)
	}
}

func TestConverterIsIdempotent(t *testing.T) {
	e := newEnv(t)
	_, _, msgID := e.seedRespondedBooking(t)

	e.convert.Run(context.Background())

	// Flag re-set by an operator twitch: no second order appears.
	e.setFlag(t, msgID, model.MessagePropConvertToOrder, true)
	e.convert.Run(context.Background())

	if got := len(e.liveOrders(t)); got != 1 {
		t.Errorf("orders = %d, want 1", got)
	}
}

func TestConverterOrphanFlag(t *testing.T) {
	e := newEnv(t)
	msgID := e.seedMessage(t, model.Message{
		Title: "orphan", Subject: "s", Body: "b", ToEmail: "x@y.edu",
		Status: model.StatusResponded, ConvertToOrder: true,
	})

	stats := e.convert.Run(context.Background())
	if stats.Created != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(e.liveOrders(t)) != 0 {
		t.Error("no order may be created without a game")
	}
	// The flag is cleared defensively so the record stops looping.
	if e.getMessage(t, msgID).ConvertToOrder {
		t.Error("orphan flag should be cleared")
	}
}
