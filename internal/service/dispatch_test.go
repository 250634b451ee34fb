package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	apperrors "github.com/livite/outreach-backend/internal/errors"
	"github.com/livite/outreach-backend/internal/model"
)

func TestDispatcherSendsApproved(t *testing.T) {
	e := newEnv(t)
	contactID := e.seedContact(t, model.Contact{Name: "Dana", Email: "dana@westfield.edu"})
	gameID := e.seedGame(t, model.Game{Title: "g", Date: daysAhead(10), Sport: "Baseball"})
	msgID := e.seedMessage(t, model.Message{
		Title: "m1", Subject: "Catering", Body: "Hi", ToEmail: "dana@westfield.edu",
		Status: model.StatusApproved, GameID: gameID, ContactID: contactID,
	})

	stats := e.dispatch.Run(context.Background())
	if stats.Sent != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(e.mail.sends) != 1 || e.mail.sends[0].To != "dana@westfield.edu" {
		t.Fatalf("sends = %+v", e.mail.sends)
	}

	msg := e.getMessage(t, msgID)
	if msg.Status != model.StatusSent {
		t.Errorf("status = %q", msg.Status)
	}
	if msg.ProviderMessageID == "" || msg.ProviderThreadID == "" {
		t.Error("provider ids not persisted")
	}
	if msg.SentAt == nil || !msg.SentAt.Equal(testNow) {
		t.Errorf("sent at = %v", msg.SentAt)
	}

	game := e.getGame(t, gameID)
	if game.OutreachStatus != model.OutreachEmailSent {
		t.Errorf("game status = %q", game.OutreachStatus)
	}
	if game.LastContacted == nil || !game.LastContacted.Equal(testNow) {
		t.Errorf("last contacted = %v", game.LastContacted)
	}
	if game.FirstContacted == nil {
		t.Error("first contacted should be set on the first send")
	}
	if game.FollowUpDate == nil || !game.FollowUpDate.Equal(testNow.AddDate(0, 0, 7)) {
		t.Errorf("follow-up date = %v", game.FollowUpDate)
	}

	contact := e.getContact(t, contactID)
	if contact.LastEmailed == nil || !contact.LastEmailed.Equal(testNow) {
		t.Errorf("last emailed = %v", contact.LastEmailed)
	}
	if contact.FirstEmailed == nil {
		t.Error("first emailed should be set on the first send")
	}
}

func TestDispatcherCapAndDeferral(t *testing.T) {
	e := newEnv(t)
	e.dispatch.MaxSendsPerCycle = 3
	for i := 0; i < 5; i++ {
		e.seedMessage(t, model.Message{
			Title: fmt.Sprintf("m%d", i), Subject: "s", Body: "b",
			ToEmail: fmt.Sprintf("c%d@x.edu", i), Status: model.StatusApproved,
		})
	}

	stats := e.dispatch.Run(context.Background())
	if stats.Sent != 3 {
		t.Errorf("sent = %d, want the cap", stats.Sent)
	}
	if stats.Deferred != 2 {
		t.Errorf("deferred = %d", stats.Deferred)
	}

	approved := 0
	for _, m := range e.queueMessages(t) {
		if m.Status == model.StatusApproved {
			approved++
		}
	}
	if approved != 2 {
		t.Errorf("%d messages still approved, want 2", approved)
	}

	// Deferred messages go out on the next cycle.
	stats = e.dispatch.Run(context.Background())
	if stats.Sent != 2 || stats.Deferred != 0 {
		t.Errorf("second cycle stats = %+v", stats)
	}
}

func TestDispatcherInterSendDelay(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 3; i++ {
		e.seedMessage(t, model.Message{
			Title: fmt.Sprintf("m%d", i), Subject: "s", Body: "b",
			ToEmail: fmt.Sprintf("c%d@x.edu", i), Status: model.StatusApproved,
		})
	}

	e.dispatch.Run(context.Background())
	// Two pauses between three sends, none after the last.
	if len(e.clock.Slept) != 2 {
		t.Fatalf("slept %d times, want 2", len(e.clock.Slept))
	}
	for _, d := range e.clock.Slept {
		if d != 3*time.Second {
			t.Errorf("slept %v, want 3s", d)
		}
	}
}

func TestDispatcherValidationFailure(t *testing.T) {
	e := newEnv(t)
	msgID := e.seedMessage(t, model.Message{
		Title: "no recipient", Subject: "s", Body: "b", Status: model.StatusApproved,
	})

	stats := e.dispatch.Run(context.Background())
	if stats.Failed != 1 || stats.Sent != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(e.mail.sends) != 0 {
		t.Error("nothing should reach the provider")
	}
	msg := e.getMessage(t, msgID)
	if msg.Status != model.StatusFailed {
		t.Errorf("status = %q", msg.Status)
	}
	if !strings.Contains(msg.ResponseNotes, "no recipient") {
		t.Errorf("failure reason missing: %q", msg.ResponseNotes)
	}
}

func TestDispatcherProviderFailure(t *testing.T) {
	e := newEnv(t)
	e.mail.sendErr = errors.New("smtp unavailable")
	contactID := e.seedContact(t, model.Contact{Name: "Dana", Email: "dana@westfield.edu"})
	msgID := e.seedMessage(t, model.Message{
		Title: "m1", Subject: "s", Body: "b", ToEmail: "dana@westfield.edu",
		Status: model.StatusApproved, ContactID: contactID,
	})

	stats := e.dispatch.Run(context.Background())
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	msg := e.getMessage(t, msgID)
	if msg.Status != model.StatusFailed {
		t.Errorf("status = %q", msg.Status)
	}
	if !strings.Contains(msg.ResponseNotes, "smtp unavailable") {
		t.Errorf("provider error missing: %q", msg.ResponseNotes)
	}
	// Failed sends must not touch the contact cooldown.
	if e.getContact(t, contactID).LastEmailed != nil {
		t.Error("contact stamp must not move on failure")
	}
}

func TestDispatcherBatchContinuesPastFailure(t *testing.T) {
	e := newEnv(t)
	e.seedMessage(t, model.Message{Title: "bad", Subject: "", Body: "b", ToEmail: "a@x.edu", Status: model.StatusApproved})
	okID := e.seedMessage(t, model.Message{Title: "ok", Subject: "s", Body: "b", ToEmail: "b@x.edu", Status: model.StatusApproved})

	stats := e.dispatch.Run(context.Background())
	if stats.Sent != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if e.getMessage(t, okID).Status != model.StatusSent {
		t.Error("good message should still go out after a failure")
	}
}

func TestDispatcherFollowupKeepsRespondedGameStatus(t *testing.T) {
	e := newEnv(t)
	gameID := e.seedGame(t, model.Game{
		Title: "g", Date: daysAhead(10), Sport: "Baseball",
		OutreachStatus: model.OutreachResponded, FirstContacted: daysAgo(9),
	})
	e.seedMessage(t, model.Message{
		Title: "followup", Subject: "s", Body: "b", ToEmail: "dana@westfield.edu",
		Status: model.StatusApproved, GameID: gameID,
	})

	stats := e.dispatch.Run(context.Background())
	if stats.Sent != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	game := e.getGame(t, gameID)
	if game.OutreachStatus != model.OutreachResponded {
		t.Errorf("game status = %q, a follow-up must not regress Responded", game.OutreachStatus)
	}
	// The contact cadence still moves.
	if game.LastContacted == nil || !game.LastContacted.Equal(testNow) {
		t.Errorf("last contacted = %v", game.LastContacted)
	}
}

func TestDispatcherAuthFailureKeepsQueueApproved(t *testing.T) {
	e := newEnv(t)
	e.mail.sendErr = &apperrors.AuthError{Provider: "gmail", Err: errors.New("invalid_grant")}
	ids := []string{
		e.seedMessage(t, model.Message{Title: "m1", Subject: "s", Body: "b", ToEmail: "a@x.edu", Status: model.StatusApproved}),
		e.seedMessage(t, model.Message{Title: "m2", Subject: "s", Body: "b", ToEmail: "b@x.edu", Status: model.StatusApproved}),
	}

	stats := e.dispatch.Run(context.Background())
	if !stats.AuthFailed {
		t.Fatal("auth failure not surfaced")
	}
	if stats.Sent != 0 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	// Failed is terminal; a credential problem is ours, so both
	// messages must still be waiting for the next run.
	for _, id := range ids {
		if s := e.getMessage(t, id).Status; s != model.StatusApproved {
			t.Errorf("message %s status = %q, want approved", id, s)
		}
	}
}
