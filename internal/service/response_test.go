package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/livite/outreach-backend/internal/errors"
	"github.com/livite/outreach-backend/internal/mail"
	"github.com/livite/outreach-backend/internal/model"
)

func TestClassifyResponse(t *testing.T) {
	cases := []struct {
		text string
		want model.ResponseType
	}{
		{"I am out of office until Monday", model.ResponseOutOfOffice},
		{"Go ahead and order for 40 players", model.ResponseBooked},
		{"Let's book it, headcount is 35", model.ResponseBooked},
		{"We already arranged catering this season, thanks", model.ResponseNotInterested},
		{"please send pricing", model.ResponseQuestion},
		{"What do you offer for team dinners?", model.ResponseQuestion},
		{"We'd be interested, tell me more", model.ResponseInterested},
		{"Wrong person, try athletics@", ""},
	}
	for _, c := range cases {
		if got := ClassifyResponse(c.text); got != c.want {
			t.Errorf("ClassifyResponse(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestClassifyResponsePriorityOrder(t *testing.T) {
	// An auto-reply that also contains positive words must still classify
	// as Out of Office.
	text := "I am on vacation. Interested parties should call our office."
	if got := ClassifyResponse(text); got != model.ResponseOutOfOffice {
		t.Errorf("got %q, want Out of Office", got)
	}
	// Booked beats Interested.
	text = "Very interested, go ahead and order for the team"
	if got := ClassifyResponse(text); got != model.ResponseBooked {
		t.Errorf("got %q, want Booked", got)
	}
}

func TestStripQuotedReply(t *testing.T) {
	text := "Yes, send me the menu.\n\nOn Mon, Feb 9, 2026 at 10:38 PM Livite <orders@livite.com> wrote:\n> Hi Dana,"
	if got := StripQuotedReply(text); got != "Yes, send me the menu." {
		t.Errorf("got %q", got)
	}

	text = "Sounds good.\n---------- Forwarded message ----------\nFrom someone"
	if got := StripQuotedReply(text); got != "Sounds good." {
		t.Errorf("forwarded marker: got %q", got)
	}

	if got := StripQuotedReply("No quoting here."); got != "No quoting here." {
		t.Errorf("plain text: got %q", got)
	}
}

func TestReplyClassifierRecordsReply(t *testing.T) {
	e := newEnv(t)
	contactID := e.seedContact(t, model.Contact{Name: "Dana", Email: "dana@westfield.edu"})
	gameID := e.seedGame(t, model.Game{
		Title: "g", Date: daysAhead(10), Sport: "Baseball",
		OutreachStatus: model.OutreachEmailSent,
	})
	msgID := e.seedMessage(t, model.Message{
		Title: "m1", Subject: "s", Body: "b", ToEmail: "dana@westfield.edu",
		Status: model.StatusSent, GameID: gameID, ContactID: contactID,
		SentAt: daysAgo(2), ProviderMessageID: "our-msg", ProviderThreadID: "thr-1",
	})
	e.mail.threads["thr-1"] = []mail.ThreadMessage{
		{ID: "our-msg", From: "Livite <orders@livite.com>", Date: *daysAgo(2), Body: "our pitch"},
		{ID: "their-reply", From: "Dana <dana@westfield.edu>", Date: *daysAgo(1), Body: "please send pricing"},
	}

	stats := e.replies.Run(context.Background())
	if stats.Replies != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	msg := e.getMessage(t, msgID)
	if msg.Status != model.StatusResponded {
		t.Errorf("status = %q", msg.Status)
	}
	if msg.ResponseType != model.ResponseQuestion {
		t.Errorf("response type = %q", msg.ResponseType)
	}
	if msg.ResponseDate == nil {
		t.Error("response date missing")
	}
	if !strings.Contains(msg.ResponseNotes, "please send pricing") {
		t.Errorf("notes = %q", msg.ResponseNotes)
	}

	game := e.getGame(t, gameID)
	if game.OutreachStatus != model.OutreachResponded {
		t.Errorf("game status = %q", game.OutreachStatus)
	}
	if !strings.Contains(game.Notes, "[Question] Dana") {
		t.Errorf("game notes = %q", game.Notes)
	}
}

func TestReplyClassifierIgnoresOwnMessages(t *testing.T) {
	e := newEnv(t)
	msgID := e.seedMessage(t, model.Message{
		Title: "m1", Subject: "s", Body: "b", ToEmail: "dana@westfield.edu",
		Status: model.StatusSent, SentAt: daysAgo(2),
		ProviderMessageID: "our-msg", ProviderThreadID: "thr-1",
	})
	e.mail.threads["thr-1"] = []mail.ThreadMessage{
		{ID: "our-msg", From: "Livite <orders@livite.com>", Date: *daysAgo(2), Body: "our pitch"},
	}

	stats := e.replies.Run(context.Background())
	if stats.Replies != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if e.getMessage(t, msgID).Status != model.StatusSent {
		t.Error("status must not change without a reply")
	}
}

func TestReplyClassifierFallsBackToFromHeader(t *testing.T) {
	e := newEnv(t)
	// No recorded provider message id: our own thread messages are told
	// apart by the From header instead.
	msgID := e.seedMessage(t, model.Message{
		Title: "m1", Subject: "s", Body: "b", ToEmail: "dana@westfield.edu",
		Status: model.StatusSent, SentAt: daysAgo(2), ProviderThreadID: "thr-1",
	})
	e.mail.threads["thr-1"] = []mail.ThreadMessage{
		{ID: "a", From: "Livite <orders@livite.com>", Date: *daysAgo(2), Body: "our pitch"},
		{ID: "b", From: "Dana <dana@westfield.edu>", Date: *daysAgo(1), Body: "tell me more"},
	}

	stats := e.replies.Run(context.Background())
	if stats.Replies != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if got := e.getMessage(t, msgID).ResponseType; got != model.ResponseInterested {
		t.Errorf("response type = %q", got)
	}
}

func TestReplyClassifierPicksLatestReply(t *testing.T) {
	e := newEnv(t)
	msgID := e.seedMessage(t, model.Message{
		Title: "m1", Subject: "s", Body: "b", ToEmail: "dana@westfield.edu",
		Status: model.StatusSent, SentAt: daysAgo(5),
		ProviderMessageID: "our-msg", ProviderThreadID: "thr-1",
	})
	e.mail.threads["thr-1"] = []mail.ThreadMessage{
		{ID: "our-msg", From: "orders@livite.com", Date: *daysAgo(5), Body: "our pitch"},
		{ID: "r1", From: "dana@westfield.edu", Date: *daysAgo(3), Body: "what do you offer"},
		{ID: "r2", From: "dana@westfield.edu", Date: *daysAgo(1), Body: "go ahead and order"},
	}

	e.replies.Run(context.Background())
	if got := e.getMessage(t, msgID).ResponseType; got != model.ResponseBooked {
		t.Errorf("response type = %q, want the newest reply's classification", got)
	}
}

func TestReplyClassifierKeepsBookedGameBooked(t *testing.T) {
	e := newEnv(t)
	gameID := e.seedGame(t, model.Game{
		Title: "g", Date: daysAhead(10), Sport: "Baseball",
		OutreachStatus: model.OutreachBooked,
	})
	e.seedMessage(t, model.Message{
		Title: "m1", Subject: "s", Body: "b", ToEmail: "dana@westfield.edu",
		Status: model.StatusSent, GameID: gameID, SentAt: daysAgo(2),
		ProviderMessageID: "our-msg", ProviderThreadID: "thr-1",
	})
	e.mail.threads["thr-1"] = []mail.ThreadMessage{
		{ID: "our-msg", From: "orders@livite.com", Date: *daysAgo(2), Body: "our pitch"},
		{ID: "their-reply", From: "dana@westfield.edu", Date: *daysAgo(1), Body: "thanks, see you then"},
	}

	e.replies.Run(context.Background())
	game := e.getGame(t, gameID)
	if game.OutreachStatus != model.OutreachBooked {
		t.Errorf("game status = %q, a late reply must not regress Booked", game.OutreachStatus)
	}
	if game.Notes == "" {
		t.Error("reply note should still land on the game")
	}
}

func TestReplyClassifierAuthFailureAbortsScan(t *testing.T) {
	e := newEnv(t)
	ids := []string{
		e.seedMessage(t, model.Message{
			Title: "m1", Subject: "s", Body: "b", ToEmail: "a@x.edu",
			Status: model.StatusSent, SentAt: daysAgo(2),
			ProviderMessageID: "our-1", ProviderThreadID: "thr-1",
		}),
		e.seedMessage(t, model.Message{
			Title: "m2", Subject: "s", Body: "b", ToEmail: "b@x.edu",
			Status: model.StatusSent, SentAt: daysAgo(2),
			ProviderMessageID: "our-2", ProviderThreadID: "thr-2",
		}),
	}
	e.mail.threadErr = &apperrors.AuthError{Provider: "gmail", Err: errors.New("invalid_grant")}

	stats := e.replies.Run(context.Background())
	if !stats.AuthFailed {
		t.Fatal("auth failure not surfaced")
	}
	if stats.Failed != 0 || stats.Replies != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	// The scan stops at the first auth error instead of burning the
	// same failure across the whole set.
	if stats.Checked != 1 {
		t.Errorf("checked = %d, want 1", stats.Checked)
	}
	for _, id := range ids {
		if s := e.getMessage(t, id).Status; s != model.StatusSent {
			t.Errorf("message %s status = %q, want sent", id, s)
		}
	}
}
