package service

import (
	"context"
	"strings"
	"testing"

	"github.com/livite/outreach-backend/internal/model"
)

func TestMayContactAllowsFreshContact(t *testing.T) {
	e := newEnv(t)
	contactID := e.seedContact(t, model.Contact{Name: "Dana Whitfield", Email: "dana@westfield.edu"})
	game := model.Game{Title: "g", Date: daysAhead(10), Sport: "Baseball", ContactID: contactID}

	allowed, reason, err := e.drafts.Admission.MayContact(context.Background(), game, e.getContact(t, contactID))
	if err != nil {
		t.Fatalf("MayContact: %v", err)
	}
	if !allowed {
		t.Errorf("want allow, got deny: %s", reason)
	}
}

func TestMayContactSentHistoryIsGroundTruth(t *testing.T) {
	e := newEnv(t)
	// Last Emailed is clean but the queue has a Sent email two days old.
	// The queue must win.
	contactID := e.seedContact(t, model.Contact{Name: "Dana", Email: "dana@westfield.edu"})
	e.seedMessage(t, model.Message{
		Title: "old send", ToEmail: "dana@westfield.edu",
		Status: model.StatusSent, SentAt: daysAgo(2),
	})

	allowed, reason, err := e.drafts.Admission.MayContact(context.Background(), model.Game{}, e.getContact(t, contactID))
	if err != nil {
		t.Fatalf("MayContact: %v", err)
	}
	if allowed {
		t.Fatal("want deny")
	}
	if !strings.HasPrefix(reason, DenySentHistory) {
		t.Errorf("reason = %q, want %s rule", reason, DenySentHistory)
	}
}

func TestMayContactSentHistoryOutsideWindow(t *testing.T) {
	e := newEnv(t)
	contactID := e.seedContact(t, model.Contact{Name: "Dana", Email: "dana@westfield.edu"})
	e.seedMessage(t, model.Message{
		Title: "old send", ToEmail: "dana@westfield.edu",
		Status: model.StatusSent, SentAt: daysAgo(10),
	})

	allowed, _, err := e.drafts.Admission.MayContact(context.Background(), model.Game{}, e.getContact(t, contactID))
	if err != nil {
		t.Fatalf("MayContact: %v", err)
	}
	if !allowed {
		t.Error("a send 10 days ago should not block")
	}
}

func TestMayContactContactCooldown(t *testing.T) {
	e := newEnv(t)
	contactID := e.seedContact(t, model.Contact{
		Name: "Dana", Email: "dana@westfield.edu", LastEmailed: daysAgo(3),
	})

	allowed, reason, err := e.drafts.Admission.MayContact(context.Background(), model.Game{}, e.getContact(t, contactID))
	if err != nil {
		t.Fatalf("MayContact: %v", err)
	}
	if allowed {
		t.Fatal("want deny")
	}
	if !strings.HasPrefix(reason, DenyContactCooldown) {
		t.Errorf("reason = %q", reason)
	}
}

func TestMayContactInFlightMessage(t *testing.T) {
	e := newEnv(t)
	contactID := e.seedContact(t, model.Contact{Name: "Dana", Email: "dana@westfield.edu"})
	e.seedMessage(t, model.Message{
		Title: "pending", ToEmail: "dana@westfield.edu",
		Status: model.StatusDraft, ContactID: contactID,
	})

	allowed, reason, err := e.drafts.Admission.MayContact(context.Background(), model.Game{}, e.getContact(t, contactID))
	if err != nil {
		t.Fatalf("MayContact: %v", err)
	}
	if allowed {
		t.Fatal("want deny")
	}
	if !strings.HasPrefix(reason, DenyInFlight) {
		t.Errorf("reason = %q", reason)
	}
}

func TestMayContactSchoolCooldown(t *testing.T) {
	e := newEnv(t)
	schoolID := "school-1"
	e.seedContact(t, model.Contact{
		Name: "Pat Reyes", Email: "pat@westfield.edu", SchoolID: schoolID, Sport: "Baseball",
		LastEmailed: daysAgo(1),
	})
	contactID := e.seedContact(t, model.Contact{
		Name: "Dana Whitfield", Email: "dana@westfield.edu", SchoolID: schoolID, Sport: "Baseball",
	})

	allowed, reason, err := e.drafts.Admission.MayContact(context.Background(), model.Game{}, e.getContact(t, contactID))
	if err != nil {
		t.Fatalf("MayContact: %v", err)
	}
	if allowed {
		t.Fatal("want deny")
	}
	if !strings.HasPrefix(reason, DenySchoolCooldown) {
		t.Errorf("reason = %q", reason)
	}
}

func TestMayContactSchoolCooldownDifferentSport(t *testing.T) {
	e := newEnv(t)
	schoolID := "school-1"
	e.seedContact(t, model.Contact{
		Name: "Pat Reyes", Email: "pat@westfield.edu", SchoolID: schoolID, Sport: "Football",
		LastEmailed: daysAgo(1),
	})
	contactID := e.seedContact(t, model.Contact{
		Name: "Dana Whitfield", Email: "dana@westfield.edu", SchoolID: schoolID, Sport: "Baseball",
	})

	allowed, _, err := e.drafts.Admission.MayContact(context.Background(), model.Game{}, e.getContact(t, contactID))
	if err != nil {
		t.Fatalf("MayContact: %v", err)
	}
	if !allowed {
		t.Error("a different sport at the same school should not block")
	}
}

func TestMayContactArchivedMessageIgnored(t *testing.T) {
	e := newEnv(t)
	contactID := e.seedContact(t, model.Contact{Name: "Dana", Email: "dana@westfield.edu"})
	msgID := e.seedMessage(t, model.Message{
		Title: "undone", ToEmail: "dana@westfield.edu",
		Status: model.StatusDraft, ContactID: contactID,
	})
	if err := e.store.Archive(context.Background(), msgID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	allowed, _, err := e.drafts.Admission.MayContact(context.Background(), model.Game{}, e.getContact(t, contactID))
	if err != nil {
		t.Fatalf("MayContact: %v", err)
	}
	if !allowed {
		t.Error("archived messages must not count against admission")
	}
}
