package service

import (
	"context"
	"fmt"
	"time"

	"github.com/livite/outreach-backend/internal/clock"
	"github.com/livite/outreach-backend/internal/model"
	"github.com/livite/outreach-backend/internal/store"
)

// Admission decides whether a new outbound email to a contact would be
// redundant. All checks are read-only; rules run in a fixed order and the
// first hit wins.
type Admission struct {
	Store store.RecordStore
	Clock clock.Clock

	// ContactCooldownDays blocks re-emailing the same contact; default 7.
	ContactCooldownDays int
	// SchoolCooldownDays blocks emailing another contact at the same
	// school and sport; default 3.
	SchoolCooldownDays int
}

// Deny reasons, attached to the game so a skipped draft is never silent.
const (
	DenySentHistory     = "sent history"
	DenyContactCooldown = "contact cooldown"
	DenyInFlight        = "in-flight message"
	DenySchoolCooldown  = "school cooldown"
)

// MayContact returns (false, reason) when any rule blocks the send.
//
// Rule order matters. The email queue's own Sent history is checked before
// the contact's Last Emailed stamp because the stamp can go stale after
// manual edits; the queue is ground truth.
func (a *Admission) MayContact(ctx context.Context, game model.Game, contact model.Contact) (bool, string, error) {
	now := a.Clock.Now()

	// Rule 1: a Sent email to this address within the cooldown window.
	if contact.Email != "" {
		cutoff := now.AddDate(0, 0, -a.ContactCooldownDays)
		page, err := a.Store.Query(ctx, store.EntityEmailQueue, store.Query{Filter: store.Filter{All: []store.Cond{
			{Property: model.MessagePropToEmail, Op: store.OpEquals, Value: store.Email(contact.Email)},
			{Property: model.MessagePropStatus, Op: store.OpEquals, Value: store.Select(string(model.StatusSent))},
			{Property: model.MessagePropSentAt, Op: store.OpOnOrAfter, Value: store.Date(cutoff)},
		}}})
		if err != nil {
			return false, "", err
		}
		if len(page.Items) > 0 {
			return false, fmt.Sprintf("%s: %s emailed within %d days", DenySentHistory, contact.Email, a.ContactCooldownDays), nil
		}
	}

	// Rule 2: the contact's cached Last Emailed stamp.
	if contact.LastEmailed != nil {
		if days := daysBetween(*contact.LastEmailed, now); days < a.ContactCooldownDays {
			return false, fmt.Sprintf("%s: emailed %d days ago", DenyContactCooldown, days), nil
		}
	}

	// Rule 3: a draft or approved email already queued for this contact.
	page, err := a.Store.Query(ctx, store.EntityEmailQueue, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.MessagePropContact, Op: store.OpContains, Value: store.Relation(contact.ID)},
		{Property: model.MessagePropStatus, Op: store.OpNotEquals, Value: store.Select(string(model.StatusSent))},
	}}})
	if err != nil {
		return false, "", err
	}
	if len(page.Items) > 0 {
		return false, fmt.Sprintf("%s: email already queued for this contact", DenyInFlight), nil
	}

	// Rule 4: another contact at the same school and sport was emailed
	// recently.
	if contact.SchoolID != "" && contact.Sport != "" {
		peers, err := store.QueryAll(ctx, a.Store, store.EntityContacts, store.Query{Filter: store.Filter{All: []store.Cond{
			{Property: model.ContactPropSchool, Op: store.OpContains, Value: store.Relation(contact.SchoolID)},
			{Property: model.ContactPropSport, Op: store.OpEquals, Value: store.Select(contact.Sport)},
		}}})
		if err != nil {
			return false, "", err
		}
		for _, e := range peers {
			if e.ID == contact.ID {
				continue
			}
			peer := model.ContactFromEntity(e)
			if peer.LastEmailed == nil {
				continue
			}
			if days := daysBetween(*peer.LastEmailed, now); days < a.SchoolCooldownDays {
				return false, fmt.Sprintf("%s: %s emailed %d days ago", DenySchoolCooldown, peer.Name, days), nil
			}
		}
	}

	return true, "", nil
}

func daysBetween(earlier, later time.Time) int {
	d := int(later.Sub(earlier).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
