package model

import (
	"time"

	"github.com/livite/outreach-backend/internal/store"
)

// Property names in the games database.
const (
	GamePropTitle          = "Game ID"
	GamePropDate           = "Game Date"
	GamePropSport          = "Sport"
	GamePropVenue          = "Venue"
	GamePropHomeSchool     = "Home School"
	GamePropAwaySchool     = "Away School"
	GamePropContact        = "Contact"
	GamePropOutreachStatus = "Outreach Status"
	GamePropLastContacted  = "Last Contacted"
	GamePropFirstContacted = "First Contacted"
	GamePropFollowUpDate   = "Follow-up Date"
	GamePropCreateDraft    = "Create Draft"
	GamePropDraftCreated   = "Draft Created"
	GamePropNotes          = "Notes"
)

// Game is one schedulable matchup needing outreach. Created by the discovery
// pipeline; this engine only transitions its status fields.
type Game struct {
	ID             string
	Title          string
	Date           *time.Time
	Sport          string
	Venue          string
	HomeSchool     string
	AwaySchool     string
	ContactID      string
	OutreachStatus OutreachStatus
	LastContacted  *time.Time
	FirstContacted *time.Time
	FollowUpDate   *time.Time
	CreateDraft    bool
	DraftCreated   *time.Time
	Notes          string
}

// GameFromEntity decodes a store record.
func GameFromEntity(e store.Entity) Game {
	p := e.Properties
	return Game{
		ID:             e.ID,
		Title:          p[GamePropTitle].Text,
		Date:           p[GamePropDate].Date,
		Sport:          p[GamePropSport].Text,
		Venue:          p[GamePropVenue].Text,
		HomeSchool:     p[GamePropHomeSchool].Text,
		AwaySchool:     p[GamePropAwaySchool].Text,
		ContactID:      p[GamePropContact].FirstRelation(),
		OutreachStatus: OutreachStatus(p[GamePropOutreachStatus].Text),
		LastContacted:  p[GamePropLastContacted].Date,
		FirstContacted: p[GamePropFirstContacted].Date,
		FollowUpDate:   p[GamePropFollowUpDate].Date,
		CreateDraft:    p[GamePropCreateDraft].Checkbox,
		DraftCreated:   p[GamePropDraftCreated].Date,
		Notes:          p[GamePropNotes].Text,
	}
}

// Properties encodes the full record for creation (seeder, tests).
func (g Game) Properties() store.Properties {
	props := store.Properties{
		GamePropTitle:       store.Text(g.Title),
		GamePropSport:       store.Select(g.Sport),
		GamePropVenue:       store.Text(g.Venue),
		GamePropHomeSchool:  store.Text(g.HomeSchool),
		GamePropAwaySchool:  store.Text(g.AwaySchool),
		GamePropNotes:       store.Text(g.Notes),
		GamePropCreateDraft: store.Checkbox(g.CreateDraft),
	}
	status := g.OutreachStatus
	if status == "" {
		status = OutreachNotContacted
	}
	props[GamePropOutreachStatus] = store.Select(string(status))
	if g.Date != nil {
		props[GamePropDate] = store.Date(*g.Date)
	}
	if g.ContactID != "" {
		props[GamePropContact] = store.Relation(g.ContactID)
	}
	if g.LastContacted != nil {
		props[GamePropLastContacted] = store.Date(*g.LastContacted)
	}
	if g.FirstContacted != nil {
		props[GamePropFirstContacted] = store.Date(*g.FirstContacted)
	}
	if g.FollowUpDate != nil {
		props[GamePropFollowUpDate] = store.Date(*g.FollowUpDate)
	}
	if g.DraftCreated != nil {
		props[GamePropDraftCreated] = store.Date(*g.DraftCreated)
	}
	return props
}
