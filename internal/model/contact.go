package model

import (
	"time"

	"github.com/livite/outreach-backend/internal/store"
)

// Property names in the contacts database.
const (
	ContactPropName         = "Name"
	ContactPropEmail        = "Email"
	ContactPropTitle        = "Title"
	ContactPropPhone        = "Phone"
	ContactPropSchool       = "School"
	ContactPropSport        = "Sport"
	ContactPropLastEmailed  = "Last Emailed"
	ContactPropFirstEmailed = "First Emailed"
	ContactPropRelationship = "Relationship"
)

// Relationship tags that mark a contact as a returning lead.
var returningRelationships = map[string]bool{
	"Previously Contacted": true,
	"Previously Responded": true,
	"Previous Customer":    true,
}

// Contact is a person at an opposing athletics program who can be emailed.
type Contact struct {
	ID           string
	Name         string
	Email        string
	Title        string
	Phone        string
	SchoolID     string
	Sport        string
	LastEmailed  *time.Time
	FirstEmailed *time.Time
	Relationship string
}

// Returning reports whether the contact was previously in touch, which
// switches the draft generator to the Returning template family.
func (c Contact) Returning() bool {
	return returningRelationships[c.Relationship]
}

// FirstName is used for {{contact_first_name}} rendering.
func (c Contact) FirstName() string {
	for i := 0; i < len(c.Name); i++ {
		if c.Name[i] == ' ' {
			return c.Name[:i]
		}
	}
	return c.Name
}

// ContactFromEntity decodes a store record.
func ContactFromEntity(e store.Entity) Contact {
	p := e.Properties
	return Contact{
		ID:           e.ID,
		Name:         p[ContactPropName].Text,
		Email:        p[ContactPropEmail].Text,
		Title:        p[ContactPropTitle].Text,
		Phone:        p[ContactPropPhone].Text,
		SchoolID:     p[ContactPropSchool].FirstRelation(),
		Sport:        p[ContactPropSport].Text,
		LastEmailed:  p[ContactPropLastEmailed].Date,
		FirstEmailed: p[ContactPropFirstEmailed].Date,
		Relationship: p[ContactPropRelationship].Text,
	}
}

// Properties encodes the full record for creation.
func (c Contact) Properties() store.Properties {
	props := store.Properties{
		ContactPropName:  store.Text(c.Name),
		ContactPropEmail: store.Email(c.Email),
		ContactPropTitle: store.Text(c.Title),
		ContactPropPhone: store.Text(c.Phone),
		ContactPropSport: store.Select(c.Sport),
	}
	if c.SchoolID != "" {
		props[ContactPropSchool] = store.Relation(c.SchoolID)
	}
	if c.Relationship != "" {
		props[ContactPropRelationship] = store.Select(c.Relationship)
	}
	if c.LastEmailed != nil {
		props[ContactPropLastEmailed] = store.Date(*c.LastEmailed)
	}
	if c.FirstEmailed != nil {
		props[ContactPropFirstEmailed] = store.Date(*c.FirstEmailed)
	}
	return props
}
