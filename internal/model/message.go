package model

import (
	"time"

	"github.com/livite/outreach-backend/internal/store"
)

// Property names in the email queue database.
const (
	MessagePropTitle             = "Email ID"
	MessagePropSubject           = "Subject"
	MessagePropBody              = "Body"
	MessagePropToEmail           = "To Email"
	MessagePropStatus            = "Status"
	MessagePropGame              = "Game"
	MessagePropContact           = "Contact"
	MessagePropTemplate          = "Template Used"
	MessagePropGameDate          = "Game Date"
	MessagePropSchool            = "School"
	MessagePropSport             = "Sport"
	MessagePropSentAt            = "Sent At"
	MessagePropProviderMessageID = "Provider Message ID"
	MessagePropProviderThreadID  = "Provider Thread ID"
	MessagePropResponseType      = "Response Type"
	MessagePropResponseDate      = "Response Date"
	MessagePropResponseNotes     = "Response Notes"
	MessagePropConvertToOrder    = "Convert to Order"
	MessagePropUndoOrder         = "Undo Order"
	MessagePropUndoOutreach      = "Undo Outreach"
)

// Message is one outbound email moving through the queue. It is the central
// workflow entity: every step either creates, advances, or reverses one.
type Message struct {
	ID                string
	Title             string
	Subject           string
	Body              string
	ToEmail           string
	Status            MessageStatus
	GameID            string
	ContactID         string
	TemplateID        string
	GameDate          *time.Time
	School            string
	Sport             string
	SentAt            *time.Time
	ProviderMessageID string
	ProviderThreadID  string
	ResponseType      ResponseType
	ResponseDate      *time.Time
	ResponseNotes     string
	ConvertToOrder    bool
	UndoOrder         bool
	UndoOutreach      bool
}

// MessageFromEntity decodes a store record.
func MessageFromEntity(e store.Entity) Message {
	p := e.Properties
	return Message{
		ID:                e.ID,
		Title:             p[MessagePropTitle].Text,
		Subject:           p[MessagePropSubject].Text,
		Body:              p[MessagePropBody].Text,
		ToEmail:           p[MessagePropToEmail].Text,
		Status:            MessageStatus(p[MessagePropStatus].Text),
		GameID:            p[MessagePropGame].FirstRelation(),
		ContactID:         p[MessagePropContact].FirstRelation(),
		TemplateID:        p[MessagePropTemplate].FirstRelation(),
		GameDate:          p[MessagePropGameDate].Date,
		School:            p[MessagePropSchool].Text,
		Sport:             p[MessagePropSport].Text,
		SentAt:            p[MessagePropSentAt].Date,
		ProviderMessageID: p[MessagePropProviderMessageID].Text,
		ProviderThreadID:  p[MessagePropProviderThreadID].Text,
		ResponseType:      ResponseType(p[MessagePropResponseType].Text),
		ResponseDate:      p[MessagePropResponseDate].Date,
		ResponseNotes:     p[MessagePropResponseNotes].Text,
		ConvertToOrder:    p[MessagePropConvertToOrder].Checkbox,
		UndoOrder:         p[MessagePropUndoOrder].Checkbox,
		UndoOutreach:      p[MessagePropUndoOutreach].Checkbox,
	}
}

// Properties encodes the full record for creation.
func (m Message) Properties() store.Properties {
	props := store.Properties{
		MessagePropTitle:          store.Text(m.Title),
		MessagePropSubject:        store.Text(m.Subject),
		MessagePropBody:           store.Text(m.Body),
		MessagePropStatus:         store.Select(string(m.Status)),
		MessagePropConvertToOrder: store.Checkbox(m.ConvertToOrder),
		MessagePropUndoOrder:      store.Checkbox(m.UndoOrder),
		MessagePropUndoOutreach:   store.Checkbox(m.UndoOutreach),
	}
	if m.ToEmail != "" {
		props[MessagePropToEmail] = store.Email(m.ToEmail)
	}
	if m.GameID != "" {
		props[MessagePropGame] = store.Relation(m.GameID)
	}
	if m.ContactID != "" {
		props[MessagePropContact] = store.Relation(m.ContactID)
	}
	if m.TemplateID != "" {
		props[MessagePropTemplate] = store.Relation(m.TemplateID)
	}
	if m.GameDate != nil {
		props[MessagePropGameDate] = store.Date(*m.GameDate)
	}
	if m.School != "" {
		props[MessagePropSchool] = store.Text(m.School)
	}
	if m.Sport != "" {
		props[MessagePropSport] = store.Text(m.Sport)
	}
	if m.SentAt != nil {
		props[MessagePropSentAt] = store.Date(*m.SentAt)
	}
	if m.ProviderMessageID != "" {
		props[MessagePropProviderMessageID] = store.Text(m.ProviderMessageID)
	}
	if m.ProviderThreadID != "" {
		props[MessagePropProviderThreadID] = store.Text(m.ProviderThreadID)
	}
	if m.ResponseType != "" {
		props[MessagePropResponseType] = store.Select(string(m.ResponseType))
	}
	if m.ResponseDate != nil {
		props[MessagePropResponseDate] = store.Date(*m.ResponseDate)
	}
	if m.ResponseNotes != "" {
		props[MessagePropResponseNotes] = store.Text(m.ResponseNotes)
	}
	return props
}
