package model

import (
	"time"

	"github.com/livite/outreach-backend/internal/store"
)

// Property names in the orders database.
const (
	OrderPropTitle            = "Order ID"
	OrderPropOrderDate        = "Order Date"
	OrderPropDeliveryDate     = "Delivery Date"
	OrderPropDeliveryLocation = "Delivery Location"
	OrderPropNotes            = "Notes"
	OrderPropPaymentStatus    = "Payment Status"
	OrderPropSchool           = "School"
	OrderPropGame             = "Game"
	OrderPropContact          = "Contact"
	OrderPropEmail            = "Email"
)

const PaymentStatusUnpaid = "Unpaid"

// Order is a confirmed booking converted from a responded message.
type Order struct {
	ID               string
	Title            string
	OrderDate        *time.Time
	DeliveryDate     *time.Time
	DeliveryLocation string
	Notes            string
	PaymentStatus    string
	School           string
	GameID           string
	ContactID        string
	MessageID        string
}

func OrderFromEntity(e store.Entity) Order {
	p := e.Properties
	return Order{
		ID:               e.ID,
		Title:            p[OrderPropTitle].Text,
		OrderDate:        p[OrderPropOrderDate].Date,
		DeliveryDate:     p[OrderPropDeliveryDate].Date,
		DeliveryLocation: p[OrderPropDeliveryLocation].Text,
		Notes:            p[OrderPropNotes].Text,
		PaymentStatus:    p[OrderPropPaymentStatus].Text,
		School:           p[OrderPropSchool].Text,
		GameID:           p[OrderPropGame].FirstRelation(),
		ContactID:        p[OrderPropContact].FirstRelation(),
		MessageID:        p[OrderPropEmail].FirstRelation(),
	}
}

func (o Order) Properties() store.Properties {
	props := store.Properties{
		OrderPropTitle: store.Text(o.Title),
	}
	if o.OrderDate != nil {
		props[OrderPropOrderDate] = store.Date(*o.OrderDate)
	}
	if o.DeliveryDate != nil {
		props[OrderPropDeliveryDate] = store.Date(*o.DeliveryDate)
	}
	if o.DeliveryLocation != "" {
		props[OrderPropDeliveryLocation] = store.Text(o.DeliveryLocation)
	}
	if o.Notes != "" {
		props[OrderPropNotes] = store.Text(o.Notes)
	}
	if o.PaymentStatus != "" {
		props[OrderPropPaymentStatus] = store.Select(o.PaymentStatus)
	}
	if o.School != "" {
		props[OrderPropSchool] = store.Text(o.School)
	}
	if o.GameID != "" {
		props[OrderPropGame] = store.Relation(o.GameID)
	}
	if o.ContactID != "" {
		props[OrderPropContact] = store.Relation(o.ContactID)
	}
	if o.MessageID != "" {
		props[OrderPropEmail] = store.Relation(o.MessageID)
	}
	return props
}
