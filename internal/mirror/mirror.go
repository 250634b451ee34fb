// Package mirror pushes confirmed orders to the customer-facing dashboard
// workspace. The dashboard is a separate Notion workspace with its own token,
// so this client is independent of the main record store.
package mirror

import (
	"context"
	"time"
)

// Order is the dashboard-side projection of an order.
type Order struct {
	Title            string
	School           string
	Sport            string
	GameDate         *time.Time
	DeliveryDate     *time.Time
	DeliveryLocation string
	Notes            string
}

// State is what the dashboard reports back about a mirrored order.
type State struct {
	Archived bool
	// Undo is the dashboard-side checkbox a customer rep ticks to cancel.
	Undo bool
}

type Client interface {
	CreateOrder(ctx context.Context, o Order) (string, error)
	GetOrder(ctx context.Context, id string) (State, error)
	ArchiveOrder(ctx context.Context, id string) error
}
