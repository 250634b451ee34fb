package store

import (
	"context"
	"time"
)

// EntityType names one of the record databases the engine works against.
type EntityType string

const (
	EntityGames      EntityType = "games"
	EntityContacts   EntityType = "contacts"
	EntityTemplates  EntityType = "templates"
	EntityEmailQueue EntityType = "email_queue"
	EntityOrders     EntityType = "orders"
)

// ValueType is the property type system the record store exposes.
type ValueType string

const (
	TypeText     ValueType = "text"
	TypeEmail    ValueType = "email"
	TypeSelect   ValueType = "select"
	TypeCheckbox ValueType = "checkbox"
	TypeDate     ValueType = "date"
	TypeRelation ValueType = "relation"
	TypeNumber   ValueType = "number"
)

// Value is one typed property value. Exactly one field is meaningful for a
// given Type; the zero Value reads as empty for every accessor.
type Value struct {
	Type     ValueType  `json:"type"`
	Text     string     `json:"text,omitempty"`
	Checkbox bool       `json:"checkbox,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Relation []string   `json:"relation,omitempty"`
	Number   *float64   `json:"number,omitempty"`
}

// Properties is the property bag of one record.
type Properties map[string]Value

// Entity is one record as stored.
type Entity struct {
	ID         string     `json:"id"`
	Type       EntityType `json:"type"`
	Archived   bool       `json:"archived"`
	Properties Properties `json:"properties"`
}

// Op is a filter comparison operator.
type Op string

const (
	OpEquals     Op = "equals"
	OpNotEquals  Op = "does_not_equal"
	OpContains   Op = "contains" // relation membership
	OpBefore     Op = "before"
	OpOnOrBefore Op = "on_or_before"
	OpOnOrAfter  Op = "on_or_after"
	OpIsEmpty    Op = "is_empty"
	OpIsNotEmpty Op = "is_not_empty"
)

// Cond is one property comparison.
type Cond struct {
	Property string
	Op       Op
	Value    Value
}

// Filter selects records matching every condition in All and, when Any is
// non-empty, at least one condition in Any. Archived records never match.
type Filter struct {
	All []Cond
	Any []Cond
}

// SortOrder asks the store to order results by a property.
type SortOrder struct {
	Property   string
	Descending bool
}

// Query bundles one paginated query.
type Query struct {
	Filter Filter
	Sort   *SortOrder
	Cursor string
}

// Page is one page of query results.
type Page struct {
	Items      []Entity
	NextCursor string
	HasMore    bool
}

// RecordStore is the typed CRUD and query surface the engine depends on.
// The store owns all durable workflow state; the engine never assumes
// transactional multi-record writes.
type RecordStore interface {
	Query(ctx context.Context, entity EntityType, q Query) (Page, error)
	Get(ctx context.Context, id string) (Entity, error)
	Create(ctx context.Context, entity EntityType, props Properties) (string, error)
	Update(ctx context.Context, id string, props Properties) error
	Archive(ctx context.Context, id string) error
}

// QueryAll drains every page of a query. Steps that mutate what they iterate
// collect the full result set first so cursors stay valid.
func QueryAll(ctx context.Context, s RecordStore, entity EntityType, q Query) ([]Entity, error) {
	var all []Entity
	for {
		page, err := s.Query(ctx, entity, q)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if !page.HasMore {
			return all, nil
		}
		q.Cursor = page.NextCursor
	}
}

// Constructors for the common value shapes.

func Text(s string) Value  { return Value{Type: TypeText, Text: s} }
func Email(s string) Value { return Value{Type: TypeEmail, Text: s} }

// Select wraps an enumerated option name.
func Select(s string) Value { return Value{Type: TypeSelect, Text: s} }

func Checkbox(b bool) Value { return Value{Type: TypeCheckbox, Checkbox: b} }

func Date(t time.Time) Value {
	u := t.UTC()
	return Value{Type: TypeDate, Date: &u}
}

// EmptyDate clears a date property.
func EmptyDate() Value { return Value{Type: TypeDate} }

func Relation(ids ...string) Value { return Value{Type: TypeRelation, Relation: ids} }

func Number(n float64) Value { return Value{Type: TypeNumber, Number: &n} }

// FirstRelation returns the first related id of a relation value, or "".
func (v Value) FirstRelation() string {
	if len(v.Relation) == 0 {
		return ""
	}
	return v.Relation[0]
}
