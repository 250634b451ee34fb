package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/livite/outreach-backend/internal/errors"
)

const memoryPageSize = 100

// MemoryStore is an in-memory RecordStore. It backs the test suites and the
// seeder's dry runs, and keeps insertion order so "store order" is stable.
type MemoryStore struct {
	mu      sync.Mutex
	seq     int
	order   []string
	records map[string]*Entity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Entity)}
}

func (m *MemoryStore) Create(ctx context.Context, entity EntityType, props Properties) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("%s-%d", entity, m.seq)
	m.records[id] = &Entity{ID: id, Type: entity, Properties: cloneProps(props)}
	m.order = append(m.order, id)
	return id, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Entity{}, apperrors.ErrNotFound
	}
	return cloneEntity(rec), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, props Properties) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	for k, v := range props {
		rec.Properties[k] = v
	}
	return nil
}

func (m *MemoryStore) Archive(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	rec.Archived = true
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, entity EntityType, q Query) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []Entity
	for _, id := range m.order {
		rec := m.records[id]
		if rec.Type != entity || rec.Archived {
			continue
		}
		if MatchFilter(rec.Properties, q.Filter) {
			matched = append(matched, cloneEntity(rec))
		}
	}

	if q.Sort != nil {
		sortEntities(matched, *q.Sort)
	}

	offset := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return Page{}, fmt.Errorf("bad cursor %q", q.Cursor)
		}
		offset = n
	}
	if offset >= len(matched) {
		return Page{}, nil
	}

	end := offset + memoryPageSize
	if end > len(matched) {
		end = len(matched)
	}
	page := Page{Items: matched[offset:end]}
	if end < len(matched) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// MatchFilter evaluates a filter against one property bag. Shared by the
// memory and postgres stores.
func MatchFilter(props Properties, f Filter) bool {
	for _, c := range f.All {
		if !matchCond(props, c) {
			return false
		}
	}
	if len(f.Any) > 0 {
		hit := false
		for _, c := range f.Any {
			if matchCond(props, c) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func matchCond(props Properties, c Cond) bool {
	v := props[c.Property]
	switch c.Op {
	case OpEquals:
		return compareValue(v, c.Value) == 0 && !isEmptyValue(v)
	case OpNotEquals:
		return compareValue(v, c.Value) != 0 || isEmptyValue(v)
	case OpContains:
		want := c.Value.FirstRelation()
		for _, id := range v.Relation {
			if id == want {
				return true
			}
		}
		return false
	case OpBefore:
		return v.Date != nil && c.Value.Date != nil && v.Date.Before(*c.Value.Date)
	case OpOnOrBefore:
		return v.Date != nil && c.Value.Date != nil && !v.Date.After(*c.Value.Date)
	case OpOnOrAfter:
		return v.Date != nil && c.Value.Date != nil && !v.Date.Before(*c.Value.Date)
	case OpIsEmpty:
		return isEmptyValue(v)
	case OpIsNotEmpty:
		return !isEmptyValue(v)
	}
	return false
}

func compareValue(a, b Value) int {
	if a.Number != nil || b.Number != nil {
		var an, bn float64
		if a.Number != nil {
			an = *a.Number
		}
		if b.Number != nil {
			bn = *b.Number
		}
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}
	if a.Type == TypeCheckbox || b.Type == TypeCheckbox {
		if a.Checkbox == b.Checkbox {
			return 0
		}
		return 1
	}
	return strings.Compare(a.Text, b.Text)
}

func isEmptyValue(v Value) bool {
	switch v.Type {
	case TypeDate:
		return v.Date == nil
	case TypeRelation:
		return len(v.Relation) == 0
	case TypeNumber:
		return v.Number == nil
	case TypeCheckbox:
		return !v.Checkbox
	}
	return v.Text == ""
}

func sortEntities(items []Entity, s SortOrder) {
	sort.SliceStable(items, func(i, j int) bool {
		less := compareValue(items[i].Properties[s.Property], items[j].Properties[s.Property]) < 0
		if s.Descending {
			return !less && compareValue(items[i].Properties[s.Property], items[j].Properties[s.Property]) != 0
		}
		return less
	})
}

func cloneProps(props Properties) Properties {
	out := make(Properties, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func cloneEntity(e *Entity) Entity {
	return Entity{ID: e.ID, Type: e.Type, Archived: e.Archived, Properties: cloneProps(e.Properties)}
}
