package store

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
)

// DryRunStore passes reads through and logs writes without performing them.
// Created entities get synthetic ids so downstream dry-run steps can keep
// going.
type DryRunStore struct {
	Inner RecordStore

	seq int64
}

func NewDryRunStore(inner RecordStore) *DryRunStore {
	return &DryRunStore{Inner: inner}
}

func (d *DryRunStore) Query(ctx context.Context, entity EntityType, q Query) (Page, error) {
	return d.Inner.Query(ctx, entity, q)
}

func (d *DryRunStore) Get(ctx context.Context, id string) (Entity, error) {
	return d.Inner.Get(ctx, id)
}

func (d *DryRunStore) Create(ctx context.Context, entity EntityType, props Properties) (string, error) {
	id := fmt.Sprintf("dry-run-%s-%d", entity, atomic.AddInt64(&d.seq, 1))
	log.Printf("  [DRY RUN] would create %s record (%d properties)", entity, len(props))
	return id, nil
}

func (d *DryRunStore) Update(ctx context.Context, id string, props Properties) error {
	log.Printf("  [DRY RUN] would update %s (%d properties)", id, len(props))
	return nil
}

func (d *DryRunStore) Archive(ctx context.Context, id string) error {
	log.Printf("  [DRY RUN] would archive %s", id)
	return nil
}
