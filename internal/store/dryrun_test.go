package store

import (
	"context"
	"strings"
	"testing"
)

func TestDryRunStoreSuppressesWrites(t *testing.T) {
	inner := NewMemoryStore()
	ctx := context.Background()
	id, err := inner.Create(ctx, EntityGames, Properties{"Title": Text("real")})
	if err != nil {
		t.Fatal(err)
	}

	dry := NewDryRunStore(inner)

	fakeID, err := dry.Create(ctx, EntityGames, Properties{"Title": Text("imaginary")})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(fakeID, "dry-run-") {
		t.Errorf("id = %q", fakeID)
	}
	if err := dry.Update(ctx, id, Properties{"Title": Text("changed")}); err != nil {
		t.Fatal(err)
	}
	if err := dry.Archive(ctx, id); err != nil {
		t.Fatal(err)
	}

	// Nothing above touched the inner store.
	got, err := inner.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Properties["Title"].Text != "real" || got.Archived {
		t.Fatalf("inner record mutated: %+v", got)
	}
	page, err := inner.Query(ctx, EntityGames, Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("inner store has %d records", len(page.Items))
	}

	// Reads pass through.
	if _, err := dry.Get(ctx, id); err != nil {
		t.Fatal(err)
	}
}
