package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/livite/outreach-backend/internal/config"
	"github.com/livite/outreach-backend/internal/model"
	"github.com/livite/outreach-backend/internal/store"
)

// Seeds the templates database with a starter sequence so a fresh install
// can draft emails immediately. Existing templates with the same name are
// left alone, so the seeder is safe to re-run.
func main() {
	envFile := flag.String("env", "", "path to a .env file (optional)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal("⚠️ Config error:", err)
	}

	var db store.RecordStore
	if cfg.StoreBackend == config.StorePostgres {
		pg, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("⚠️ Store init failed:", err)
		}
		db = pg
	} else {
		db = store.NewNotionStore(store.NotionStoreOptions{
			Token: cfg.NotionToken,
			Databases: map[store.EntityType]string{
				store.EntityTemplates: cfg.TemplatesDB,
			},
		})
	}

	ctx := context.Background()
	seeded := 0
	for _, tpl := range defaultTemplates() {
		exists, err := templateExists(ctx, db, tpl.Name)
		if err != nil {
			log.Fatal("⚠️ Template lookup failed:", err)
		}
		if exists {
			fmt.Printf("Skipped (exists): %s\n", tpl.Name)
			continue
		}
		if _, err := db.Create(ctx, store.EntityTemplates, tpl.Properties()); err != nil {
			log.Fatalf("⚠️ Seeding %s failed: %v", tpl.Name, err)
		}
		fmt.Printf("Seeded: %s\n", tpl.Name)
		seeded++
	}

	fmt.Printf("Template seeding completed, %d created\n", seeded)
}

func templateExists(ctx context.Context, db store.RecordStore, name string) (bool, error) {
	found, err := store.QueryAll(ctx, db, store.EntityTemplates, store.Query{Filter: store.Filter{All: []store.Cond{
		{Property: model.TemplatePropTitle, Op: store.OpEquals, Value: store.Text(name)},
	}}})
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func defaultTemplates() []model.Template {
	return []model.Template{
		{
			Name:         "Cold Intro",
			SequenceStep: 1,
			SequenceType: model.SequenceCold,
			SubjectLine:  "Catering for {{away_school}} {{sport}} on {{game_date_formatted}}",
			Body: "Hi {{contact_first_name}},\n\n" +
				"I'm reaching out from {{our_company}}. We cater team meals for visiting " +
				"{{sport}} programs, and we saw {{away_school}} has a game at {{venue}} on " +
				"{{game_date_formatted}}.\n\n" +
				"We handle pre-game and post-game meals, delivered to the field or the bus. " +
				"Would you be open to a quick quote for the trip?\n\n" +
				"Best,\n{{our_company}}",
		},
		{
			Name:         "Returning Intro",
			SequenceStep: 1,
			SequenceType: model.SequenceReturning,
			SubjectLine:  "Welcome back! Catering for {{away_school}} {{sport}}",
			Body: "Hi {{contact_first_name}},\n\n" +
				"Great to see {{away_school}} back on the schedule. We'd love to cater for " +
				"your {{sport}} team again when you visit {{venue}} on {{game_date_formatted}}.\n\n" +
				"Same menu as last time, or want to mix it up?\n\n" +
				"Best,\n{{our_company}}",
		},
		{
			Name:         "Follow-up 1",
			SequenceStep: 2,
			DaysAfter:    7,
			SubjectLine:  "Following up: catering for {{away_school}} {{sport}}",
			Body: "Hi {{contact_first_name}},\n\n" +
				"Just floating this back to the top of your inbox. We'd still love to take " +
				"care of the team meal for the {{game_date_formatted}} game at {{venue}}.\n\n" +
				"Happy to send a menu and pricing if that's easier.\n\n" +
				"Best,\n{{our_company}}",
		},
		{
			Name:         "Follow-up 2",
			SequenceStep: 3,
			DaysAfter:    7,
			SubjectLine:  "Last check-in before the {{away_school}} trip",
			Body: "Hi {{contact_first_name}},\n\n" +
				"Last note from me before your {{game_date_formatted}} game. If meals are " +
				"already covered, no worries at all. If not, we can still get you set up.\n\n" +
				"Best,\n{{our_company}}",
		},
	}
}
