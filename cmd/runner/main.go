package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	"github.com/livite/outreach-backend/internal/clock"
	"github.com/livite/outreach-backend/internal/config"
	"github.com/livite/outreach-backend/internal/mail"
	"github.com/livite/outreach-backend/internal/mirror"
	"github.com/livite/outreach-backend/internal/queue"
	"github.com/livite/outreach-backend/internal/runlock"
	"github.com/livite/outreach-backend/internal/service"
	"github.com/livite/outreach-backend/internal/store"
)

func main() {
	envFile := flag.String("env", "", "path to a .env file (optional)")
	step := flag.String("step", "", "run a single step instead of the full pipeline")
	dryRun := flag.Bool("dry-run", false, "log writes and sends without performing them")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal("⚠️ Config error:", err)
	}

	lock, err := runlock.Acquire(cfg.LockFile)
	if errors.Is(err, runlock.ErrHeld) {
		log.Println("Another run is in progress, exiting")
		return
	}
	if err != nil {
		log.Fatal("⚠️ Run lock failed:", err)
	}
	defer lock.Release()

	db, err := buildStore(cfg, *dryRun)
	if err != nil {
		log.Fatal("⚠️ Store init failed:", err)
	}

	var provider mail.Provider
	if *dryRun {
		provider = mail.NewDryRun("dry-run@localhost")
	} else {
		provider = mail.NewGmail(mail.GmailOptions{
			ClientID:     cfg.GmailClientID,
			ClientSecret: cfg.GmailClientSecret,
			RefreshToken: cfg.GmailRefreshToken,
		})
	}

	var dash mirror.Client
	if cfg.MirrorEnabled() && !*dryRun {
		dash = mirror.NewNotionClient(mirror.NotionClientOptions{
			Token:      cfg.DashboardToken,
			DatabaseID: cfg.DashboardOrdersDB,
		})
	}

	events := buildPublisher(cfg)
	defer events.Close()

	orch := buildPipeline(cfg, db, provider, dash, events)

	ctx := context.Background()
	var summary service.RunSummary
	if *step != "" {
		summary, err = orch.RunStep(ctx, *step)
		if err != nil {
			log.Fatal("⚠️", err)
		}
	} else {
		summary = orch.Run(ctx)
	}

	if !summary.MailOK {
		os.Exit(1)
	}
}

func buildStore(cfg config.Config, dryRun bool) (store.RecordStore, error) {
	var db store.RecordStore
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pg, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		db = pg
	default:
		db = store.NewNotionStore(store.NotionStoreOptions{
			Token: cfg.NotionToken,
			Databases: map[store.EntityType]string{
				store.EntityGames:      cfg.GamesDB,
				store.EntityContacts:   cfg.ContactsDB,
				store.EntityTemplates:  cfg.TemplatesDB,
				store.EntityEmailQueue: cfg.EmailQueueDB,
				store.EntityOrders:     cfg.OrdersDB,
			},
		})
	}
	if dryRun {
		return store.NewDryRunStore(db), nil
	}
	return db, nil
}

func buildPublisher(cfg config.Config) queue.Publisher {
	if cfg.AMQPURL == "" {
		return queue.NopPublisher{}
	}
	pub, err := queue.NewAMQPPublisher(cfg.AMQPURL)
	if err != nil {
		log.Println("⚠️ AMQP unavailable, run events disabled:", err)
		return queue.NopPublisher{}
	}
	return pub
}

func buildPipeline(cfg config.Config, db store.RecordStore, provider mail.Provider, dash mirror.Client, events queue.Publisher) *service.Orchestrator {
	clk := clock.NewSystem()
	state := service.NewLocalState(cfg.StateDir)
	templates := &service.Templates{Store: db}
	admission := &service.Admission{
		Store: db, Clock: clk,
		ContactCooldownDays: cfg.ContactCooldownDays,
		SchoolCooldownDays:  cfg.SchoolCooldownDays,
	}

	return &service.Orchestrator{
		Mail: provider, Clock: clk, Events: events,
		Drafts: &service.DraftGenerator{Store: db, Clock: clk, Templates: templates, Admission: admission},
		Followups: &service.FollowupScheduler{
			Store: db, Clock: clk, Templates: templates, Admission: admission,
			MaxSequenceSteps:     cfg.MaxSequenceSteps,
			FollowupIntervalDays: cfg.FollowupIntervalDays,
		},
		Dispatch: &service.Dispatcher{
			Store: db, Mail: provider, Clock: clk, Events: events,
			MaxSendsPerCycle:     cfg.MaxSendsPerCycle,
			SendDelay:            cfg.SendDelay,
			FollowupIntervalDays: cfg.FollowupIntervalDays,
		},
		Replies: &service.ReplyClassifier{Store: db, Mail: provider, Clock: clk},
		Undo:    &service.UndoEngine{Store: db, Mirror: dash, State: state, Clock: clk},
		Convert: &service.Converter{Store: db, Mirror: dash, State: state, Clock: clk},
		Cleanup: &service.Cleanup{Store: db, Clock: clk, NoResponseDays: cfg.NoResponseDays},
	}
}
