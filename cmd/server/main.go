package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/livite/outreach-backend/internal/clock"
	"github.com/livite/outreach-backend/internal/config"
	"github.com/livite/outreach-backend/internal/handler"
	"github.com/livite/outreach-backend/internal/mail"
	"github.com/livite/outreach-backend/internal/mirror"
	"github.com/livite/outreach-backend/internal/queue"
	"github.com/livite/outreach-backend/internal/service"
	"github.com/livite/outreach-backend/internal/store"
)

func main() {
	envFile := flag.String("env", "", "path to a .env file (optional)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal("⚠️ Config error:", err)
	}

	db, err := buildStore(cfg)
	if err != nil {
		log.Fatal("⚠️ Store init failed:", err)
	}

	provider := mail.NewGmail(mail.GmailOptions{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		RefreshToken: cfg.GmailRefreshToken,
	})

	var dash mirror.Client
	if cfg.MirrorEnabled() {
		dash = mirror.NewNotionClient(mirror.NotionClientOptions{
			Token:      cfg.DashboardToken,
			DatabaseID: cfg.DashboardOrdersDB,
		})
	}

	var events queue.Publisher = queue.NopPublisher{}
	if cfg.AMQPURL != "" {
		pub, err := queue.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			log.Println("⚠️ AMQP unavailable, run events disabled:", err)
		} else {
			events = pub
			defer pub.Close()
		}
	}

	h := &handler.PipelineHandler{
		Orch:     buildPipeline(cfg, db, provider, dash, events),
		LockFile: cfg.LockFile,
	}

	r := chi.NewRouter()
	r.Mount("/", h.Router())

	log.Println("🚀 Outreach server running on :" + cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}

func buildStore(cfg config.Config) (store.RecordStore, error) {
	if cfg.StoreBackend == config.StorePostgres {
		return store.OpenPostgres(cfg.DatabaseURL)
	}
	return store.NewNotionStore(store.NotionStoreOptions{
		Token: cfg.NotionToken,
		Databases: map[store.EntityType]string{
			store.EntityGames:      cfg.GamesDB,
			store.EntityContacts:   cfg.ContactsDB,
			store.EntityTemplates:  cfg.TemplatesDB,
			store.EntityEmailQueue: cfg.EmailQueueDB,
			store.EntityOrders:     cfg.OrdersDB,
		},
	}), nil
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
