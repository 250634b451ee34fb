package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreNotion   = "notion"
	StorePostgres = "postgres"
)

type Config struct {
	// Record store selection.
	StoreBackend string
	DatabaseURL  string

	// Notion record store.
	NotionToken   string
	GamesDB       string
	ContactsDB    string
	TemplatesDB   string
	EmailQueueDB  string
	OrdersDB      string

	// Gmail OAuth.
	GmailClientID     string
	GmailClientSecret string
	GmailRefreshToken string

	// Dashboard mirror.
	DashboardToken    string
	DashboardOrdersDB string

	// Optional run-event publishing.
	AMQPURL string

	// Local state.
	LockFile string
	StateDir string

	// HTTP trigger server.
	Port string

	// Cadence knobs.
	MaxSendsPerCycle     int
	SendDelay            time.Duration
	ContactCooldownDays  int
	SchoolCooldownDays   int
	NoResponseDays       int
	MaxSequenceSteps     int
	FollowupIntervalDays int
}

// Load reads .env (when present) then the environment. Fields required for
// the selected backend are validated; everything else has a default.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else {
		// Best effort; env vars may come from the environment directly.
		godotenv.Load()
	}

	cfg := Config{
		StoreBackend: getenv("RECORD_STORE", StoreNotion),
		DatabaseURL:  os.Getenv("DATABASE_URL"),

		NotionToken:  os.Getenv("NOTION_TOKEN"),
		GamesDB:      os.Getenv("GAMES_DB_ID"),
		ContactsDB:   os.Getenv("CONTACTS_DB_ID"),
		TemplatesDB:  os.Getenv("TEMPLATES_DB_ID"),
		EmailQueueDB: os.Getenv("EMAIL_QUEUE_DB_ID"),
		OrdersDB:     os.Getenv("ORDERS_DB_ID"),

		GmailClientID:     os.Getenv("GMAIL_CLIENT_ID"),
		GmailClientSecret: os.Getenv("GMAIL_CLIENT_SECRET"),
		GmailRefreshToken: os.Getenv("GMAIL_REFRESH_TOKEN"),

		DashboardToken:    os.Getenv("DASHBOARD_TOKEN"),
		DashboardOrdersDB: os.Getenv("DASHBOARD_ORDERS_DB_ID"),

		AMQPURL: os.Getenv("AMQP_URL"),

		LockFile: getenv("LOCK_FILE", "/tmp/outreach-run.lock"),
		StateDir: getenv("STATE_DIR", ".tmp"),
		Port:     getenv("PORT", "8080"),
	}

	var err error
	if cfg.MaxSendsPerCycle, err = getint("MAX_SENDS_PER_CYCLE", 10); err != nil {
		return Config{}, err
	}
	sendDelaySecs, err := getint("SEND_DELAY_SECONDS", 3)
	if err != nil {
		return Config{}, err
	}
	cfg.SendDelay = time.Duration(sendDelaySecs) * time.Second
	if cfg.ContactCooldownDays, err = getint("CONTACT_COOLDOWN_DAYS", 7); err != nil {
		return Config{}, err
	}
	if cfg.SchoolCooldownDays, err = getint("SCHOOL_COOLDOWN_DAYS", 3); err != nil {
		return Config{}, err
	}
	if cfg.NoResponseDays, err = getint("NO_RESPONSE_DAYS", 14); err != nil {
		return Config{}, err
	}
	if cfg.MaxSequenceSteps, err = getint("MAX_SEQUENCE_STEPS", 3); err != nil {
		return Config{}, err
	}
	if cfg.FollowupIntervalDays, err = getint("FOLLOWUP_INTERVAL_DAYS", 7); err != nil {
		return Config{}, err
	}

	switch cfg.StoreBackend {
	case StoreNotion:
		if cfg.NotionToken == "" {
			return Config{}, fmt.Errorf("NOTION_TOKEN is required with RECORD_STORE=notion")
		}
		for name, val := range map[string]string{
			"GAMES_DB_ID":       cfg.GamesDB,
			"CONTACTS_DB_ID":    cfg.ContactsDB,
			"TEMPLATES_DB_ID":   cfg.TemplatesDB,
			"EMAIL_QUEUE_DB_ID": cfg.EmailQueueDB,
			"ORDERS_DB_ID":      cfg.OrdersDB,
		} {
			if val == "" {
				return Config{}, fmt.Errorf("%s is required with RECORD_STORE=notion", name)
			}
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required with RECORD_STORE=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown RECORD_STORE %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// MirrorEnabled reports whether dashboard mirroring is configured. Without
// it, orders are still created locally but never pushed.
func (c Config) MirrorEnabled() bool {
	return c.DashboardToken != "" && c.DashboardOrdersDB != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
