package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"hardware_ledger/db"
	"hardware_ledger/events"
	"hardware_ledger/ledger"
	"hardware_ledger/memstore"
	"hardware_ledger/metrics"
	"hardware_ledger/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router    *gin.Engine
	DB        *gorm.DB      // STORE_DRIVER=memory 时为 nil
	RDB       *redis.Client // REDIS_ADDR 为空时为 nil
	Config    Config
	Logger    *zap.Logger
	Publisher events.Publisher
	Registry  *ledger.Registry
	Tracker   *ledger.Tracker
	Tokens    *TokenManager

	appSess   *session.AppSessionStore
	responses session.ResponseStore
}

// Config 从环境变量读取
type Config struct {
	Port           string
	Environment    string
	StoreDriver    string // postgres | memory
	DatabaseURL    string
	RedisAddr      string
	RedisPwd       string
	WebOrigins     []string
	JWTSecret      string
	TokenTTL       time.Duration
	SessionTTL     time.Duration
	IdempotencyTTL time.Duration

	KafkaBrokers        []string
	KafkaClientID       string
	KafkaTopicInventory string
	KafkaTopicLoans     string

	SeedCatalog bool
	CatalogFile string
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }
func (a *App) Responses() session.ResponseStore      { return a.responses }

// Sessions returns the cookie session lookup, or nil without redis.
func (a *App) Sessions() SessionLookup {
	if a.appSess == nil {
		return nil
	}
	return a.appSess
}

func MustNew() *App {
	cfg := LoadConfig()
	logger := NewLogger(cfg.Environment)

	a, err := New(cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	return a
}

// New wires the store, redis, publisher, services and router from cfg.
func New(cfg Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	// --- Store: Postgres or in-process ---
	var store ledger.Store
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		store = memstore.New()
	case "postgres", "":
		conn, err := db.ConnectDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.DB = conn
		store = db.NewRepo(conn)
		logger.Info("database connected")
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	// --- Redis ---
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.RDB = rdb
		a.appSess = session.NewAppSessionStore(rdb, cfg.SessionTTL)
		a.responses = session.NewRedisResponseStore(rdb)
	} else {
		logger.Warn("REDIS_ADDR not set: cookie sessions disabled, idempotency keys kept in memory")
		a.responses = session.NewMemoryResponseStore()
	}

	// --- Events ---
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:        cfg.KafkaBrokers,
			ClientID:       cfg.KafkaClientID,
			TopicInventory: cfg.KafkaTopicInventory,
			TopicLoans:     cfg.KafkaTopicLoans,
			Retries:        3,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.Publisher = pub
	} else {
		a.Publisher = events.NewLogPublisher(logger)
	}

	a.Tokens = NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	if !a.Tokens.Enabled() {
		logger.Warn("JWT_SECRET not set: bearer tokens are rejected")
	}

	a.Registry = ledger.NewRegistry(store, a.Publisher, logger.Named("registry"))
	a.Tracker = ledger.NewTracker(store, a.Registry, a.Publisher, logger.Named("tracker"))

	if cfg.SeedCatalog {
		entries := DefaultCatalog
		if cfg.CatalogFile != "" {
			var err error
			if entries, err = LoadCatalog(cfg.CatalogFile); err != nil {
				return nil, err
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := SeedCatalog(ctx, a.Registry, entries, logger); err != nil {
			return nil, err
		}
	}

	// --- Gin ---
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(logger), metrics.GinMiddleware())
	useCORS(r, cfg.WebOrigins)
	a.Router = r
	return a, nil
}

// Ready pings the database and redis.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err != nil {
			errs = append(errs, err)
		} else if err := sqlDB.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if a.RDB != nil {
		if err := a.RDB.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn("close publisher", zap.Error(err))
		}
	}
	if a.RDB != nil {
		_ = a.RDB.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.Logger.Sync()
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// LoadConfig reads Config from the environment.
func LoadConfig() Config {
	get := func(k, def string) string {
		v := os.Getenv(k)
		if v == "" {
			return def
		}
		return v
	}
	seconds := func(k string, def time.Duration) time.Duration {
		n, err := strconv.Atoi(os.Getenv(k))
		if err != nil || n <= 0 {
			return def
		}
		return time.Duration(n) * time.Second
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			get("DB_HOST", "127.0.0.1"),
			get("DB_USER", "postgres"),
			os.Getenv("DB_PASSWORD"),
			get("DB_NAME", "hardware_ledger"),
			get("DB_PORT", "5432"),
		)
	}
	seed, err := strconv.ParseBool(get("SEED_CATALOG", "true"))
	if err != nil {
		log.Printf("SEED_CATALOG=%q is not a bool, seeding enabled", os.Getenv("SEED_CATALOG"))
		seed = true
	}

	return Config{
		Port:           get("PORT", "3001"),
		Environment:    get("ENVIRONMENT", "development"),
		StoreDriver:    get("STORE_DRIVER", "postgres"),
		DatabaseURL:    dsn,
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPwd:       os.Getenv("REDIS_PASSWORD"),
		WebOrigins:     splitCSV(get("WEB_ORIGIN", "http://localhost:5173")),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenTTL:       seconds("TOKEN_TTL_SECONDS", 12*time.Hour),
		SessionTTL:     seconds("SESSION_TTL_SECONDS", 24*time.Hour),
		IdempotencyTTL: seconds("IDEMPOTENCY_TTL_SECONDS", 5*time.Minute),

		KafkaBrokers:        splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaClientID:       get("KAFKA_CLIENT_ID", "hardware-ledger"),
		KafkaTopicInventory: get("KAFKA_TOPIC_INVENTORY", "hardware.inventory"),
		KafkaTopicLoans:     get("KAFKA_TOPIC_LOANS", "hardware.loans"),

		SeedCatalog: seed,
		CatalogFile: os.Getenv("CATALOG_FILE"),
	}
}
