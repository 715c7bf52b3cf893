// Package bootstrap wires config, storage connections, and every core
// component into a runnable server, mirroring the teacher's dependency
// assembly split between connection setup (this file) and route
// registration (api.go).
package bootstrap

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"mailtriage/adapter/out/cache"
	"mailtriage/adapter/out/modelprovider"
	"mailtriage/adapter/out/mongodb"
	"mailtriage/adapter/out/persistence"
	"mailtriage/config"
	"mailtriage/core/classification"
	"mailtriage/core/eventlog"
	"mailtriage/core/extraction"
	"mailtriage/core/feedback"
	"mailtriage/core/llm"
	"mailtriage/core/orchestrator"
	"mailtriage/core/port/out"
	"mailtriage/core/review"
	"mailtriage/core/scan"
	"mailtriage/core/webhook"
	"mailtriage/infra/database"
	"mailtriage/pkg/logger"
)

// Dependencies holds every wired component main.go and the HTTP layer need.
type Dependencies struct {
	Config *config.Config

	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	Events       *eventlog.Log
	Orchestrator *orchestrator.Orchestrator
	ScanCtrl     *scan.Controller
	Webhook      *webhook.Handler
	ReviewQueue  *review.Queue
	Feedback     *feedback.Tracker

	MailProvider out.MailProvider // external collaborator; not implemented by this module (spec §6)
}

// NewDependencies connects to every backing store and constructs the full
// component graph. A MongoDB or Redis connection failure is tolerated (the
// affected adapters degrade: no body store, no preference cache); a
// Postgres failure is fatal since every repository needs it.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Warn("redis connection failed, preference cache disabled")
	} else {
		deps.Redis = redisClient
		cleanups = append(cleanups, func() { redisClient.Close() })
	}

	var bodies out.BodyStore
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			logger.WithError(err).Warn("mongodb connection failed, body store disabled")
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() { mongoClient.Disconnect(context.Background()) })
			bodyAdapter := mongodb.NewBodyAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := bodyAdapter.EnsureIndexes(context.Background()); err != nil {
				logger.WithError(err).Warn("failed to ensure email_bodies indexes")
			}
			bodies = bodyAdapter
		}
	}

	events := eventlog.NewLog(persistence.NewEventAdapter(sqlDB))
	deps.Events = events

	knownDomains, prefs := persistence.NewKnownDomainAdapter(sqlDB), persistence.NewPreferenceAdapter(sqlDB)

	var prefCache out.PreferenceCache
	if deps.Redis != nil {
		prefCache = cache.NewPreferenceCache(deps.Redis)
	}

	provider := modelprovider.NewDualProvider(
		modelprovider.BackendConfig{
			Name:    "primary",
			BaseURL: cfg.ModelPrimaryEndpoint,
			APIKey:  cfg.ModelPrimaryAPIKey,
			Model:   cfg.ModelPrimaryModelID,
			Timeout: cfg.ModelTimeout(),
		},
		modelprovider.BackendConfig{
			Name:    "fallback",
			BaseURL: cfg.ModelFallbackEndpoint,
			APIKey:  cfg.ModelFallbackAPIKey,
			Model:   cfg.ModelFallbackModelID,
			Timeout: cfg.ModelTimeout(),
		},
	)
	llmClient := llm.NewClient(provider)

	ruleLayer := classification.NewRuleLayer(knownDomains)
	historyLayer := classification.NewHistoryLayer(prefs, prefCache)
	modelLayer := classification.NewModelLayer(llmClient)
	combiner := classification.NewCombiner(ruleLayer, historyLayer, modelLayer, classification.CombinerConfig{
		BootstrapWeights: classification.Weights{Rule: cfg.BootstrapWeightRule, History: cfg.BootstrapWeightHistory, Model: cfg.BootstrapWeightModel},
		SteadyWeights:    classification.Weights{Rule: cfg.SteadyWeightRule, History: cfg.SteadyWeightHistory, Model: cfg.SteadyWeightModel},
		SmartLLMSkip:     cfg.SmartLLMSkip,
	})

	extractor := extraction.NewExtractor(llmClient)
	reviewQueue := review.NewQueue(persistence.NewReviewQueueAdapter(sqlDB), provider)
	deps.ReviewQueue = reviewQueue
	deps.Feedback = feedback.NewTracker(prefs, prefCache, events)

	processedEmails := persistence.NewProcessedEmailAdapter(sqlDB)
	accounts := persistence.NewAccountAdapter(sqlDB)

	memory := persistence.NewMemoryAdapter(sqlDB)

	deps.Orchestrator = orchestrator.NewOrchestrator(
		combiner, extractor, processedEmails, bodies, memory, reviewQueue, accounts, events,
		orchestrator.Config{
			HighConfidenceThreshold:   cfg.HighConfidenceThreshold,
			MediumConfidenceThreshold: cfg.MediumConfidenceThreshold,
		},
	)

	deps.ScanCtrl = scan.NewController(persistence.NewScanStateAdapter(sqlDB), processedEmails, deps.MailProvider, deps.Orchestrator, events)
	deps.Webhook = webhook.NewHandler(persistence.NewSubscriptionAdapter(sqlDB), deps.MailProvider, deps.Orchestrator, events)

	return deps, cleanup, nil
}
