package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	httpadapter "mailtriage/adapter/in/http"
	"mailtriage/config"
	"mailtriage/pkg/logger"
)

// NewAPI builds the fiber app: health, the push-notification webhook, and
// nothing else. Every other REST surface the teacher exposed sits outside
// this system's scope (spec.md §6 only promises a contract shape for the
// processed-email/review-queue/scan listing endpoints, left to a future
// pass, per the Open Questions recorded in DESIGN.md).
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{Level: logLevel, Service: "mailtriage-api"})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             10 * 1024 * 1024,
	})

	healthHandler := httpadapter.NewHealthHandlerWithDeps(deps.DB, deps.Redis)
	healthHandler.Register(app)

	webhookHandler := httpadapter.NewWebhookHandler(deps.Webhook, deps.Redis)
	webhookHandler.Register(app)

	logger.Info("mailtriage API initialized")
	return app, cleanup, nil
}
