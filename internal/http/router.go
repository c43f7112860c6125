package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/geocoder89/booknotes/internal/auth"
	"github.com/geocoder89/booknotes/internal/cache"
	"github.com/geocoder89/booknotes/internal/config"
	"github.com/geocoder89/booknotes/internal/http/handlers"
	"github.com/geocoder89/booknotes/internal/http/middlewares"
	"github.com/geocoder89/booknotes/internal/notifications"
	"github.com/geocoder89/booknotes/internal/observability"
	"github.com/geocoder89/booknotes/internal/repo"
	"github.com/geocoder89/booknotes/internal/security"
	"github.com/geocoder89/booknotes/internal/storage"
)

// Deps are the process-wide resources the router wires into handlers.
type Deps struct {
	Store    repo.Store
	Cache    cache.Cache
	Images   storage.ImageHost
	Notifier notifications.Notifier

	// Prom and Gatherer may be nil; /metrics is only mounted with a Gatherer.
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
}

func NewRouter(log *slog.Logger, deps Deps, cfg config.Config) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers.RegisterValidators()

	if deps.Cache == nil {
		deps.Cache = cache.NewMemory(cfg.CacheTTL)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewLogNotifier(log)
	}

	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	if cfg.OTelEndpoint != "" {
		r.Use(otelgin.Middleware("booknotes"))
	}
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders(cfg.Env == "prod"))
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	// health
	h := handlers.NewHealthHandler(log, map[string]handlers.Pinger{
		"store": deps.Store.Ping,
		"cache": deps.Cache.Ping,
	})
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	r.GET("/docs/openapi.yaml", handlers.OpenAPI)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	jwtManager := auth.NewManager(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authMW := middlewares.NewAuthMiddleware(jwtManager)

	var writeGuard gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.RequireAuthForWrites {
		writeGuard = authMW.RequireAuth()
	}

	jsonBody := middlewares.JSONBody(cfg.MaxBodyBytes)

	// auth
	authHandler := handlers.NewAuthHandler(deps.Store.Users, jwtManager, security.NewHasher(cfg.BcryptCost), deps.Notifier, deps.Prom, log)
	authLimiter := middlewares.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)

	authGroup := r.Group("/auth", authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	authGroup.GET("/me", authMW.RequireAuth(), authHandler.Me)

	authJSON := authGroup.Group("", jsonBody)
	{
		authJSON.POST("/register", authHandler.Register)
		authJSON.POST("/login", authHandler.Login)
		authJSON.POST("/logout", authHandler.Logout)
		authJSON.POST("/refresh", authHandler.Refresh)
		authJSON.POST("/verify/request", authHandler.RequestVerification)
		authJSON.POST("/verify", authHandler.VerifyEmail)
		authJSON.POST("/password/forgot", authHandler.ForgotPassword)
		authJSON.POST("/password/reset", authHandler.ResetPassword)
	}

	// books and summaries
	booksHandler := handlers.NewBooksHandler(deps.Store.Books, deps.Cache, deps.Prom, log)
	summariesHandler := handlers.NewSummariesHandler(deps.Store.Books, deps.Store.Summaries, cfg.SummaryFormat, log)

	reads := r.Group("/book")
	{
		reads.GET("", booksHandler.ListBooks)
		reads.GET("/:id", booksHandler.GetBook)
		reads.GET("/:id/summary", summariesHandler.GetSummary)
	}

	writes := r.Group("/book", writeGuard, jsonBody)
	{
		writes.POST("", booksHandler.CreateBook)
		writes.PATCH("/:id", booksHandler.UpdateBook)
		writes.DELETE("/:id", booksHandler.DeleteBook)
		writes.POST("/:id/summary", summariesHandler.CreateSummary)
		writes.PATCH("/:id/summary", summariesHandler.UpdateSummary)
	}

	// uploads carry their own body limit
	if deps.Images != nil {
		uploadHandler := handlers.NewUploadHandler(deps.Images, cfg.UploadMaxBytes, deps.Prom, log)
		uploadLimiter := middlewares.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)

		r.POST("/upload", writeGuard, uploadLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), uploadHandler.UploadImage)
	}

	return r
}
