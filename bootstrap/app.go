package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"winkwink_server/config"
	"winkwink_server/controllers"
	"winkwink_server/middleware"
	"winkwink_server/routes"
	"winkwink_server/services"
	"winkwink_server/store"
	"winkwink_server/store/redisstore"
)

// Services is everything the HTTP layer calls into
type Services struct {
	Relationships *services.RelationshipService
	Chat          *services.ChatService
	Discovery     *services.DiscoveryService
	Profiles      *services.UserProfileService
	Media         *services.MediaService
}

// NewServices builds the services over one store. A nil window store disables
// rate limiting.
func NewServices(st store.Store, windows services.WindowStore, presigner services.Presigner, cfg config.Config, log *zap.Logger) *Services {
	uow := services.NewUnitOfWork(st, services.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}, log)

	var limiter *services.RateLimiter
	if windows != nil {
		limiter = services.NewRateLimiter(windows, cfg.RateLimit.SignalsPerMinute, cfg.RateLimit.MessagesPerMinute)
	}

	return &Services{
		Relationships: services.NewRelationshipService(uow, limiter, log),
		Chat:          services.NewChatService(uow, limiter, cfg.Chat.MaxMessageLength, log),
		Discovery:     services.NewDiscoveryService(uow, cfg.Discovery.Limit),
		Profiles:      services.NewUserProfileService(uow, log),
		Media:         services.NewMediaService(uow, presigner, cfg.S3.Bucket),
	}
}

// NewRouter registers every route and wraps the router in logging, panic
// recovery and CORS.
func NewRouter(svc *Services, cfg config.Config, log *zap.Logger) http.Handler {
	r := mux.NewRouter()
	routes.RegisterRoutes(r)

	api := routes.NewAPIRouter(r, middleware.Auth([]byte(cfg.Auth.JWTSecret), log))
	routes.RegisterWinkRoutes(api, controllers.NewRelationshipController(svc.Relationships, svc.Discovery, log))
	routes.RegisterChatRoutes(api, controllers.NewChatController(svc.Chat, log))
	routes.RegisterUserProfileRoutes(api, controllers.NewUserProfileController(svc.Profiles, svc.Relationships, log), !cfg.IsProd())
	routes.RegisterS3Routes(api, controllers.NewMediaController(svc.Media, log))

	var h http.Handler = r
	h = middleware.Recoverer(log)(h)
	h = middleware.RequestLogger(log)(h)
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(h)
}

type App struct {
	cfg       config.Config
	log       *zap.Logger
	server    *http.Server
	resources *Resources
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	res, err := Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var windows services.WindowStore
	if res.Redis != nil {
		windows = redisstore.NewRateRepo(res.Redis)
	}
	svc := NewServices(res.Store, windows, res.Presigner, cfg, log)

	server := &http.Server{
		Addr:         net.JoinHostPort("", cfg.HTTP.Port),
		Handler:      NewRouter(svc, cfg, log),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{cfg: cfg, log: log, server: server, resources: res}, nil
}

func (a *App) Run() error {
	a.log.Info("api server started",
		zap.String("addr", a.server.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
		zap.Bool("rate_limited", a.resources.Redis != nil),
	)
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.resources.Close()
	return err
}
