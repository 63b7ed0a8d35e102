// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"worksuite-service/internal/config"
	"worksuite-service/internal/db"
	authHandler "worksuite-service/internal/handlers/auth"
	notifyHandler "worksuite-service/internal/handlers/notification"
	tfHandler "worksuite-service/internal/handlers/twofactor"
	wsHandler "worksuite-service/internal/handlers/websocket"
	"worksuite-service/internal/middleware"
	"worksuite-service/internal/pkg/jwt"
	"worksuite-service/internal/pkg/ratelimit"
	"worksuite-service/internal/pkg/security"
	"worksuite-service/internal/repository/postgres"
	authUsecase "worksuite-service/internal/service/auth"
	"worksuite-service/internal/service/email"
	notifyUsecase "worksuite-service/internal/service/notification"
	tfUsecase "worksuite-service/internal/service/twofactor"
	"worksuite-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// csrfExemptPrefixes are surfaces called by installers, license checks
// and external webhooks: no browser session, no double-submit cookie.
var csrfExemptPrefixes = []string{
	"/api/v1/setup",
	"/api/v1/license",
	"/api/v1/support",
	"/api/v1/webhooks",
}

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	httpSrv *http.Server
	cancel  context.CancelFunc
}

func NewServer(cfg config.AppConfig) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return &Server{cfg: cfg, engine: gin.New()}
}

func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to build logger: %w", err)
	}
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	// ----- Redis (optional) -----
	var redisClient redis.UniversalClient
	var limiterStore ratelimit.Store
	if s.cfg.RedisAddr != "" {
		client, err := db.NewRedisClient(db.RedisConfig{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPass,
			DB:       0,
			PoolSize: 10,
		})
		if err != nil {
			logger.Warn("redis unavailable, using in-memory rate limiting", zap.Error(err))
		} else {
			redisClient = client
			limiterStore = ratelimit.NewRedisStore(client)
			logger.Info("redis connected", zap.String("addr", s.cfg.RedisAddr))
		}
	}
	if limiterStore == nil {
		limiterStore = ratelimit.NewMemoryStore()
		logger.Info("rate limiting backed by in-memory store")
	}

	// ----- JWT Manager -----
	jwtManager, err := jwt.Build(s.cfg.JWT)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to build token manager: %w", err)
	}

	// ----- TOTP secret encryption -----
	encryptor, err := security.NewEncryptor(s.cfg.TOTPEncryptionKey)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to build encryptor: %w", err)
	}

	// ----- Email -----
	emailSender := email.NewEmailSender(
		s.cfg.SMTPHost,
		s.cfg.SMTPPort,
		s.cfg.SMTPUser,
		s.cfg.SMTPPass,
		s.cfg.SMTPFromName,
		s.cfg.SMTPSecure,
	)

	// ----- Repositories -----
	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	resetRepo := postgres.NewPasswordResetRepository(pool)
	twoFactorRepo := postgres.NewTwoFactorRepository(pool)
	notifyRepo := postgres.NewNotificationRepository(pool)

	// ----- Services -----
	twoFactorService := tfUsecase.NewService(twoFactorRepo, userRepo, encryptor, emailSender, s.cfg.TOTPIssuer, logger)

	// The hub needs the auth service for token validation and the auth
	// service needs the hub for force-logout pushes. Wire the auth
	// service without a pusher first, then hand it to the hub.
	authService := authUsecase.NewAuthService(
		userRepo,
		sessionRepo,
		resetRepo,
		twoFactorService,
		emailSender,
		jwtManager,
		redisClient,
		nil,
		s.cfg.BaseURL,
		logger,
	)

	hub := websocket.NewHub(authService, logger)
	authService.SetPusher(hub)
	go hub.Run(ctx)

	notifService := notifyUsecase.NewNotificationService(notifyRepo, hub, logger)

	go runJanitor(ctx, sessionRepo, resetRepo, twoFactorRepo, logger)

	// ----- Handlers -----
	authHandlerInst := authHandler.NewAuthHandler(authService, notifService, s.cfg.IsProduction())
	tfHandlerInst := tfHandler.NewTwoFactorHandler(twoFactorService, notifService)
	notifHandlerInst := notifyHandler.NewNotificationHandler(notifService)
	wsHandlerInst := wsHandler.NewWebSocketHandler(hub, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(authService)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.RequestIDMiddleware(),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(s.cfg.WebOrigin),
	)

	// ----- Router -----
	handlers := &Handlers{
		AuthHandler:      authHandlerInst,
		TwoFactorHandler: tfHandlerInst,
		NotifHandler:     notifHandlerInst,
		WSHandler:        wsHandlerInst,
		AuthMiddleware:   authMiddleware,
		LimiterStore:     limiterStore,
		Logger:           logger,
	}
	SetupRouter(s.engine, handlers)

	// ----- Start HTTP -----
	s.httpSrv = &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	logger.Info("server listening", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.logger != nil {
		defer s.logger.Sync()
	}
	if s.httpSrv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}
