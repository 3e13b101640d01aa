package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/doctrack/doctrack/handlers"
	"github.com/doctrack/doctrack/internal/config"
	"github.com/doctrack/doctrack/internal/controlnumber"
	"github.com/doctrack/doctrack/internal/database"
	"github.com/doctrack/doctrack/internal/document/handler"
	"github.com/doctrack/doctrack/internal/document/repository"
	"github.com/doctrack/doctrack/internal/document/service"
	"github.com/doctrack/doctrack/internal/feed"
	"github.com/doctrack/doctrack/internal/oidc"
	"github.com/doctrack/doctrack/internal/sessions"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/summary"
	"github.com/doctrack/doctrack/internal/tokens"
	"github.com/doctrack/doctrack/internal/users"
	"github.com/doctrack/doctrack/pkg/logger"
	"github.com/doctrack/doctrack/pkg/metrics"
	"github.com/doctrack/doctrack/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

// counters keyed by month scope are useless once the month is over
const sequencerTTL = 62 * 24 * time.Hour

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v minio=%v allocator=%s",
		cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "", cfg.Tracking.AllocatorMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS for the browser client.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Retry-After")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})

	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
			_ = rdb.Close()
			rdb = nil
		} else {
			logger.Infof("connected to Redis at %s", addr)
			defer rdb.Close()
		}
	}

	// Mounted after auth so authenticated callers are limited per principal.
	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			limit = middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win)
		} else {
			limit = middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
	}

	// Stores: Mongo when configured and reachable, memory otherwise.
	var (
		mongoCli  *mongo.Client
		docRepo   repository.Repository
		mongoDocs *repository.MongoRepo
		userRepo  users.UserRepository
		sessRepo  sessions.Repository
	)
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Fatalf("could not connect to MongoDB: %v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		mongoCli = client
		db := client.Database(cfg.MongoDB.Database)
		if mongoDocs, err = repository.NewMongoRepo(ctx, db.Collection(database.DocumentsCollection)); err != nil {
			logger.Fatalf("document store: %v", err)
		}
		docRepo = mongoDocs
		if userRepo, err = users.NewMongoUserRepository(ctx, db.Collection(database.UsersCollection)); err != nil {
			logger.Fatalf("user store: %v", err)
		}
		sessRepo = sessions.NewMongoRepository(db.Collection(database.SessionsCollection))
	} else {
		logger.Warn("MONGODB_URI not set: documents, users and sessions are kept in memory")
		docRepo = repository.NewMemoryRepo()
		userRepo = users.NewMemoryUserRepository()
		sessRepo = sessions.NewMemoryRepository()
	}
	// Redis wins for sessions when available.
	if rdb != nil {
		sessRepo = sessions.NewRedisRepository(rdb, "session:")
	}

	userSvc := users.NewService(userRepo)
	sessionsSvc := sessions.NewService(sessRepo, cfg.Sessions.TTL)

	var seq controlnumber.Sequencer = controlnumber.NewScanSequencer(docRepo)
	if cfg.Tracking.AllocatorMode == config.AllocatorRedis {
		if rdb == nil {
			logger.Fatalf("TRACKING_ALLOCATOR=redis requires a reachable Redis")
		}
		seq = controlnumber.NewRedisSequencer(rdb, docRepo, "", sequencerTTL)
	}
	logger.Infof("control numbers allocated by %s sequencer", seq.Name())

	var analyzer summary.Analyzer
	if cfg.Tracking.SummarizerURL != "" {
		analyzer = summary.NewHTTPAnalyzer(cfg.Tracking.SummarizerURL, cfg.Tracking.SummarizerTimeout)
	}

	var archive storage.ArchiveStore
	archiveOpts := storage.Options{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		UseSSL:    cfg.MinIO.UseSSL,
		Bucket:    cfg.MinIO.Bucket,
		Prefix:    cfg.MinIO.Prefix,
	}
	if archiveOpts.Enabled() {
		a, err := storage.NewMinIOArchive(ctx, archiveOpts)
		if err != nil {
			logger.Warnf("archive export disabled: %v", err)
		} else {
			archive = a
		}
	}

	// Change feed. Change streams see every writer so each instance fans
	// out locally; otherwise events travel through Redis when present.
	hub := feed.NewHub()
	var publisher feed.Publisher = hub
	switch {
	case cfg.MongoDB.ChangeStreams && mongoDocs != nil:
		publisher = feed.Discard{}
		go func() {
			publish := func(ev feed.Event) { _ = hub.Publish(ctx, ev) }
			if err := mongoDocs.Watch(ctx, publish); err != nil {
				logger.Errorf("change stream stopped: %v", err)
			}
		}()
	case rdb != nil:
		rp := feed.NewRedisPublisher(rdb, cfg.Tracking.FeedChannel)
		publisher = rp
		go func() {
			relay := func(ev feed.Event) { _ = hub.Publish(ctx, ev) }
			if err := rp.Relay(ctx, nil, relay); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("feed relay stopped: %v", err)
			}
		}()
	}

	docSvc := service.New(service.Options{
		Repo:      docRepo,
		Allocator: controlnumber.NewAllocator(seq),
		Analyzer:  summary.WithFallback(analyzer, cfg.Tracking.SummarizerTimeout),
		Resolver:  userSvc,
		Publisher: publisher,
		Archive:   archive,
	})

	// Verifiers: our own access tokens first, then the identity provider.
	var issuer *tokens.Issuer
	verifiers := middleware.FirstOf{}
	if cfg.JWT.Secret != "" {
		issuer = tokens.NewIssuer(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
		verifiers = append(verifiers, issuer)
	}
	if iss := cfg.Keycloak.Issuer(); iss != "" {
		ver, err := oidc.NewVerifier(ctx, iss, cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			verifiers = append(verifiers, ver)
		}
	}
	if cfg.Keycloak.AllowInsecure {
		logger.Warn("enabling insecure token verifier (integration mode)")
		verifiers = append(verifiers, oidc.NewInsecureVerifier())
	}
	if len(verifiers) == 0 {
		logger.Fatalf("no token verifier configured: set JWT_SECRET, KEYCLOAK_URL or ALLOW_INSECURE_TOKEN")
	}

	authOpts := []middleware.AuthOption{middleware.WithDispatchRole(cfg.Tracking.DispatchRole)}
	var blacklist *sessions.Blacklist
	if rdb != nil {
		blacklist = sessions.NewBlacklist(rdb, "")
		authOpts = append(authOpts, middleware.WithRevocations(blacklist))
	}
	auth := middleware.AuthMiddleware(verifiers, authOpts...)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := gin.H{"mongo": true, "redis": rdb != nil || cfg.Redis.Host == ""}
		ready := true
		if mongoCli != nil {
			if err := mongoCli.Ping(c.Request.Context(), nil); err != nil {
				deps["mongo"] = false
				ready = false
			}
		}
		if rdb != nil {
			if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
				deps["redis"] = false
				ready = false
			}
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	var revoker handlers.Revoker
	if blacklist != nil {
		revoker = blacklist
	}
	var accessIssuer handlers.AccessIssuer
	if issuer != nil {
		accessIssuer = issuer
	}
	handlers.NewAuthHandler(userSvc, sessionsSvc, accessIssuer, revoker).Register(r.Group("", auth, limit))
	handler.RegisterDocumentRoutes(r.Group("/api", auth, limit), docSvc)

	// Browsers cannot set headers on a WebSocket handshake.
	r.GET("/ws/feed", func(c *gin.Context) {
		if t := c.Query("access_token"); t != "" && c.GetHeader("Authorization") == "" {
			c.Request.Header.Set("Authorization", "Bearer "+t)
		}
		c.Next()
	}, auth, limit, gin.WrapF(hub.ServeWS))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	go func() {
		logger.Infof("starting doctrack on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
