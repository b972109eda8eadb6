package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"salon-chat/config"
	"salon-chat/internal/domain/staff"
	"salon-chat/internal/events"
	"salon-chat/internal/handler"
	"salon-chat/internal/middleware"
	"salon-chat/internal/presence"
	"salon-chat/internal/proxy"
	redisx "salon-chat/internal/redis"
	"salon-chat/internal/repository"
	"salon-chat/internal/server"
	"salon-chat/internal/services"
	"salon-chat/internal/storage"
	"salon-chat/internal/telemetry"
	"salon-chat/internal/websocket"
	"salon-chat/internal/workerpool"
	"salon-chat/pkg/database"
	"salon-chat/pkg/logger"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, l *logger.Logger) error {
	shutdownTracing, err := telemetry.Init(ctx, cfg.OTelEndpoint, cfg.ServiceName, cfg.AppMode)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			l.Logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	checks := map[string]handler.Checker{}

	var (
		chatRepo    repository.ChatRepository
		messageRepo repository.MessageRepository
		staffDir    repository.StaffDirectory
	)
	switch cfg.StoreDriver {
	case "memory":
		store := repository.NewMemoryStore()
		chatRepo, messageRepo = store.Chats(), store.Messages()
		staffDir = repository.NewMemoryStaffDirectory(memoryRoster(cfg.MemoryStaffIDs, l)...)
		l.Infof("Using in-memory store")
	default:
		db, err := database.Connect(cfg)
		if err != nil {
			return err
		}
		defer database.Close(db)
		if err := repository.InitSchema(db); err != nil {
			return err
		}
		chatRepo = repository.NewChatRepository(db)
		messageRepo = repository.NewMessageRepository(db)
		staffDir = repository.NewStaffDirectory(db)
		checks["database"] = func(ctx context.Context) error { return database.Ping(ctx, db) }
	}

	var (
		sinks       []events.NamedPublisher
		sendLimiter services.SendLimiter
		apiLimiter  middleware.RequestLimiter
	)
	if cfg.RedisAddr() != "" {
		client, err := redisx.NewClient(ctx, redisx.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		limiter := redisx.NewRateLimiter(client, redisx.RateLimitConfig{
			MessageLimit:  cfg.SendLimitPerWindow,
			MessageWindow: cfg.SendLimitWindow,
			APILimit:      cfg.APILimitPerWindow,
			APIWindow:     cfg.APILimitWindow,
		})
		sendLimiter, apiLimiter = limiter, limiter
		sinks = append(sinks, events.NamedPublisher{Name: "redis", Publisher: redisx.NewPublisher(client)})
		checks["redis"] = redisCheck(client)
	}
	if cfg.KafkaBrokers != "" {
		kafka := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafka.Close()
		sinks = append(sinks, events.NamedPublisher{Name: "kafka", Publisher: kafka})
	}
	relay := events.NewRelay(0, l.Named("relay"), sinks...)

	var presigner services.Presigner
	if cfg.S3Bucket != "" {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKeyID,
			SecretKey:  cfg.S3SecretAccessKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBaseURL,
			PresignTTL: cfg.S3PresignExpiry,
		})
		if err != nil {
			return err
		}
		presigner = s3Client
	}

	wsLog := websocket.NewLogger(l)
	hub := websocket.NewHub(relay, wsLog)
	registry := presence.NewRegistry(cfg.TypingTTL)
	pool := workerpool.New(cfg.WorkerPoolSize, l.Named("workerpool"))
	locks := services.NewKeyedMutex()

	chatSvc := services.NewChatService(chatRepo, staffDir, proxy.NewAccessControl(chatRepo), locks, hub, l.Named("chats"))
	readSvc := services.NewReadService(chatRepo, messageRepo, chatSvc, hub)
	msgSvc := services.NewMessageService(messageRepo, chatSvc, readSvc, locks, hub, l.Named("messages"), services.MessageServiceOptions{
		Limiter:             sendLimiter,
		MarkReadOnFirstPage: cfg.MarkReadOnFirstPage,
	})
	chatSvc.SetSystemPoster(msgSvc)
	uploadSvc := services.NewUploadS3Service(chatSvc, presigner)
	authSvc := services.NewAuthService(cfg.JWTSecret, staffDir)

	gateway := websocket.NewGateway(authSvc, hub, registry, websocket.Services{
		Chats:    chatSvc,
		Messages: msgSvc,
		Reads:    readSvc,
	}, pool, wsLog, websocket.Options{SendBuffer: cfg.ClientSendBuffer})

	srv := server.New(cfg, l)
	srv.SetupRoutes(server.Handlers{
		Chats:    handler.NewChatHandler(chatSvc, readSvc),
		Messages: handler.NewMessageHandler(msgSvc, readSvc),
		Presence: handler.NewPresenceHandler(chatSvc, registry),
		Uploads:  handler.NewUploadHandler(uploadSvc),
		Health:   handler.NewHealthHandler(checks),
		Gateway:  gateway,
	}, authSvc, apiLimiter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Start(gctx)
		hub.CloseAll()
		return err
	})
	g.Go(func() error {
		return registry.Run(gctx, gateway.TypingExpired)
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})

	err = g.Wait()
	pool.Wait()
	return err
}

func redisCheck(client *goredis.Client) handler.Checker {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// memoryRoster turns a comma separated id list into active staff records.
func memoryRoster(raw string, l *logger.Logger) []staff.Staff {
	var out []staff.Staff
	for _, part := range strings.Split(raw, ",") {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			if strings.TrimSpace(part) != "" {
				l.Logger.Warn("skipping invalid staff id", zap.String("id", part))
			}
			continue
		}
		out = append(out, staff.Staff{ID: id, Name: id.String()[:8], Role: "staff", IsActive: true})
	}
	return out
}
