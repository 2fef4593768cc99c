package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat_presence_service/internal/api/handlers"
	apirouter "chat_presence_service/internal/api/router"
	"chat_presence_service/internal/chat/app"
	"chat_presence_service/internal/chat/presence"
	"chat_presence_service/internal/chat/ratelimit"
	"chat_presence_service/internal/chat/repository"
	"chat_presence_service/internal/chat/router"
	"chat_presence_service/pkg/config"
	"chat_presence_service/pkg/database"
	"chat_presence_service/pkg/logger"
	testtool "chat_presence_service/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type stores struct {
	rooms    repository.RoomRepository
	invites  repository.InvitationRepository
	messages repository.MessageRepository
	items    repository.ItemDirectory
	closers  []func()
}

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	cfg.ApplyDefaults()
	if config.EnvConfig.ChatServicePort != "" {
		cfg.Port = config.EnvConfig.ChatServicePort
	}
	if cfg.InstanceID == "" {
		host, _ := os.Hostname()
		cfg.InstanceID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 儲存層
	st := openStores(ctx, cfg)
	defer func() {
		for _, c := range st.closers {
			c()
		}
	}()

	// 2. Redis (presence, pub/sub, rate limit)
	var redisClient *redis.Client
	if cfg.Storage != "memory" {
		redisClient = connectRedis(cfg)
		defer redisClient.Close()
	}

	var (
		pubsub   repository.PubSub
		online   repository.OnlineRepository
		lastSeen repository.LastSeenRepository
	)
	if redisClient != nil {
		pubsub = repository.NewRedisPubSub(redisClient)
		online = repository.NewRedisOnlineRepository(redisClient, cfg.Presence.HeartbeatTimeout)
		lastSeen = repository.NewRedisLastSeenRepository(
			database.NewRedisRepository[repository.LastSeen](redisClient, "chat:last_seen:"),
			cfg.Presence.LastSeenTTL,
		)
	} else {
		pubsub = repository.NewMemoryPubSub()
		online = repository.NewMemoryOnlineRepository()
		lastSeen = repository.NewMemoryLastSeenRepository()
	}

	registry := presence.NewRegistry()
	relay := presence.NewRelay(cfg.InstanceID, registry, pubsub, online, lastSeen)
	if err := relay.Run(ctx); err != nil {
		logger.Log.Fatal("subscribe relay failed", zap.Error(err))
	}
	typing := presence.NewTyping(relay, cfg.Presence.TypingTTL)
	typing.ClearWhenOffline(registry)
	go typing.Run(ctx, time.Second)

	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.New(cfg.RateLimit, redisClient)
	} else {
		limiter = ratelimit.New(cfg.RateLimit, nil)
	}

	sweeper := presence.NewSweeper(registry, cfg.Presence.SweepInterval, cfg.Presence.HeartbeatTimeout)
	if local, ok := limiter.(*ratelimit.LocalLimiter); ok {
		idle := cfg.RateLimit.Period * 2
		sweeper.Also(func(now time.Time) { local.Cleanup(idle) })
	}
	go sweeper.Run(ctx)

	// 3. 外部協作者，連不上就降級成 noop
	push, closePush := openPush(cfg)
	defer closePush()
	events, closeEvents := openEvents(cfg)
	defer closeEvents()
	attachments := openMinIO(cfg)

	// 4. UseCases
	msgUC := app.NewMessageUseCase(st.rooms, st.messages, limiter, relay, typing, push, events, attachments, cfg.MinIO.URLExpiry)
	roomUC := app.NewRoomUseCase(st.rooms, st.invites, st.items, st.messages, msgUC, relay, cfg.Invite.DefaultTTL)

	// 5. gRPC health
	health, err := database.NewHealthServer(":" + cfg.GRPCPort)
	if err != nil {
		logger.Log.Fatal("listen grpc health failed", zap.Error(err))
	}
	go func() {
		if err := health.Serve(); err != nil {
			logger.Log.Error("grpc health stopped", zap.Error(err))
		}
	}()
	defer health.Stop()

	testtool.StartPprof(os.Getenv("PPROF_ADDR"))

	// 6. Fiber
	r := fiber.New(fiber.Config{DisableStartupMessage: true})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Log.Fatal("Failed to open access log", zap.Error(err))
	}
	defer file.Close()
	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	apirouter.RegisterRoutes(r, handlers.NewChatHandler(roomUC, msgUC, registry))
	router.RegisterRoutes(ctx, r, app.NewChatWebsocketHandler(roomUC, msgUC, relay, app.WebsocketSettings{
		PingInterval:   cfg.Presence.PingInterval,
		OutboundBuffer: cfg.Presence.OutboundBuffer,
	}))

	go func() {
		<-ctx.Done()
		health.SetServing(false)
		logger.Log.Info("shutting down chat service")
		if err := r.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.Error("fiber shutdown", zap.Error(err))
		}
	}()

	health.SetServing(true)
	logger.Log.Info("Chat Service listening",
		zap.String("port", cfg.Port),
		zap.String("grpc", health.Addr()),
		zap.String("instance", cfg.InstanceID),
		zap.String("storage", cfg.Storage),
	)
	if err := r.Listen(":" + cfg.Port); err != nil {
		logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg config.Chat) stores {
	if cfg.Storage == "memory" {
		logger.Log.Warn("storage=memory, data lives only in this process")
		return stores{
			rooms:    repository.NewMemoryRoomRepository(),
			invites:  repository.NewMemoryInvitationRepository(),
			messages: repository.NewMemoryMessageRepository(),
			items:    repository.NewMemoryItemDirectory(),
		}
	}

	var st stores
	pg := cfg.PostgreSQL
	gdb, err := database.NewGormConnection(database.Connection{
		ConnectStr:    database.PostgresDSN(pg.User, pg.Password, pg.Host, pg.Port, pg.Database),
		RetryCount:    pg.RetryCount,
		RetryInterval: time.Duration(pg.RetryInterval) * time.Second,
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgres after retries", zap.String("host", pg.Host), zap.Error(err))
	}
	st.rooms = repository.NewRoomRepository(gdb)
	st.invites = repository.NewInvitationRepository(gdb)
	if err := st.rooms.AutoMigrate(); err != nil {
		logger.Log.Fatal("migrate chat tables failed", zap.Error(err))
	}

	m := cfg.MongoSQL
	uri := database.MongoURI(m.User, m.Password, m.Host, m.Port)
	mdb, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    uri,
		RetryCount:    m.RetryCount,
		RetryInterval: time.Duration(m.RetryInterval) * time.Second,
	}, m.Database)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB database after retries", zap.String("host", m.Host), zap.Error(err))
	}
	st.closers = append(st.closers, func() { _ = mdb.Close(context.Background()) })
	st.messages = repository.NewMongoMessageRepository(mdb.Database)
	if err := st.messages.EnsureIndexes(ctx); err != nil {
		logger.Log.Fatal("ensure message indexes failed", zap.Error(err))
	}

	// 商品資料屬於 marketplace 的資料庫，未設定時 inquiry 一律找不到商品
	it := cfg.Items
	if it.Host == "" {
		logger.Log.Warn("items database not configured, inquiries are disabled")
		st.items = repository.NewMemoryItemDirectory()
		return st
	}
	pool, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    database.PostgresDSN(it.User, it.Password, it.Host, it.Port, it.Database),
		RetryCount:    it.RetryCount,
		RetryInterval: time.Duration(it.RetryInterval) * time.Second,
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to items database after retries", zap.String("host", it.Host), zap.Error(err))
	}
	st.closers = append(st.closers, pool.Close)
	st.items = repository.NewPGItemDirectory(pool)
	return st
}

func connectRedis(cfg config.Chat) *redis.Client {
	var (
		client *redis.Client
		err    error
	)
	if cfg.Redis.Addr != "" {
		client, err = database.NewRedisStandalone(cfg.Redis.Addr, cfg.Redis.RedisDB)
	} else {
		masterName, sentinel := config.GetRedisSetting()
		client, err = database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	}
	if err != nil {
		logger.Log.Fatal("connect redis failed", zap.Error(err))
	}
	return client
}

func openPush(cfg config.Chat) (app.PushNotifier, func()) {
	if cfg.RabbitMQ.URL == "" {
		return app.NewNoopPushNotifier(), func() {}
	}
	conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    cfg.RabbitMQ.URL,
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: time.Duration(cfg.RabbitMQ.RetryInterval) * time.Second,
	})
	if err != nil {
		logger.Log.Error("rabbitmq unavailable, push notifications disabled", zap.Error(err))
		return app.NewNoopPushNotifier(), func() {}
	}
	ch, err := database.OpenQueueChannel(conn, cfg.RabbitMQ.Queue)
	if err != nil {
		logger.Log.Error("declare push queue failed, push notifications disabled", zap.Error(err))
		conn.Close()
		return app.NewNoopPushNotifier(), func() {}
	}
	return app.NewRabbitPushNotifier(database.NewRabbitRepository(ch), cfg.RabbitMQ.Queue), func() {
		ch.Close()
		conn.Close()
	}
}

func openEvents(cfg config.Chat) (app.EventPublisher, func()) {
	var brokers []string
	for _, b := range cfg.Kafka.Brokers {
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return app.NewNoopEventPublisher(), func() {}
	}
	writer, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
		Brokers:       brokers,
		Topic:         cfg.Kafka.Topic,
		RetryCount:    cfg.Kafka.RetryCount,
		RetryInterval: time.Duration(cfg.Kafka.RetryInterval) * time.Second,
	})
	if err != nil {
		logger.Log.Error("kafka unavailable, message events disabled", zap.Error(err))
		return app.NewNoopEventPublisher(), func() {}
	}
	return app.NewKafkaEventPublisher(writer), func() { _ = writer.Close() }
}

// openMinIO nil disables attachments
func openMinIO(cfg config.Chat) database.MinIOClientRepo {
	if cfg.MinIO.Endpoint == "" {
		return nil
	}
	mc, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      cfg.MinIO.Endpoint,
		User:          cfg.MinIO.User,
		Password:      cfg.MinIO.Password,
		BucketName:    cfg.MinIO.Bucket,
		UseSSL:        cfg.MinIO.UseSSL,
		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval) * time.Second,
	})
	if err != nil || mc == nil {
		logger.Log.Error("minio unavailable, attachments disabled", zap.Error(err))
		return nil
	}
	return mc
}
