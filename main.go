package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-core/internal/auth"
	"chat-core/internal/authority"
	"chat-core/internal/cache"
	"chat-core/internal/chats"
	"chat-core/internal/config"
	"chat-core/internal/db"
	"chat-core/internal/grpcserver"
	"chat-core/internal/handlers"
	"chat-core/internal/jobs"
	"chat-core/internal/memstore"
	"chat-core/internal/mentions"
	"chat-core/internal/messaging"
	"chat-core/internal/middleware"
	"chat-core/internal/observability"
	"chat-core/internal/rabbitmq"
	"chat-core/internal/receipts"
	"chat-core/internal/repositories"
	"chat-core/internal/telemetry"
	"chat-core/internal/ws"
)

type stores struct {
	chats    repositories.ChatRepository
	members  repositories.MemberRepository
	messages repositories.MessageRepository
	reads    repositories.ReadRepository
	mentions repositories.MentionRepository
	users    repositories.UserRepository
}

func openStores(cfg config.Config) (stores, func()) {
	if cfg.Store == "memory" {
		log.Printf("store=memory, state is lost on restart")
		m := memstore.New()
		return stores{
			chats:    m.Chats(),
			members:  m.Members(),
			messages: m.Messages(),
			reads:    m.Reads(),
			mentions: m.Mentions(),
			users:    m.Users(),
		}, func() {}
	}

	database, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	return stores{
		chats:    repositories.NewChatRepo(database),
		members:  repositories.NewMemberRepo(database),
		messages: repositories.NewMessageRepo(database),
		reads:    repositories.NewReadRepo(database),
		mentions: repositories.NewMentionRepo(database),
		users:    repositories.NewUserRepo(database),
	}, func() { _ = database.Close() }
}

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	st, closeStores := openStores(cfg)
	defer closeStores()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	authz := authority.New(st.chats, st.members)
	rt := ws.NewRealtime(st.chats)
	if cfg.RedisURL != "" {
		mirror, err := cache.NewRedisPresence(cfg.RedisURL)
		if err != nil {
			log.Printf("presence mirror disabled: %v", err)
		} else {
			defer mirror.Close()
			rt.Presence.WithMirror(mirror)
		}
	}

	recorder := mentions.NewRecorder(st.chats, st.mentions)
	messageSvc := messaging.NewService(authz, st.messages, recorder, rt.Broadcaster)
	engine := receipts.NewEngine(authz, st.chats, st.members, st.messages, st.reads, rt.Broadcaster)
	chatSvc := chats.NewService(authz, st.chats, st.members, st.messages, st.users, rt.Broadcaster)
	resolver := auth.NewJWTResolver(cfg.JWTSecret, st.users)

	api := handlers.Handlers{
		Chats:    handlers.NewChatHandler(chatSvc, authz, audit),
		Messages: handlers.NewMessageHandler(messageSvc, engine, recorder, authz),
		Presence: handlers.NewPresenceHandler(rt.Presence),
	}
	wsHandler := ws.NewHandler(ctx, rt, ws.Services{Members: authz, Sender: messageSvc, Reads: engine}, resolver)

	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", wsHandler.Handle)

	authed := router.Group("/", middleware.AuthMiddleware(resolver))
	api.Register(authed)
	handlers.RegisterDebugRoutes(authed, audit, engine, cfg.ReadPurgeAfter, cfg.DebugRoutes)

	grpcSrv := grpcserver.New()
	go func() {
		if err := grpcSrv.ListenAndServe(":" + cfg.GRPCPort); err != nil {
			log.Printf("grpc server error: %v", err)
			stop()
		}
	}()

	if cfg.RedisURL != "" {
		runner, err := jobs.NewRunner(cfg.RedisURL, cfg.ReadPurgeCron, cfg.ReadPurgeAfter, engine)
		if err != nil {
			log.Printf("background jobs disabled: %v", err)
		} else {
			go func() {
				if err := runner.Run(ctx); err != nil {
					log.Printf("asynq runner error: %v", err)
				}
			}()
		}
	}

	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Printf("http server listening addr=%s store=%s", httpSrv.Addr, cfg.Store)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
			stop()
		}
	}()
	grpcSrv.MarkServing()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	grpcSrv.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown error: %v", err)
	}
}
