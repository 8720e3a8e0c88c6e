package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"teamchat/internal/analysis"
	"teamchat/internal/authclient"
	"teamchat/internal/chunker"
	"teamchat/internal/config"
	"teamchat/internal/db"
	"teamchat/internal/embeddings"
	"teamchat/internal/handlers"
	"teamchat/internal/llm"
	"teamchat/internal/middleware"
	"teamchat/internal/observability"
	"teamchat/internal/rabbitmq"
	"teamchat/internal/rag"
	"teamchat/internal/realtime"
	"teamchat/internal/repositories"
	"teamchat/internal/telemetry"
	"teamchat/internal/vectorindex"
	"teamchat/internal/ws"
)

func main() {
	cfg := config.Load()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "development" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx := context.Background()
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		logrus.WithError(err).Warn("tracing disabled")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	database, err := db.Connect(cfg.DatabaseDSN, cfg.OpenAI.Dimensions)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to db")
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logrus.WithFields(logrus.Fields{
		"mode":   rabbitmq.PublisherMode(publisher),
		"reason": rabbitmq.PublisherNoopReason(publisher),
	}).Info("event publisher ready")

	emitter := telemetry.NewAuditEmitter(publisher, "audit.teamchat", "teamchat", cfg.Environment)

	authClient := authclient.NewClient(cfg.AuthBaseURL)

	channelRepo := repositories.NewChannelRepo(database)
	dmRepo := repositories.NewDMRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	reactionRepo := repositories.NewReactionRepo(database)
	analysisRepo := repositories.NewAnalysisRepo(database)
	userRepo := repositories.NewUserRepo(database)

	splitter := chunker.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	embedder := embeddings.NewGenerator(embeddings.NewOpenAIClient(cfg.OpenAI), cfg.Embedding.BatchSize, cfg.Embedding.Cooldown)
	index := vectorindex.New(database, cfg.OpenAI.Dimensions)
	llmClient := llm.NewClient(cfg.OpenAI)
	retriever := rag.NewRetriever(embedder, index)
	askEngine := rag.NewEngine(retriever, llmClient, cfg.Retrieval.TopK, cfg.Retrieval.MinScore)
	analysisEngine := analysis.NewEngine(
		messageRepo, channelRepo, dmRepo, userRepo, analysisRepo,
		retriever, llmClient, splitter,
		cfg.Retrieval.TopK, cfg.Retrieval.MinScore, cfg.Analysis.CacheTTL,
	)

	stream := realtime.NewAMQPStream(cfg.AMQPURL, cfg.AMQPExchange)
	defer stream.Close()
	fanout := realtime.NewRouter(stream, cfg.Realtime.RetryDelay, cfg.Realtime.MaxRetries)
	defer fanout.Close()
	hub := ws.NewHub(fanout)

	channelHandler := handlers.NewChannelHandler(channelRepo, messageRepo, userRepo, publisher, index, emitter)
	dmHandler := handlers.NewDMHandler(dmRepo, messageRepo, userRepo, publisher)
	reactionHandler := handlers.NewReactionHandler(reactionRepo, messageRepo, channelRepo, dmRepo, publisher)
	analysisHandler := handlers.NewAnalysisHandler(analysisEngine, emitter)
	askHandler := handlers.NewAskHandler(askEngine, emitter)
	statsHandler := handlers.NewStatsHandler(index)
	socketHandler := ws.NewSocketHandler(hub, channelRepo, dmRepo, userRepo, authClient)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("teamchat"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(authClient)

	router.GET("/channels", authMiddleware, channelHandler.ListChannels)
	router.POST("/channels", authMiddleware, channelHandler.CreateChannel)
	router.POST("/channels/:channel_id/join", authMiddleware, channelHandler.JoinChannel)
	router.GET("/channels/:channel_id/messages", authMiddleware, channelHandler.ListMessages)
	router.POST("/channels/:channel_id/messages", authMiddleware, channelHandler.PostMessage)
	router.PATCH("/channels/:channel_id/messages/:message_id", authMiddleware, channelHandler.EditMessage)
	router.DELETE("/channels/:channel_id/messages/:message_id", authMiddleware, channelHandler.DeleteMessage)

	router.POST("/dms/start", authMiddleware, dmHandler.StartThread)
	router.GET("/dms/:dm_id/messages", authMiddleware, dmHandler.ListMessages)
	router.POST("/dms/:dm_id/messages", authMiddleware, dmHandler.PostMessage)

	router.POST("/messages/:message_id/reactions", authMiddleware, reactionHandler.Toggle)
	router.GET("/messages/:message_id/analysis", authMiddleware, analysisHandler.Get)
	router.POST("/ask", authMiddleware, askHandler.Ask)
	router.GET("/index/stats", authMiddleware, statsHandler.Get)

	router.GET("/ws/channels/:channel_id", socketHandler.HandleChannel)
	router.GET("/ws/dms/:dm_id", socketHandler.HandleDM)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, emitter, cfg.DebugRoutes)

	logrus.WithField("port", cfg.Port).Info("teamchat listening")
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.WithError(err).Fatal("server error")
	}
}
