package bootstrap

import (
	"context"
	"log"

	"burnt-beats-be/internal/admission"
	"burnt-beats-be/internal/collab"
	"burnt-beats-be/internal/config"
	"burnt-beats-be/internal/controller"
	"burnt-beats-be/internal/dto"
	"burnt-beats-be/internal/jobs"
	"burnt-beats-be/internal/pkg/logger"
	"burnt-beats-be/internal/repository/implementation"
	"burnt-beats-be/internal/repository/redisstore"
	"burnt-beats-be/internal/service"
	internalWS "burnt-beats-be/internal/websocket"
	"burnt-beats-be/pkg/engine"

	pktNats "burnt-beats-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	SongController       controller.ISongController
	GenerationController controller.IGenerationController

	// Realtime
	RealtimeHandler *internalWS.RealtimeHandler
	WebSocketHub    *internalWS.Hub

	// Background workers (exposed for main.go to run)
	ProgressBridge      *jobs.Bridge
	NotificationService *service.NotificationService
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. In-proc report pipeline (engine -> bridge)
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 2.5 Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	var snapshots *redisstore.JobSnapshotStore
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis, job snapshots disabled: %v", err)
	} else {
		snapshots = redisstore.NewJobSnapshotStore(rdb, cfg.Jobs.Retention)
	}

	// 3. Repositories
	songRepo := implementation.NewSongRepository(db)
	jobRepo := implementation.NewGenerationJobRepository(db)

	// 4. Domain core
	songService := service.NewSongService(songRepo)

	rtLogger := logger.NewIsolatedLogger("logs/realtime.log")
	wsHub := internalWS.NewHub(rtLogger)

	sessionRegistry := collab.NewRegistry(songService, songService, rtLogger)
	broadcaster := collab.NewBroadcaster(sessionRegistry, wsHub, rtLogger)

	// A reaped connection leaves every session it was part of, and the
	// remaining participants hear about it.
	wsHub.OnDetach(func(connId uuid.UUID) {
		for _, d := range sessionRegistry.LeaveAll(context.Background(), connId) {
			broadcaster.Publish(d.SongId, dto.ParticipantEventMessage{
				Type:        dto.MsgParticipantLeft,
				SongId:      d.SongId,
				UserId:      d.Participant.UserId,
				DisplayName: d.Participant.DisplayName,
			}, connId)
		}
	})
	go wsHub.Run()

	machine := jobs.NewStateMachine(cfg.Jobs.Retention, sysLogger)
	reports := jobs.NewReportPublisher(cfg.Jobs.ReportTopic, pubSub)

	var bridgeSnapshots jobs.SnapshotStore
	if snapshots != nil {
		bridgeSnapshots = snapshots
	}
	bridge := jobs.NewBridge(pubSub, cfg.Jobs.ReportTopic, machine, wsHub, bridgeSnapshots, natsPub, jobRepo, sysLogger)

	limiter := admission.NewLimiter(cfg.Admission.Window, cfg.Admission.MaxRequests, sysLogger)

	engineClient := engine.NewClient(cfg.Engine.BaseURL, cfg.Engine.RequestTimeout, reports, sysLogger)

	generationService := service.NewGenerationService(
		songRepo,
		jobRepo,
		machine,
		limiter,
		engineClient,
		reports,
		snapshots,
		sysLogger,
	)

	// 5. Notification worker
	notifService := service.NewNotificationService(natsSub, wsHub, rtLogger)
	if natsSub != nil {
		go notifService.Start()
	}

	// 6. Realtime handler
	realtimeHandler := internalWS.NewRealtimeHandler(wsHub, sessionRegistry, broadcaster, machine, cfg.Realtime, rtLogger)

	return &Container{
		SongController:       controller.NewSongController(songService),
		GenerationController: controller.NewGenerationController(generationService),
		RealtimeHandler:      realtimeHandler,
		WebSocketHub:         wsHub,
		ProgressBridge:       bridge,
		NotificationService:  notifService,
	}
}
