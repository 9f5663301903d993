package app

import (
	"context"
	"net/http"
	"sync"
	"therapyroom/internal/cache"
	"therapyroom/internal/config"
	"therapyroom/internal/game"
	"therapyroom/internal/repository"
	"therapyroom/internal/service"
	"therapyroom/internal/transport/rest"
	"therapyroom/internal/transport/rest/handler"
	"therapyroom/internal/transport/ws"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
)

// App holds the wired process: stores, services and the HTTP handler
type App struct {
	Config *config.Config

	SessionRepo      repository.SessionRepo
	NotificationRepo repository.NotificationRepo
	Revocations      cache.RevocationCache
	Feed             cache.NotificationFeed

	Auth        *service.AuthService
	Coordinator *service.Coordinator
	Sessions    *service.SessionService
	TurnClock   *service.TurnClock
	Reaper      *service.Reaper

	sessionOutbox *service.Outbox
	notifyOutbox  *service.Outbox

	Handler http.Handler
}

// New wires every component. Nothing runs until Run is called.
func New(cfg *config.Config, db *mongo.Database, rdb *redis.Client) *App {
	a := &App{
		Config:           cfg,
		SessionRepo:      repository.NewSessionRepo(db),
		NotificationRepo: repository.NewNotificationRepo(db),
		Revocations:      cache.NewRevocationCache(rdb),
		Feed:             cache.NewNotificationFeed(rdb),
		sessionOutbox:    service.NewOutbox("sessions", cfg.OutboxSize),
		notifyOutbox:     service.NewOutbox("notifications", cfg.OutboxSize),
	}

	a.Auth = service.NewAuthService(cfg.JWTSecret, a.Revocations)
	// The access gate reads the store directly; everything else may use the cache.
	cachedSessions := cache.NewCachedSessionRepo(a.SessionRepo, cache.NewSessionCache(rdb))
	notifier := service.NewNotifier(a.notifyOutbox, a.NotificationRepo, a.Feed)
	recorder := service.NewRecorder(a.sessionOutbox, cachedSessions)
	machine := game.NewMachine(game.RulesFrom(cfg.Game), game.NewDeck(nil))

	a.Coordinator = service.NewCoordinator(machine, service.NewAccessGate(a.SessionRepo), recorder, notifier)
	a.Sessions = service.NewSessionService(cachedSessions, notifier, a.Coordinator)
	a.TurnClock = service.NewTurnClock(a.Coordinator, cfg.Game.TickInterval)
	a.Reaper = service.NewReaper(a.Coordinator, cfg.Game.SweepInterval, cfg.Game.IdleThreshold, cfg.Game.EmptyRoomGrace)

	health := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"mongo": func(ctx context.Context) error { return db.Client().Ping(ctx, nil) },
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, func(ctx context.Context) (interface{}, error) {
		return a.Coordinator.Stats(ctx)
	})

	a.Handler = rest.NewRouter(&rest.Container{
		Config:   cfg,
		Auth:     a.Auth,
		Tokens:   a.Auth,
		Sessions: a.Sessions,
		Health:   health,
		WS:       ws.NewHandler(a.Auth, a.Coordinator, cfg.AllowedOrigins()).ServeWS,
	})
	return a
}

// Run starts the coordinator loop, the clocks and the outbox workers, and
// blocks until ctx is cancelled and all of them have stopped.
func (a *App) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for name, run := range map[string]func(context.Context){
		"coordinator":   a.Coordinator.Run,
		"turn clock":    a.TurnClock.Run,
		"reaper":        a.Reaper.Run,
		"session sink":  a.sessionOutbox.Run,
		"notifications": a.notifyOutbox.Run,
	} {
		wg.Add(1)
		go func(name string, run func(context.Context)) {
			defer wg.Done()
			run(ctx)
			log.Debug().Str("worker", name).Msg("worker stopped")
		}(name, run)
	}
	log.Info().
		Int("round_seconds", a.Config.Game.RoundDurationSeconds).
		Int("max_rounds", a.Config.Game.MaxRounds).
		Dur("idle_threshold", a.Config.Game.IdleThreshold).
		Msg("workers started")
	wg.Wait()
}
