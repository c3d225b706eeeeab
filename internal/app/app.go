// Package app assembles the auction engine from its stores and settings.
package app

import (
	"context"

	auction "auction-engine/internal/auctionService"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/cache"
	"auction-engine/internal/clock"
	"auction-engine/internal/config"
	"auction-engine/internal/lock"
	"auction-engine/internal/notifier"
	"auction-engine/internal/repository"
	"auction-engine/internal/repository/postgres"
	"auction-engine/internal/schedule"
	"auction-engine/internal/scheduler"
	"auction-engine/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores are the shared state the engine coordinates through
type Stores struct {
	Auctions      repository.AuctionDB
	Notifications repository.NotificationDB
	Leases        lock.Backend
	Schedule      schedule.TimeIndex
	Highest       cache.HighestBidCache
	Ping          func(ctx context.Context) error
}

// MemoryStores keeps everything in process. Only one instance may run.
func MemoryStores() Stores {
	repo := repository.NewMemoryRepo()
	return Stores{
		Auctions:      repo,
		Notifications: repo,
		Leases:        lock.NewMemoryBackend(),
		Schedule:      schedule.NewMemoryIndex(),
		Highest:       cache.NewMemoryCache(),
	}
}

// PostgresStores shares state through the database, so any number of
// instances may run against the same pool.
func PostgresStores(pool *pgxpool.Pool) Stores {
	store := postgres.NewStore(pool)
	return Stores{
		Auctions:      store,
		Notifications: store,
		Leases:        postgres.NewLeaseBackend(pool),
		Schedule:      postgres.NewScheduleIndex(pool),
		Highest:       cache.None{},
		Ping:          pool.Ping,
	}
}

type App struct {
	Router    *gin.Engine
	Scheduler *scheduler.Scheduler
	Auctions  *auction.AuctionService
	Bidding   *bidding.BiddingService
	Hub       *notifier.Hub
}

func New(cfg config.Config, stores Stores, clk clock.Clock) *App {
	hub := notifier.NewHub()
	events := notifier.Multi{hub, notifier.LogNotifier{}, notifier.NewRecorder(stores.Notifications)}

	locks := lock.NewManager(stores.Leases, clk, cfg.LockWait)

	auctions := auction.NewAuctionService(stores.Auctions, stores.Highest, locks, stores.Schedule, events, clk,
		auction.WithLeaseDuration(cfg.LockLease))
	bids := bidding.NewBiddingService(stores.Auctions, stores.Highest, locks, events,
		bidding.WithClock(clk), bidding.WithLeaseDuration(cfg.LockLease))

	sched := scheduler.New(stores.Schedule, auctions, stores.Auctions, clk,
		scheduler.WithInterval(cfg.SchedulerInterval),
		scheduler.WithWorkers(cfg.SchedulerWorkers),
		scheduler.WithCacheWarmer(bids),
		scheduler.WithRebuildEvery(cfg.RebuildEvery),
	)

	router := server.SetupRouter(server.Dependencies{
		Bidding:       bids,
		Auctions:      auctions,
		Notifications: stores.Notifications,
		Events:        hub,
		Ping:          stores.Ping,
	})

	return &App{
		Router:    router,
		Scheduler: sched,
		Auctions:  auctions,
		Bidding:   bids,
		Hub:       hub,
	}
}
