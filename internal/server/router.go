package server

import (
	"context"
	"net/http"

	auctionhandler "auction-engine/services/auction/handler"
	bidhandler "auction-engine/services/bidding/handler"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// Dependencies are the services the HTTP layer is built on
type Dependencies struct {
	Bidding       bidhandler.BiddingServiceInterface
	Auctions      auctionhandler.AuctionServiceInterface
	Notifications auctionhandler.NotificationStore
	Events        auctionhandler.Subscriber
	// Ping reports storage health; nil means always healthy
	Ping func(ctx context.Context) error
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLoggerMiddleware)

	biddingHandler := bidhandler.NewBiddingHandler(deps.Bidding)
	auctionHandler := auctionhandler.NewAuctionHandler(deps.Auctions, deps.Events)
	notificationHandler := auctionhandler.NewNotificationHandler(deps.Notifications, deps.Events)

	router.GET("/health", healthHandler(deps.Ping))

	auctions := router.Group("/auctions")
	{
		auctions.POST("", RequireUser, auctionHandler.CreateAuctionHandler)
		auctions.GET("", auctionHandler.ListAuctionsHandler)
		auctions.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctions.POST("/:auction_id/bids", RequireUser, biddingHandler.RecordBidHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/highest", biddingHandler.GetHighestBidHandler)
		auctions.POST("/:auction_id/decision", RequireUser, auctionHandler.DecideHandler)
		auctions.GET("/:auction_id/events", auctionHandler.AuctionEventsHandler)
	}

	notifications := router.Group("/notifications", RequireUser)
	{
		notifications.GET("", notificationHandler.ListNotificationsHandler)
		notifications.GET("/stream", notificationHandler.StreamHandler)
		notifications.POST("/:notification_id/read", notificationHandler.MarkReadHandler)
	}

	return router
}

func healthHandler(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			if err := ping(c.Request.Context()); err != nil {
				utils.Error("health check failed", map[string]any{"error": err.Error()})
				utils.JSONError(c, http.StatusServiceUnavailable, err, "storage unavailable")
				return
			}
		}
		utils.JSONResponse(c, http.StatusOK, gin.H{"healthy": true}, "ok")
	}
}
