package handler

import (
	"context"
	"net/http"

	auction "auction-engine/internal/auctionService"
	model "auction-engine/internal/models"
	"auction-engine/internal/notifier"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=auction_handler.go -destination=mock_auction_service.go -package=handler

type AuctionServiceInterface interface {
	CreateAuction(ctx context.Context, in auction.CreateAuctionInput) (model.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error)
	Decide(ctx context.Context, auctionID, sellerID, action string) (model.Auction, error)
}

type NotificationStore interface {
	ListNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
}

// Subscriber hands out live event streams by topic
type Subscriber interface {
	Subscribe(topic string) (<-chan notifier.Event, func())
}

type AuctionHandler struct {
	service AuctionServiceInterface
	events  Subscriber
}

func NewAuctionHandler(service AuctionServiceInterface, events Subscriber) *AuctionHandler {
	return &AuctionHandler{service: service, events: events}
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	sellerID := utils.UserID(c)
	a, err := h.service.CreateAuction(c.Request.Context(), auction.CreateAuctionInput{
		SellerID:        sellerID,
		ItemName:        req.ItemName,
		Description:     req.Description,
		StartingPrice:   req.StartingPrice,
		BidIncrement:    req.BidIncrement,
		GoLiveAt:        req.GoLiveAt,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"seller_id": sellerID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, a, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": a.AuctionID,
		"seller_id":  a.SellerID,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	a, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, a, "auction retrieved successfully")
}

// ListAuctionsHandler handles GET /auctions?status=
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	status := model.AuctionStatus(c.Query("status"))
	auctions, err := h.service.ListAuctions(c.Request.Context(), status)
	if err != nil {
		helpers.RespondError(c, "ListAuctionsHandler", err, map[string]any{"status": status})
		return
	}

	if auctions == nil {
		auctions = []model.Auction{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"status": status,
		"count":  len(auctions),
	})
}

// DecideHandler handles POST /auctions/:auction_id/decision
func (h *AuctionHandler) DecideHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	sellerID := utils.UserID(c)

	var req helpers.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "DecideHandler", err)
		return
	}

	a, err := h.service.Decide(c.Request.Context(), auctionID, sellerID, req.Action)
	if err != nil {
		helpers.RespondError(c, "DecideHandler", err, map[string]any{
			"auction_id": auctionID,
			"seller_id":  sellerID,
			"action":     req.Action,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, a, "decision recorded successfully")
	helpers.LogSuccess("DecideHandler", "decision recorded successfully", map[string]any{
		"auction_id": auctionID,
		"status":     a.Status,
	})
}

// AuctionEventsHandler handles GET /auctions/:auction_id/events
func (h *AuctionHandler) AuctionEventsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	if _, err := h.service.GetAuction(c.Request.Context(), auctionID); err != nil {
		helpers.RespondError(c, "AuctionEventsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	streamEvents(c, h.events, notifier.AuctionTopic(auctionID))
}

type NotificationHandler struct {
	store  NotificationStore
	events Subscriber
}

func NewNotificationHandler(store NotificationStore, events Subscriber) *NotificationHandler {
	return &NotificationHandler{store: store, events: events}
}

// ListNotificationsHandler handles GET /notifications
func (h *NotificationHandler) ListNotificationsHandler(c *gin.Context) {
	userID := utils.UserID(c)
	notes, err := h.store.ListNotifications(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "ListNotificationsHandler", err, map[string]any{"user_id": userID})
		return
	}

	if notes == nil {
		notes = []model.Notification{}
	}
	utils.JSONResponse(c, http.StatusOK, notes, "notifications retrieved successfully")
}

// MarkReadHandler handles POST /notifications/:notification_id/read
func (h *NotificationHandler) MarkReadHandler(c *gin.Context) {
	userID := utils.UserID(c)
	notificationID := c.Param("notification_id")
	if err := h.store.MarkNotificationRead(c.Request.Context(), userID, notificationID); err != nil {
		helpers.RespondError(c, "MarkReadHandler", err, map[string]any{
			"user_id":         userID,
			"notification_id": notificationID,
		})
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"notification_id": notificationID, "read": true}, "notification marked as read")
}

// StreamHandler handles GET /notifications/stream
func (h *NotificationHandler) StreamHandler(c *gin.Context) {
	streamEvents(c, h.events, notifier.UserTopic(utils.UserID(c)))
}
