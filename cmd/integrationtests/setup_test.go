package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/app"
	"auction-engine/internal/clock"
	"auction-engine/internal/config"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var startTime = time.Date(2025, 8, 19, 10, 0, 0, 0, time.UTC)

// TestApp is the full engine on in-memory stores with a controllable clock
type TestApp struct {
	*app.App
	Clock *clock.Manual
}

// SetupTestApp initializes the engine with in-memory state for integration testing.
func SetupTestApp(t *testing.T) *TestApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		SchedulerInterval: time.Second,
		SchedulerWorkers:  4,
		LockLease:         3 * time.Second,
		LockWait:          time.Second,
	}
	clk := clock.NewManual(startTime)
	return &TestApp{App: app.New(cfg, app.MemoryStores(), clk), Clock: clk}
}

// ExecuteRequestAndParse executes an HTTP request on the given router as user and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, user string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(utils.UserHeader, user)
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// Data returns the data object of a successful response
func Data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return data
}

// CreateAuction schedules an auction through the API going live after delay
func (a *TestApp) CreateAuction(t *testing.T, seller string, delay time.Duration) string {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, a.Router, http.MethodPost, "/auctions", seller, map[string]any{
		"item_name":        "lamp",
		"description":      "brass desk lamp",
		"starting_price":   100,
		"bid_increment":    10,
		"go_live_at":       a.Clock.Now().Add(delay).Format(time.RFC3339),
		"duration_seconds": 120,
	})
	require.Equal(t, http.StatusCreated, w.Code, resp)
	return Data(t, resp)["auction_id"].(string)
}

// CreateActiveAuction schedules an auction and lets the scheduler open it
func (a *TestApp) CreateActiveAuction(t *testing.T, seller string) string {
	t.Helper()
	id := a.CreateAuction(t, seller, time.Minute)
	a.Clock.Advance(time.Minute)
	res := a.Scheduler.Tick(t.Context())
	require.GreaterOrEqual(t, res.Activated, 1)
	return id
}

// Bid places a bid through the API and returns the status code
func (a *TestApp) Bid(t *testing.T, auctionID, bidder string, amount float64) int {
	t.Helper()
	_, w := ExecuteRequestAndParse(t, a.Router, http.MethodPost, "/auctions/"+auctionID+"/bids", bidder, map[string]any{"amount": amount})
	return w.Code
}

// Status reads an auction's status through the API
func (a *TestApp) Status(t *testing.T, auctionID string) string {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, a.Router, http.MethodGet, "/auctions/"+auctionID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	return Data(t, resp)["status"].(string)
}
