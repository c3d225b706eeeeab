package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

var errMissingUser = errors.New("missing " + utils.UserHeader + " header")

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next()

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if user := utils.UserID(c); user != "" {
		fields["user_id"] = user
	}
	utils.Info("HTTP Request", fields)
}

// RequireUser resolves the caller from the identity header set upstream
func RequireUser(c *gin.Context) {
	user := strings.TrimSpace(c.GetHeader(utils.UserHeader))
	if user == "" {
		utils.AbortWithError(c, http.StatusUnauthorized, errMissingUser, "authentication required")
		return
	}
	utils.SetUserID(c, user)
	c.Next()
}
