package services

import (
	"net/http"
	"strconv"

	"github.com/bellapacxx/raffle-backend/config"
	"github.com/bellapacxx/raffle-backend/models"
	"github.com/bellapacxx/raffle-backend/utils/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket attaches a user to the raffle state stream.
func HandleWebSocket(c *gin.Context) {
	if Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "raffle not running"})
		return
	}

	telegramIDStr := c.Query("telegram_id")
	if telegramIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing telegram_id"})
		return
	}
	telegramID, err := strconv.ParseInt(telegramIDStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid telegram_id"})
		return
	}

	var user models.User
	if err := config.DB.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("[WS] upgrade error: %v", err)
		return
	}

	client := &Client{
		userID:     user.ID,
		telegramID: user.TelegramID,
		conn:       conn,
		service:    Service,
		send:       make(chan []byte, 32),
	}
	logger.Infof("[WS] new client: userID=%d telegramID=%d", user.ID, telegramID)

	Service.addClient(client)
}
