package services

import (
	"encoding/json"
	"sync"

	"github.com/bellapacxx/raffle-backend/utils/logger"
	"github.com/gorilla/websocket"
)

type Client struct {
	userID     uint
	telegramID int64
	conn       *websocket.Conn
	service    *RaffleService
	send       chan []byte
	once       sync.Once
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// --------------------
// Client read/write pumps
// --------------------
func (c *Client) readPump() {
	defer func() {
		c.service.removeClient(c.userID)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Infof("[Client %d] disconnected normally", c.userID)
			} else {
				logger.Errorf("[Client %d] read error: %v", c.userID, err)
			}
			return
		}

		var data map[string]any
		if err := json.Unmarshal(message, &data); err != nil {
			logger.Errorf("[Client %d] invalid message: %v", c.userID, err)
			continue
		}

		switch data["action"] {
		case "enter":
			amount := 0.0
			if v, ok := data["amount"].(float64); ok {
				amount = v
			}
			if err := c.service.EnterRaffle(c.telegramID, amount); err != nil {
				logger.Errorf("[Client %d] entry rejected: %v", c.userID, err)
				b, _ := json.Marshal(map[string]string{"type": "error", "message": err.Error()})
				select {
				case c.send <- b:
				default:
				}
				continue
			}
			logger.Infof("[Client %d] entered the raffle", c.userID)
		default:
			logger.Errorf("[Client %d] unknown action: %v", c.userID, data["action"])
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Errorf("[Client %d] write error: %v", c.userID, err)
			return
		}
	}
}
