package controllers

import (
	"errors"
	"net/http"

	"github.com/bellapacxx/raffle-backend/raffle"
	"github.com/bellapacxx/raffle-backend/services"
	"github.com/bellapacxx/raffle-backend/vrf"
	"github.com/gin-gonic/gin"
)

// FulfillRandomness lets an operator deliver a random word for an
// outstanding request, e.g. when the automatic delay is set very high in a
// dev environment or a payout needs a retry.
func FulfillRandomness(c *gin.Context) {
	var req struct {
		RequestID  string `json:"request_id" binding:"required"`
		RandomWord uint64 `json:"random_word"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := services.Service.Coordinator.Fulfill(req.RequestID, req.RandomWord)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"message": "Fulfilled",
			"winner":  services.Service.Raffle.RecentWinner(),
		})
	case isUnknownRequest(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown request id"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// ListOutstandingRequests returns randomness requests awaiting fulfillment
func ListOutstandingRequests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"outstanding": services.Service.Coordinator.Outstanding()})
}

func isUnknownRequest(err error) bool {
	if errors.Is(err, vrf.ErrUnknownRequest) {
		return true
	}
	var unknown *raffle.UnknownRequestError
	return errors.As(err, &unknown)
}
