package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bellapacxx/raffle-backend/config"
	"github.com/bellapacxx/raffle-backend/models"
	"github.com/bellapacxx/raffle-backend/raffle"
	"github.com/bellapacxx/raffle-backend/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GetRaffle returns the current round snapshot
func GetRaffle(c *gin.Context) {
	c.JSON(http.StatusOK, services.Service.Raffle.Snapshot())
}

// GetEntrant returns the participant at an entry index
func GetEntrant(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid index"})
		return
	}

	participant, ok := services.Service.Raffle.Entrant(index)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No entrant at index"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"index": index, "participant": participant})
}

// EnterRaffle stakes a user into the current round
func EnterRaffle(c *gin.Context) {
	var req struct {
		TelegramID int64   `json:"telegram_id" binding:"required"`
		Amount     float64 `json:"amount"` // optional, defaults to the entrance fee
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := services.Service.EnterRaffle(req.TelegramID, req.Amount)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{
			"message":  "Entered raffle",
			"entrants": services.Service.Raffle.EntrantCount(),
			"pot":      services.Service.Raffle.Pot(),
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, services.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient balance"})
	case errors.Is(err, raffle.ErrInsufficientStake):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Stake below entrance fee"})
	case errors.Is(err, raffle.ErrRoundNotOpen):
		c.JSON(http.StatusConflict, gin.H{"error": "Round is calculating, try again shortly"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enter raffle"})
	}
}

// ListRounds returns past rounds, most recent first
func ListRounds(c *gin.Context) {
	var rounds []models.Round
	if err := config.DB.Order("round_number DESC").Limit(50).Find(&rounds).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rounds"})
		return
	}
	c.JSON(http.StatusOK, rounds)
}
