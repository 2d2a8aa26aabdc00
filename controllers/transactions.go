package controllers

import (
	"net/http"

	"github.com/bellapacxx/raffle-backend/config"
	"github.com/bellapacxx/raffle-backend/models"

	"github.com/gin-gonic/gin"
)

// Deposit handles adding funds to user wallet
func Deposit(c *gin.Context) {
	var req struct {
		TelegramID int64   `json:"telegramId" binding:"required"`
		Amount     float64 `json:"amount" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := config.DB.Where("telegram_id = ?", req.TelegramID).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	tx := config.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	user.Balance += req.Amount
	if err := tx.Save(&user).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update balance"})
		return
	}

	depositTx := models.Transaction{
		UserID:       user.ID,
		Type:         models.DepositTransaction,
		Amount:       req.Amount,
		BalanceAfter: user.Balance,
	}
	if err := tx.Create(&depositTx).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create transaction"})
		return
	}

	tx.Commit()
	c.JSON(http.StatusCreated, depositTx)
}

// Withdraw handles user withdrawal
func Withdraw(c *gin.Context) {
	var req struct {
		TelegramID int64   `json:"telegramId" binding:"required"`
		Amount     float64 `json:"amount" binding:"required,gt=0"`
		Method     string  `json:"method"`  // optional, for tracking method
		Account    string  `json:"account"` // optional, for tracking account
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := config.DB.Where("telegram_id = ?", req.TelegramID).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if user.Balance < req.Amount {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient balance"})
		return
	}

	tx := config.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	user.Balance -= req.Amount
	if err := tx.Save(&user).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update balance"})
		return
	}

	withdrawTx := models.Transaction{
		UserID:       user.ID,
		Type:         models.WithdrawTransaction,
		Amount:       req.Amount,
		BalanceAfter: user.Balance,
	}
	if err := tx.Create(&withdrawTx).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create transaction"})
		return
	}

	tx.Commit()
	c.JSON(http.StatusCreated, withdrawTx)
}

// ListTransactions returns a user's transaction history
func ListTransactions(c *gin.Context) {
	tidStr := c.Param("telegram_id")

	var user models.User
	if err := config.DB.Where("telegram_id = ?", tidStr).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var txs []models.Transaction
	if err := config.DB.Where("user_id = ?", user.ID).Order("created_at DESC").Find(&txs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
		return
	}

	c.JSON(http.StatusOK, txs)
}
