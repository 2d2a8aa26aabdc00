package services

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bellapacxx/raffle-backend/models"
	"gorm.io/gorm"
)

// ErrInsufficientBalance rejects an entry the wallet cannot cover.
var ErrInsufficientBalance = errors.New("insufficient balance")

// walletLedger pays raffle winnings into the users table. Participant
// identifiers are telegram ids in decimal form.
type walletLedger struct {
	db *gorm.DB
}

func (l *walletLedger) Transfer(participant string, amount float64) error {
	telegramID, err := strconv.ParseInt(participant, 10, 64)
	if err != nil {
		return fmt.Errorf("bad participant id %q: %w", participant, err)
	}

	return l.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
			return fmt.Errorf("winner %s not found: %w", participant, err)
		}

		user.Balance += amount
		if err := tx.Save(&user).Error; err != nil {
			return fmt.Errorf("failed to credit winner %s: %w", participant, err)
		}

		payout := models.Transaction{
			UserID:       user.ID,
			Type:         models.PayoutTransaction,
			Amount:       amount,
			BalanceAfter: user.Balance,
		}
		return tx.Create(&payout).Error
	})
}
