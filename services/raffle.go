package services

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/bellapacxx/raffle-backend/config"
	"github.com/bellapacxx/raffle-backend/models"
	"github.com/bellapacxx/raffle-backend/raffle"
	"github.com/bellapacxx/raffle-backend/utils/logger"
	"github.com/bellapacxx/raffle-backend/vrf"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RaffleService owns the in-memory raffle, its vrf coordinator and the
// websocket clients watching it. It persists round history and transactions
// through gorm and drives upkeep on a ticker.
type RaffleService struct {
	db          *gorm.DB
	Raffle      *raffle.Raffle
	Coordinator *vrf.Coordinator

	mu           sync.RWMutex
	clients      map[uint]*Client
	currentRound *models.Round
}

var Service *RaffleService

// InitRaffleService wires the raffle aggregate, the coordinator and the
// upkeep loop. Call after config.SetupDatabase.
func InitRaffleService(cfg config.AppConfig) *RaffleService {
	s := &RaffleService{
		db:      config.DB,
		clients: make(map[uint]*Client),
	}
	// The service sits between the raffle and the coordinator: it forwards
	// randomness requests and receives lifecycle events.
	s.Raffle = raffle.New(
		raffle.Config{EntranceFee: cfg.EntranceFee, Interval: cfg.Interval},
		s,
		&walletLedger{db: config.DB},
		s,
	)
	s.Coordinator = vrf.NewCoordinator(s.Raffle, cfg.VRFDelay)

	Service = s
	go s.runUpkeepLoop()
	logger.Infof("[Init] Raffle service started (fee=%.2f interval=%s)", cfg.EntranceFee, cfg.Interval)
	return s
}

// RequestRandomness implements raffle.RandomnessProvider.
func (s *RaffleService) RequestRandomness() (string, error) {
	return s.Coordinator.RequestRandomness()
}

// EnterRaffle debits the user's wallet and records the entry. The debit,
// the transaction row and the raffle entry commit together; a rejected
// entry rolls the debit back.
func (s *RaffleService) EnterRaffle(telegramID int64, amount float64) error {
	if amount <= 0 {
		amount = s.Raffle.EntranceFee()
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
			return err
		}
		if user.Balance < amount {
			return ErrInsufficientBalance
		}

		user.Balance -= amount
		if err := tx.Save(&user).Error; err != nil {
			return err
		}

		entry := models.Transaction{
			UserID:       user.ID,
			Type:         models.EntryTransaction,
			Amount:       amount,
			BalanceAfter: user.Balance,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		return s.Raffle.Enter(strconv.FormatInt(telegramID, 10), amount)
	})
}

// -------------------- raffle.Notifier --------------------

func (s *RaffleService) EntryRecorded(participant string, amount float64) {
	logger.Infof("[Raffle] entry recorded: participant=%s amount=%.2f entrants=%d",
		participant, amount, s.Raffle.EntrantCount())
	go s.broadcastState()
}

func (s *RaffleService) RandomnessRequested(requestID string) {
	snap := s.Raffle.Snapshot()
	entrants, _ := json.Marshal(snap.Entrants)

	next := 1
	var last models.Round
	if err := s.db.Order("round_number DESC").First(&last).Error; err == nil {
		next = last.RoundNumber + 1
	}

	round := models.Round{
		RoundNumber: next,
		Status:      "calculating",
		Pot:         snap.Pot,
		RequestID:   requestID,
		Entrants:    datatypes.JSON(entrants),
		StartTime:   snap.LastCloseTime,
	}
	if err := s.db.Create(&round).Error; err != nil {
		logger.Errorf("[Raffle] failed to persist round %d: %v", next, err)
	} else {
		s.mu.Lock()
		s.currentRound = &round
		s.mu.Unlock()
	}

	logger.Infof("[Raffle] round %d closing, randomness requested: %s", next, requestID)
	go s.broadcastState()
}

func (s *RaffleService) WinnerPicked(winner string, amount float64) {
	s.mu.Lock()
	round := s.currentRound
	s.currentRound = nil
	s.mu.Unlock()

	if round != nil {
		round.Status = "finished"
		round.Winner = winner
		round.EndTime = time.Now()
		if err := s.db.Save(round).Error; err != nil {
			logger.Errorf("[Raffle] failed to finalize round %d: %v", round.RoundNumber, err)
		}
	}

	logger.Infof("[Raffle] winner picked: %s won %.2f", winner, amount)
	s.notifyParticipant(winner, "🎉 You won the raffle!")
	go s.broadcastState()
}

// -------------------- upkeep loop --------------------

func (s *RaffleService) runUpkeepLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		if !s.Raffle.CheckUpkeep(now) {
			continue
		}
		if _, err := s.Raffle.PerformUpkeep(now); err != nil {
			var stale *raffle.UpkeepNotNeededError
			if errors.As(err, &stale) {
				// Lost the race against another upkeep, nothing to do.
				continue
			}
			logger.Errorf("[Raffle] upkeep failed: %v", err)
		}
	}
}

// -------------------- client management --------------------

func (s *RaffleService) addClient(c *Client) {
	s.mu.Lock()
	if old, ok := s.clients[c.userID]; ok {
		old.Close()
	}
	s.clients[c.userID] = c
	s.mu.Unlock()

	go c.writePump()
	go c.readPump()

	logger.Infof("[WS] user %d watching raffle (total=%d)", c.userID, s.clientCount())
	go s.broadcastState()
}

func (s *RaffleService) removeClient(userID uint) {
	s.mu.Lock()
	if client, ok := s.clients[userID]; ok {
		delete(s.clients, userID)
		client.Close()
	}
	s.mu.Unlock()

	go s.broadcastState()
}

func (s *RaffleService) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *RaffleService) notifyParticipant(participant, message string) {
	telegramID, err := strconv.ParseInt(participant, 10, 64)
	if err != nil {
		return
	}

	s.mu.RLock()
	var target *Client
	for _, c := range s.clients {
		if c.telegramID == telegramID {
			target = c
			break
		}
	}
	s.mu.RUnlock()

	if target == nil {
		return
	}

	b, _ := json.Marshal(map[string]string{"type": "notification", "message": message})
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[WS] recovered notification to user %d: %v", target.userID, r)
		}
	}()
	select {
	case target.send <- b:
	default:
		logger.Errorf("[WS] dropping notification to user %d", target.userID)
	}
}

// -------------------- broadcast --------------------

type stateBroadcast struct {
	Type          string            `json:"type"`
	Status        string            `json:"status"`
	EntranceFee   float64           `json:"entranceFee"`
	Pot           float64           `json:"pot"`
	EntrantCount  int               `json:"entrantCount"`
	Entrants      []string          `json:"entrants"`
	RecentWinner  string            `json:"recentWinner,omitempty"`
	SecondsTilDue int               `json:"secondsUntilDue"`
	Balances      map[int64]float64 `json:"balances"`
}

func (s *RaffleService) broadcastState() {
	snap := s.Raffle.Snapshot()

	due := int(snap.Interval - time.Since(snap.LastCloseTime).Seconds())
	if due < 0 || snap.State != raffle.StateOpen {
		due = 0
	}

	s.mu.RLock()
	balances := make(map[int64]float64, len(s.clients))
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
		var user models.User
		if err := s.db.Where("telegram_id = ?", c.telegramID).First(&user).Error; err == nil {
			balances[c.telegramID] = user.Balance
		}
	}
	s.mu.RUnlock()

	state := stateBroadcast{
		Type:          "state",
		Status:        snap.State.String(),
		EntranceFee:   snap.EntranceFee,
		Pot:           snap.Pot,
		EntrantCount:  len(snap.Entrants),
		Entrants:      snap.Entrants,
		RecentWinner:  snap.RecentWinner,
		SecondsTilDue: due,
		Balances:      balances,
	}

	b, _ := json.Marshal(state)
	for _, c := range clients {
		func(c *Client) {
			// The client may close its send channel between the snapshot
			// above and this send.
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("[WS] recovered broadcast to user %d: %v", c.userID, r)
				}
			}()
			select {
			case c.send <- b:
			default:
				logger.Errorf("[WS] dropping state update to user %d", c.userID)
			}
		}(c)
	}
}
