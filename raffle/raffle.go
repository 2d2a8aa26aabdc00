package raffle

import (
	"fmt"
	"sync"
	"time"
)

// RandomnessProvider issues a randomness request and returns a correlation
// id. The random word arrives later through FulfillRandomness.
type RandomnessProvider interface {
	RequestRandomness() (string, error)
}

// Ledger transfers the pot to the winner. An error aborts the round reset.
type Ledger interface {
	Transfer(participant string, amount float64) error
}

// Notifier receives round lifecycle events. Callbacks run outside the raffle
// lock and must not call back into mutating raffle operations synchronously.
type Notifier interface {
	EntryRecorded(participant string, amount float64)
	RandomnessRequested(requestID string)
	WinnerPicked(participant string, amount float64)
}

// Config is fixed for the lifetime of a Raffle.
type Config struct {
	EntranceFee float64       // minimum stake per entry
	Interval    time.Duration // minimum time between round closes
}

// Raffle is the lottery round state machine. A single round cycles
// open -> calculating -> open forever; closing a round pays the whole pot to
// one entrant and resets the round in place.
type Raffle struct {
	cfg      Config
	provider RandomnessProvider
	ledger   Ledger
	notifier Notifier
	now      func() time.Time

	mu               sync.RWMutex
	state            State
	entrants         []string
	pot              float64
	lastClose        time.Time
	pendingRequestID string
	recentWinner     string
}

// Snapshot is a point-in-time copy of the round, safe to hand out.
type Snapshot struct {
	State            State     `json:"state"`
	EntranceFee      float64   `json:"entranceFee"`
	Interval         float64   `json:"intervalSeconds"`
	Entrants         []string  `json:"entrants"`
	Pot              float64   `json:"pot"`
	LastCloseTime    time.Time `json:"lastCloseTime"`
	PendingRequestID string    `json:"pendingRequestId,omitempty"`
	RecentWinner     string    `json:"recentWinner,omitempty"`
}

func New(cfg Config, provider RandomnessProvider, ledger Ledger, notifier Notifier) *Raffle {
	r := &Raffle{
		cfg:      cfg,
		provider: provider,
		ledger:   ledger,
		notifier: notifier,
		now:      time.Now,
		state:    StateOpen,
	}
	r.lastClose = r.now()
	return r
}

// Enter records a participant entry for the current round. Re-entry is
// allowed and raises the participant's odds proportionally.
func (r *Raffle) Enter(participant string, amount float64) error {
	r.mu.Lock()
	if r.state != StateOpen {
		r.mu.Unlock()
		return ErrRoundNotOpen
	}
	if amount < r.cfg.EntranceFee {
		r.mu.Unlock()
		return ErrInsufficientStake
	}
	r.entrants = append(r.entrants, participant)
	r.pot += amount
	r.mu.Unlock()

	r.notifier.EntryRecorded(participant, amount)
	return nil
}

// CheckUpkeep reports whether the current round is due to close. Read-only.
func (r *Raffle) CheckUpkeep(now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.upkeepNeeded(now)
}

// upkeepNeeded must be called with the lock held.
func (r *Raffle) upkeepNeeded(now time.Time) bool {
	return r.state == StateOpen &&
		now.Sub(r.lastClose) >= r.cfg.Interval &&
		len(r.entrants) > 0 &&
		r.pot > 0
}

// PerformUpkeep closes entries for the round and requests randomness. The
// upkeep predicate is re-evaluated under the lock: a caller's earlier
// CheckUpkeep may be stale by the time this runs.
func (r *Raffle) PerformUpkeep(now time.Time) (string, error) {
	r.mu.Lock()
	if !r.upkeepNeeded(now) {
		err := &UpkeepNotNeededError{Pot: r.pot, Entrants: len(r.entrants), State: r.state}
		r.mu.Unlock()
		return "", err
	}

	requestID, err := r.provider.RequestRandomness()
	if err != nil {
		r.mu.Unlock()
		return "", fmt.Errorf("raffle: randomness request failed: %w", err)
	}
	r.state = StateCalculating
	r.pendingRequestID = requestID
	r.mu.Unlock()

	r.notifier.RandomnessRequested(requestID)
	return requestID, nil
}

// FulfillRandomness is the randomness provider's callback. It selects the
// winner, pays out the pot and reopens the round. A request id that is not
// the outstanding one is rejected with no effect, which covers replays,
// stale deliveries and double fulfillment of a consumed id.
func (r *Raffle) FulfillRandomness(requestID string, randomWord uint64) (string, error) {
	r.mu.Lock()
	if r.state != StateCalculating || requestID != r.pendingRequestID {
		r.mu.Unlock()
		return "", &UnknownRequestError{RequestID: requestID}
	}

	// Modulo selection is slightly biased for pot sizes that do not divide
	// the word domain evenly; accepted, the provider's domain is 2^64.
	winner := r.entrants[randomWord%uint64(len(r.entrants))]
	amount := r.pot

	if err := r.ledger.Transfer(winner, amount); err != nil {
		// No reset on payout failure: the round stays calculating with the
		// same pending request so the fulfillment can be retried.
		r.mu.Unlock()
		return "", &PayoutFailedError{Winner: winner, Amount: amount, Err: err}
	}

	r.entrants = nil
	r.pot = 0
	r.pendingRequestID = ""
	r.recentWinner = winner
	r.lastClose = r.now()
	r.state = StateOpen
	r.mu.Unlock()

	r.notifier.WinnerPicked(winner, amount)
	return winner, nil
}

// ----- read accessors -----

func (r *Raffle) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Raffle) EntranceFee() float64 { return r.cfg.EntranceFee }

func (r *Raffle) Interval() time.Duration { return r.cfg.Interval }

func (r *Raffle) LastCloseTime() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastClose
}

func (r *Raffle) EntrantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entrants)
}

// Entrant returns the participant at the given entry index.
func (r *Raffle) Entrant(index int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.entrants) {
		return "", false
	}
	return r.entrants[index], true
}

func (r *Raffle) Pot() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pot
}

func (r *Raffle) RecentWinner() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recentWinner
}

func (r *Raffle) PendingRequestID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingRequestID
}

func (r *Raffle) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		State:            r.state,
		EntranceFee:      r.cfg.EntranceFee,
		Interval:         r.cfg.Interval.Seconds(),
		Entrants:         append([]string(nil), r.entrants...),
		Pot:              r.pot,
		LastCloseTime:    r.lastClose,
		PendingRequestID: r.pendingRequestID,
		RecentWinner:     r.recentWinner,
	}
}
