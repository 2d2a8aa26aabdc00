package raffle

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientStake rejects an entry below the entrance fee.
	ErrInsufficientStake = errors.New("raffle: stake below entrance fee")
	// ErrRoundNotOpen rejects an entry while a round is calculating.
	ErrRoundNotOpen = errors.New("raffle: round not open")
)

// UpkeepNotNeededError rejects performUpkeep when the upkeep predicate does
// not hold. It carries a diagnostic snapshot of the round at rejection time.
type UpkeepNotNeededError struct {
	Pot      float64
	Entrants int
	State    State
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("raffle: upkeep not needed (pot=%.2f entrants=%d state=%s)",
		e.Pot, e.Entrants, e.State)
}

// UnknownRequestError rejects a randomness fulfillment whose request id does
// not match the outstanding request. A consumed id is unknown again.
type UnknownRequestError struct {
	RequestID string
}

func (e *UnknownRequestError) Error() string {
	return fmt.Sprintf("raffle: unknown randomness request %q", e.RequestID)
}

// PayoutFailedError reports a failed pot transfer to the winner. The round is
// left untouched so the fulfillment can be retried.
type PayoutFailedError struct {
	Winner string
	Amount float64
	Err    error
}

func (e *PayoutFailedError) Error() string {
	return fmt.Sprintf("raffle: payout of %.2f to %s failed: %v", e.Amount, e.Winner, e.Err)
}

func (e *PayoutFailedError) Unwrap() error { return e.Err }
