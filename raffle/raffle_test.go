package raffle

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----- fakes -----

type fakeProvider struct {
	n    int
	err  error
	last string
}

func (p *fakeProvider) RequestRandomness() (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.n++
	p.last = fmt.Sprintf("req-%d", p.n)
	return p.last, nil
}

type fakeLedger struct {
	balances  map[string]float64
	failWith  error
	transfers int
}

func (l *fakeLedger) Transfer(participant string, amount float64) error {
	if l.failWith != nil {
		return l.failWith
	}
	l.balances[participant] += amount
	l.transfers++
	return nil
}

type eventRecorder struct {
	mu       sync.Mutex
	entries  []string
	requests []string
	winners  []string
}

func (r *eventRecorder) EntryRecorded(participant string, amount float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, participant)
}

func (r *eventRecorder) RandomnessRequested(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, requestID)
}

func (r *eventRecorder) WinnerPicked(participant string, amount float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.winners = append(r.winners, participant)
}

const (
	testFee      = 10.0
	testInterval = 30 * time.Second
)

func newTestRaffle(t *testing.T) (*Raffle, *fakeProvider, *fakeLedger, *eventRecorder) {
	t.Helper()
	provider := &fakeProvider{}
	ledger := &fakeLedger{balances: make(map[string]float64)}
	events := &eventRecorder{}
	r := New(Config{EntranceFee: testFee, Interval: testInterval}, provider, ledger, events)
	return r, provider, ledger, events
}

// due returns a timestamp at which the interval has fully elapsed.
func due(r *Raffle) time.Time {
	return r.LastCloseTime().Add(r.Interval())
}

// ----- entry ledger -----

func TestEnterBelowFeeRejected(t *testing.T) {
	r, _, _, events := newTestRaffle(t)

	err := r.Enter("alice", testFee-1)
	require.ErrorIs(t, err, ErrInsufficientStake)
	assert.Zero(t, r.EntrantCount())
	assert.Zero(t, r.Pot())
	assert.Empty(t, events.entries)
}

func TestEnterWhileCalculatingRejected(t *testing.T) {
	r, _, _, _ := newTestRaffle(t)
	require.NoError(t, r.Enter("alice", testFee))
	_, err := r.PerformUpkeep(due(r))
	require.NoError(t, err)

	err = r.Enter("bob", testFee)
	require.ErrorIs(t, err, ErrRoundNotOpen)
	assert.Equal(t, 1, r.EntrantCount())
}

func TestEnterPreservesOrderAndDuplicates(t *testing.T) {
	r, _, _, events := newTestRaffle(t)

	require.NoError(t, r.Enter("alice", testFee))
	require.NoError(t, r.Enter("bob", testFee+5))
	require.NoError(t, r.Enter("alice", testFee)) // re-entry raises odds

	assert.Equal(t, 3, r.EntrantCount())
	assert.Equal(t, 3*testFee+5, r.Pot())

	first, ok := r.Entrant(0)
	require.True(t, ok)
	assert.Equal(t, "alice", first)
	second, ok := r.Entrant(1)
	require.True(t, ok)
	assert.Equal(t, "bob", second)
	third, ok := r.Entrant(2)
	require.True(t, ok)
	assert.Equal(t, "alice", third)

	_, ok = r.Entrant(3)
	assert.False(t, ok)
	_, ok = r.Entrant(-1)
	assert.False(t, ok)

	assert.Equal(t, []string{"alice", "bob", "alice"}, events.entries)
}

func TestPotTracksEntrySum(t *testing.T) {
	r, _, _, _ := newTestRaffle(t)

	var sum float64
	for i := 0; i < 10; i++ {
		amount := testFee + float64(i)
		require.NoError(t, r.Enter(fmt.Sprintf("p%d", i), amount))
		sum += amount
		assert.Equal(t, sum, r.Pot())
	}
}

func TestConcurrentEntries(t *testing.T) {
	r, _, _, _ := newTestRaffle(t)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_ = r.Enter(fmt.Sprintf("p%d", i), testFee)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, r.EntrantCount())
	assert.Equal(t, n*testFee, r.Pot())
}

// ----- upkeep evaluator -----

func TestCheckUpkeep(t *testing.T) {
	t.Run("no entrants", func(t *testing.T) {
		r, _, _, _ := newTestRaffle(t)
		assert.False(t, r.CheckUpkeep(due(r)))
	})

	t.Run("interval not elapsed", func(t *testing.T) {
		r, _, _, _ := newTestRaffle(t)
		require.NoError(t, r.Enter("alice", testFee))
		assert.False(t, r.CheckUpkeep(r.LastCloseTime().Add(testInterval/2)))
	})

	t.Run("all conditions met", func(t *testing.T) {
		r, _, _, _ := newTestRaffle(t)
		require.NoError(t, r.Enter("alice", testFee))
		assert.True(t, r.CheckUpkeep(due(r)))
	})

	t.Run("calculating", func(t *testing.T) {
		r, _, _, _ := newTestRaffle(t)
		require.NoError(t, r.Enter("alice", testFee))
		_, err := r.PerformUpkeep(due(r))
		require.NoError(t, err)
		assert.False(t, r.CheckUpkeep(due(r)))
	})

	t.Run("read-only", func(t *testing.T) {
		r, _, _, _ := newTestRaffle(t)
		require.NoError(t, r.Enter("alice", testFee))
		r.CheckUpkeep(due(r))
		r.CheckUpkeep(due(r))
		assert.Equal(t, StateOpen, r.State())
		assert.Equal(t, 1, r.EntrantCount())
	})
}

// ----- round controller -----

func TestPerformUpkeepNotNeeded(t *testing.T) {
	r, _, _, _ := newTestRaffle(t)

	_, err := r.PerformUpkeep(due(r))
	var notNeeded *UpkeepNotNeededError
	require.ErrorAs(t, err, &notNeeded)
	assert.Zero(t, notNeeded.Pot)
	assert.Zero(t, notNeeded.Entrants)
	assert.Equal(t, StateOpen, notNeeded.State)
	assert.Equal(t, StateOpen, r.State())
}

func TestPerformUpkeepRequestsRandomness(t *testing.T) {
	r, provider, _, events := newTestRaffle(t)
	require.NoError(t, r.Enter("alice", testFee))

	requestID, err := r.PerformUpkeep(due(r))
	require.NoError(t, err)
	assert.Equal(t, provider.last, requestID)
	assert.Equal(t, StateCalculating, r.State())
	assert.Equal(t, requestID, r.PendingRequestID())
	assert.Equal(t, []string{requestID}, events.requests)

	// Second upkeep must not issue another request.
	_, err = r.PerformUpkeep(due(r))
	var notNeeded *UpkeepNotNeededError
	require.ErrorAs(t, err, &notNeeded)
	assert.Equal(t, StateCalculating, notNeeded.State)
	assert.Equal(t, 1, provider.n)
}

func TestPerformUpkeepProviderFailure(t *testing.T) {
	r, provider, _, events := newTestRaffle(t)
	require.NoError(t, r.Enter("alice", testFee))
	provider.err = errors.New("oracle down")

	_, err := r.PerformUpkeep(due(r))
	require.Error(t, err)
	assert.Equal(t, StateOpen, r.State())
	assert.Empty(t, r.PendingRequestID())
	assert.Empty(t, events.requests)
}

func TestFulfillUnknownRequest(t *testing.T) {
	r, _, _, _ := newTestRaffle(t)
	require.NoError(t, r.Enter("alice", testFee))
	requestID, err := r.PerformUpkeep(due(r))
	require.NoError(t, err)

	_, err = r.FulfillRandomness("bogus", 7)
	var unknown *UnknownRequestError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "bogus", unknown.RequestID)

	// Nothing changed, the real fulfillment still works.
	assert.Equal(t, StateCalculating, r.State())
	_, err = r.FulfillRandomness(requestID, 7)
	require.NoError(t, err)
}

func TestFulfillConsumedRequestRejected(t *testing.T) {
	r, _, ledger, _ := newTestRaffle(t)
	require.NoError(t, r.Enter("alice", testFee))
	requestID, err := r.PerformUpkeep(due(r))
	require.NoError(t, err)

	_, err = r.FulfillRandomness(requestID, 1)
	require.NoError(t, err)

	_, err = r.FulfillRandomness(requestID, 1)
	var unknown *UnknownRequestError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, 1, ledger.transfers)
}

func TestWinnerIndexIsModulo(t *testing.T) {
	r, _, _, _ := newTestRaffle(t)
	for _, p := range []string{"alice", "bob", "carol"} {
		require.NoError(t, r.Enter(p, testFee))
	}
	requestID, err := r.PerformUpkeep(due(r))
	require.NoError(t, err)

	winner, err := r.FulfillRandomness(requestID, 5) // 5 mod 3 = 2
	require.NoError(t, err)
	assert.Equal(t, "carol", winner)
	assert.Equal(t, "carol", r.RecentWinner())
}

func TestSingleEntrantAlwaysWins(t *testing.T) {
	r, _, ledger, _ := newTestRaffle(t)
	require.NoError(t, r.Enter("alice", testFee))
	requestID, err := r.PerformUpkeep(due(r))
	require.NoError(t, err)

	winner, err := r.FulfillRandomness(requestID, 982451653)
	require.NoError(t, err)
	assert.Equal(t, "alice", winner)
	assert.Equal(t, testFee, ledger.balances["alice"])
	assert.Zero(t, r.Pot())
}

func TestFullCycle(t *testing.T) {
	r, _, ledger, events := newTestRaffle(t)

	closeTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return closeTime }

	participants := []string{"alice", "bob", "carol", "dave"}
	for _, p := range participants {
		require.NoError(t, r.Enter(p, testFee))
	}

	requestID, err := r.PerformUpkeep(due(r))
	require.NoError(t, err)

	winner, err := r.FulfillRandomness(requestID, 42)
	require.NoError(t, err)
	assert.Contains(t, participants, winner)

	// Exactly one entrant got the whole pot.
	assert.Equal(t, 4*testFee, ledger.balances[winner])
	assert.Len(t, ledger.balances, 1)
	assert.Equal(t, []string{winner}, events.winners)

	// Round reset in place.
	assert.Equal(t, StateOpen, r.State())
	assert.Zero(t, r.EntrantCount())
	assert.Zero(t, r.Pot())
	assert.Empty(t, r.PendingRequestID())
	assert.Equal(t, closeTime, r.LastCloseTime())

	// The next round accepts entries again.
	require.NoError(t, r.Enter("erin", testFee))
	assert.Equal(t, 1, r.EntrantCount())
}

func TestPayoutFailureKeepsRoundIntact(t *testing.T) {
	r, _, ledger, events := newTestRaffle(t)
	require.NoError(t, r.Enter("alice", testFee))
	require.NoError(t, r.Enter("bob", testFee))
	requestID, err := r.PerformUpkeep(due(r))
	require.NoError(t, err)
	lastClose := r.LastCloseTime()

	ledger.failWith = errors.New("wallet offline")
	_, err = r.FulfillRandomness(requestID, 3)
	var payoutErr *PayoutFailedError
	require.ErrorAs(t, err, &payoutErr)
	assert.Equal(t, 2*testFee, payoutErr.Amount)
	assert.ErrorContains(t, payoutErr, "wallet offline")

	// No partial commit: still calculating, same request, pot untouched.
	assert.Equal(t, StateCalculating, r.State())
	assert.Equal(t, requestID, r.PendingRequestID())
	assert.Equal(t, 2*testFee, r.Pot())
	assert.Equal(t, 2, r.EntrantCount())
	assert.Equal(t, lastClose, r.LastCloseTime())
	assert.Empty(t, events.winners)

	// Retrying the same fulfillment succeeds once the ledger recovers.
	ledger.failWith = nil
	winner, err := r.FulfillRandomness(requestID, 3)
	require.NoError(t, err)
	assert.Equal(t, 2*testFee, ledger.balances[winner])
	assert.Equal(t, StateOpen, r.State())
}

func TestPendingRequestInvariant(t *testing.T) {
	r, _, _, _ := newTestRaffle(t)

	// open -> no pending request
	assert.Equal(t, StateOpen, r.State())
	assert.Empty(t, r.PendingRequestID())

	require.NoError(t, r.Enter("alice", testFee))
	requestID, err := r.PerformUpkeep(due(r))
	require.NoError(t, err)

	// calculating -> pending request set
	assert.Equal(t, StateCalculating, r.State())
	assert.NotEmpty(t, r.PendingRequestID())

	_, err = r.FulfillRandomness(requestID, 0)
	require.NoError(t, err)

	// open again -> cleared
	assert.Equal(t, StateOpen, r.State())
	assert.Empty(t, r.PendingRequestID())
}

func TestSnapshot(t *testing.T) {
	r, _, _, _ := newTestRaffle(t)
	require.NoError(t, r.Enter("alice", testFee))
	require.NoError(t, r.Enter("bob", testFee))

	snap := r.Snapshot()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, testFee, snap.EntranceFee)
	assert.Equal(t, testInterval.Seconds(), snap.Interval)
	assert.Equal(t, []string{"alice", "bob"}, snap.Entrants)
	assert.Equal(t, 2*testFee, snap.Pot)

	// The snapshot owns its entrant slice.
	snap.Entrants[0] = "mallory"
	first, _ := r.Entrant(0)
	assert.Equal(t, "alice", first)
}
