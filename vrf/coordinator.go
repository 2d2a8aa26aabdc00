package vrf

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/bellapacxx/raffle-backend/utils/logger"
	"github.com/google/uuid"
)

// ErrUnknownRequest rejects fulfillment of an id the coordinator is not
// tracking, whether never issued or already consumed.
var ErrUnknownRequest = errors.New("vrf: unknown request id")

// Fulfiller consumes randomness callbacks, usually the raffle round
// controller.
type Fulfiller interface {
	FulfillRandomness(requestID string, randomWord uint64) (string, error)
}

// Coordinator hands out correlation ids for randomness requests and delivers
// each random word back to the fulfiller asynchronously, after a configured
// delay. It stands in for an external randomness oracle: the requester never
// blocks on the word, it only holds the id.
type Coordinator struct {
	fulfiller Fulfiller
	delay     time.Duration

	mu      sync.Mutex
	rng     *rand.Rand
	pending map[string]time.Time // request id -> requested at
}

func NewCoordinator(fulfiller Fulfiller, delay time.Duration) *Coordinator {
	return &Coordinator{
		fulfiller: fulfiller,
		delay:     delay,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		pending:   make(map[string]time.Time),
	}
}

// RequestRandomness registers a new request and schedules its delivery.
func (c *Coordinator) RequestRandomness() (string, error) {
	id := uuid.NewString()

	c.mu.Lock()
	c.pending[id] = time.Now()
	word := c.rng.Uint64()
	c.mu.Unlock()

	logger.Infof("[VRF] randomness requested, id=%s", id)
	go c.deliver(id, word)
	return id, nil
}

func (c *Coordinator) deliver(id string, word uint64) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if err := c.Fulfill(id, word); err != nil {
		// A manual fulfillment may have consumed the request first.
		logger.Errorf("[VRF] delivery of request %s dropped: %v", id, err)
	}
}

// Fulfill delivers a random word for an outstanding request. It is used by
// the automatic delivery goroutine and by the operator endpoint; whichever
// runs first consumes the request, the other is rejected.
func (c *Coordinator) Fulfill(id string, word uint64) error {
	c.mu.Lock()
	requestedAt, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownRequest, id)
	}
	delete(c.pending, id)
	c.mu.Unlock()

	winner, err := c.fulfiller.FulfillRandomness(id, word)
	if err != nil {
		// Put the request back so the fulfillment can be retried, e.g. after
		// a payout failure.
		c.mu.Lock()
		c.pending[id] = requestedAt
		c.mu.Unlock()
		return fmt.Errorf("vrf: fulfillment of %s rejected: %w", id, err)
	}

	logger.Infof("[VRF] request %s fulfilled after %s, winner=%s", id, time.Since(requestedAt), winner)
	return nil
}

// Outstanding lists request ids that have not been fulfilled yet.
func (c *Coordinator) Outstanding() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	return ids
}
